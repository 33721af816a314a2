package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/matheus3301/freightdesk/internal/api"
	"github.com/matheus3301/freightdesk/internal/api/middleware"
	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/config"
	"github.com/matheus3301/freightdesk/internal/messaging"
	"github.com/matheus3301/freightdesk/internal/status"
	"github.com/matheus3301/freightdesk/internal/unread"
	"go.uber.org/zap"
)

// HTTPServer serves the public API.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer binds the configured address and builds the router.
func NewHTTPServer(
	cfg *config.Config,
	svc *messaging.Service,
	registry *unread.Registry,
	b *bus.Bus,
	identity *middleware.Identity,
	machine *status.Machine,
	logger *zap.Logger,
) (*HTTPServer, error) {
	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	router := api.NewRouter(api.Deps{
		Service:        svc,
		Registry:       registry,
		Bus:            b,
		Identity:       identity,
		Status:         machine,
		Logger:         logger.Named("http"),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	return &HTTPServer{
		srv: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *HTTPServer) Addr() string {
	return s.listener.Addr().String()
}

// Start serves requests. Blocks until stopped.
func (s *HTTPServer) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.Addr()))
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests. Websocket streams are hijacked and end
// with the process context.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	return s.srv.Shutdown(ctx)
}
