package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/instance"
	"github.com/matheus3301/freightdesk/internal/lock"
	"github.com/matheus3301/freightdesk/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported on the control socket.
const ServiceName = "freightdesk"

// Server manages the control socket: a gRPC server on the instance's Unix
// domain socket exposing the standard health service, which mirrors the
// daemon status (SERVING only while READY).
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	machine    *status.Machine
	bus        *bus.Bus
	logger     *zap.Logger
	unsub      func()
	done       chan struct{}
}

// NewServer creates a gRPC server bound to the instance's Unix domain socket.
// It takes the instance lock so a refused second daemon never removes the
// socket of the running one.
func NewServer(p Params, _ *lock.Lock, machine *status.Machine, b *bus.Bus, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = instance.SocketPath(p.InstanceName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		machine:    machine,
		bus:        b,
		logger:     logger,
		done:       make(chan struct{}),
	}
	ch, unsub := b.Subscribe(bus.NamespaceDaemon, 16)
	s.unsub = unsub
	go s.mirror(ch)
	s.setServing(machine.Current())
	return s, nil
}

// mirror copies status transitions into the health service until Stop.
func (s *Server) mirror(ch <-chan bus.Event) {
	for {
		select {
		case evt := <-ch:
			if change, ok := evt.Payload.(status.StatusChange); ok {
				s.setServing(change.To)
				s.logger.Info("daemon status changed",
					zap.String("from", string(change.From)),
					zap.String("to", string(change.To)),
				)
			}
		case <-s.done:
			return
		}
	}
}

// ServingStatus maps a daemon state to a health status.
func ServingStatus(st status.State) healthpb.HealthCheckResponse_ServingStatus {
	if st == status.Ready {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (s *Server) setServing(st status.State) {
	hs := ServingStatus(st)
	s.health.SetServingStatus("", hs)
	s.health.SetServingStatus(ServiceName, hs)
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.health.Shutdown()
	s.unsub()
	close(s.done)
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
