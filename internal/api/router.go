// Package api serves the freightdesk HTTP surface: conversation and chat
// actions plus the live unread counter stream.
package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matheus3301/freightdesk/internal/api/middleware"
	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/messaging"
	"github.com/matheus3301/freightdesk/internal/status"
	"github.com/matheus3301/freightdesk/internal/unread"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Service        *messaging.Service
	Registry       *unread.Registry
	Bus            *bus.Bus
	Identity       *middleware.Identity
	Status         *status.Machine
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(d.Identity.Middleware)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.UserHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := newHandler(d)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.Login)
		r.Get("/session", h.WhoAmI)
		r.Delete("/session", h.Logout)

		r.Put("/profile", h.UpsertProfile)
		r.Post("/shipments", h.PostShipment)
		r.Put("/shipments/{id}/transporter", h.AssignTransporter)

		r.Get("/conversations", h.GetConversations)
		r.Get("/conversations/{id}/messages", h.GetMessages)
		r.Post("/conversations/{id}/messages", h.SendMessage)
		r.Post("/conversations/{id}/read", h.MarkRead)
		r.Get("/conversations/{id}/shipment", h.GetShipmentForChat)
		r.Get("/unread", h.GetUnread)
	})
	r.Get("/ws/unread", h.UnreadStream)

	return r
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowed),
	}
}
