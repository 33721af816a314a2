package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/api/middleware"
	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/messaging"
	"github.com/matheus3301/freightdesk/internal/status"
	"github.com/matheus3301/freightdesk/internal/unread"
)

const maxBodySize = 64 * 1024

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc      *messaging.Service
	registry *unread.Registry
	bus      *bus.Bus
	identity *middleware.Identity
	status   *status.Machine
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func newHandler(d Deps) *Handler {
	return &Handler{
		svc:      d.Service,
		registry: d.Registry,
		bus:      d.Bus,
		identity: d.Identity,
		status:   d.Status,
		logger:   d.Logger,
		upgrader: newUpgrader(d.AllowedOrigins),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, apiv1.Error{Error: message})
}

// Fail maps a service error to its HTTP status.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("user_id", middleware.UserID(r.Context())),
			zap.Error(err),
		)
		h.Error(w, code, "internal error")
		return
	}
	h.Error(w, code, err.Error())
}

// StatusFor returns the HTTP status for a messaging error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, messaging.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, messaging.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, messaging.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, messaging.ErrEmptyMessage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, messaging.ErrNoConversation):
		return http.StatusConflict
	case errors.Is(err, messaging.ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// Health reports liveness and the daemon state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := apiv1.Health{Status: "ok"}
	if h.status != nil {
		resp.State = string(h.status.Current())
	}
	h.JSON(w, http.StatusOK, resp)
}
