package api

import (
	"net/http"
	"strings"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/api/middleware"
	"github.com/matheus3301/freightdesk/internal/messaging"
	"github.com/matheus3301/freightdesk/internal/store"
)

// Login binds the session cookie to a user id.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req apiv1.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := h.identity.Login(w, r, userID); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, apiv1.Session{UserID: userID})
}

// WhoAmI returns the caller's identity.
func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		h.Fail(w, r, messaging.ErrNotAuthenticated)
		return
	}
	h.JSON(w, http.StatusOK, apiv1.Session{UserID: userID})
}

// Logout clears the session cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.Logout(w, r); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertProfile creates or updates the caller's profile.
func (h *Handler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	var req apiv1.Profile
	if !h.decode(w, r, &req) {
		return
	}
	p := &store.Profile{
		Role:        store.Role(req.Role),
		FullName:    strings.TrimSpace(req.FullName),
		CompanyName: strings.TrimSpace(req.CompanyName),
	}
	if err := h.svc.UpsertProfile(r.Context(), middleware.UserID(r.Context()), p); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, apiv1.ProfileFromStore(p))
}

// PostShipment creates a shipment owned by the caller.
func (h *Handler) PostShipment(w http.ResponseWriter, r *http.Request) {
	var req apiv1.CreateShipmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	sh := &store.Shipment{
		OriginCity:      strings.TrimSpace(req.OriginCity),
		DestinationCity: strings.TrimSpace(req.DestinationCity),
	}
	if err := h.svc.PostShipment(r.Context(), middleware.UserID(r.Context()), sh); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, apiv1.ShipmentFromStore(sh))
}
