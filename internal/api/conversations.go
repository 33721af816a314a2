package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/api/middleware"
)

// AssignTransporter opens the conversation of a shipment.
func (h *Handler) AssignTransporter(w http.ResponseWriter, r *http.Request) {
	var req apiv1.AssignTransporterRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := middleware.UserID(r.Context())
	if err := h.svc.AssignTransporter(r.Context(), userID, chi.URLParam(r, "id"), req.TransporterID); err != nil {
		h.Fail(w, r, err)
		return
	}
	// The new conversation changes who can see which messages.
	h.registry.Refresh(req.TransporterID)
	w.WriteHeader(http.StatusNoContent)
}

// GetConversations lists the caller's conversations.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.svc.GetConversations(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	out := make([]apiv1.Conversation, 0, len(convs))
	for i := range convs {
		out = append(out, apiv1.ConversationFromStore(&convs[i]))
	}
	h.JSON(w, http.StatusOK, out)
}

// GetMessages returns a conversation's history, oldest first.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.GetMessages(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	out := make([]apiv1.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, apiv1.MessageFromStore(&msgs[i]))
	}
	h.JSON(w, http.StatusOK, out)
}

// SendMessage appends a message authored by the caller.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req apiv1.SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, err := h.svc.SendMessage(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"), req.Content, req.AttachmentURL)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, apiv1.MessageFromStore(m))
}

// MarkRead marks the conversation read for the caller and refreshes every
// live unread counter of theirs.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	n, err := h.svc.MarkMessagesAsRead(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.registry.Refresh(userID)
	h.JSON(w, http.StatusOK, apiv1.MarkReadResponse{Marked: n})
}

// GetShipmentForChat returns the chat header.
func (h *Handler) GetShipmentForChat(w http.ResponseWriter, r *http.Request) {
	sh, err := h.svc.GetShipmentForChat(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, apiv1.ChatShipmentFromStore(sh))
}

// GetUnread returns the caller's unread count.
func (h *Handler) GetUnread(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.GetUnreadMessagesCount(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, apiv1.UnreadResponse{Count: n})
}
