// Package messaging implements the server actions behind the conversation
// list, the chat session and the unread counter. Every action takes the
// caller's user id as resolved by the identity layer.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/freightdesk/internal/metrics"
	"github.com/matheus3301/freightdesk/internal/store"
	"go.uber.org/zap"
)

// Service exposes conversation reads and writes over a store.Store.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// NewService creates a messaging service.
func NewService(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

// filterFor resolves the caller's role and maps it to a conversation filter.
// A caller without a profile has no conversations.
func (s *Service) filterFor(ctx context.Context, userID string) (store.ConversationFilter, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return store.ConversationFilter{}, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return store.ConversationFilter{}, nil
	}
	return store.ConversationFilterFor(p.Role, userID), nil
}

// conversation loads a shipment and checks that userID may use its
// conversation.
func (s *Service) conversation(ctx context.Context, userID, conversationID string) (*store.Shipment, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	sh, err := s.store.GetShipment(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	if sh == nil {
		return nil, fmt.Errorf("shipment %s: %w", conversationID, ErrNotFound)
	}
	if !sh.IsParty(userID) {
		return nil, ErrForbidden
	}
	if !sh.HasConversation() {
		return nil, fmt.Errorf("shipment %s: %w", conversationID, ErrNoConversation)
	}
	return sh, nil
}

// GetConversations lists the caller's conversations, most recent activity
// first.
func (s *Service) GetConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	f, err := s.filterFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if f.Empty() {
		return []store.Conversation{}, nil
	}
	convs, err := s.store.ListConversations(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	return convs, nil
}

// GetMessages returns a conversation's history in ascending creation order.
func (s *Service) GetMessages(ctx context.Context, userID, conversationID string) ([]store.Message, error) {
	if _, err := s.conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// GetShipmentForChat returns the header of a chat session.
func (s *Service) GetShipmentForChat(ctx context.Context, userID, conversationID string) (*store.ChatShipment, error) {
	sh, err := s.conversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	out := &store.ChatShipment{
		ID:              sh.ID,
		OriginCity:      sh.OriginCity,
		DestinationCity: sh.DestinationCity,
	}
	other, err := s.store.GetProfile(ctx, sh.OtherParty(userID))
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if other != nil {
		out.OtherPartyName = other.DisplayName()
		out.OtherPartyRole = other.Role
	} else {
		out.OtherPartyName = sh.OtherParty(userID)
	}
	return out, nil
}

// SendMessage appends a message authored by the caller. Whitespace-only text
// is rejected before touching the store; other text is stored as given.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID, text, attachmentURL string) (*store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	m := &store.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        text,
		AttachmentURL:  strings.TrimSpace(attachmentURL),
	}
	if err := s.store.InsertMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	metrics.MessagesSent.Inc()
	s.logger.Debug("message sent",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", m.ID),
	)
	return m, nil
}

// MarkMessagesAsRead flips the read flag of every message in the
// conversation that the caller received. It returns how many changed.
func (s *Service) MarkMessagesAsRead(ctx context.Context, userID, conversationID string) (int, error) {
	if _, err := s.conversation(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkRead(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	metrics.MessagesMarkedRead.Add(float64(n))
	return int(n), nil
}

// GetUnreadMessagesCount returns the caller's current unread count. It is the
// seed of an unread.Synchronizer.
func (s *Service) GetUnreadMessagesCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrNotAuthenticated
	}
	n, _, err := s.Recompute(ctx, userID)
	return n, err
}

// Recompute counts userID's unread messages from the store and returns the
// conversation ids the count covers. When the user has no conversations the
// count query is not issued.
func (s *Service) Recompute(ctx context.Context, userID string) (int, []string, error) {
	if userID == "" {
		return 0, nil, nil
	}
	f, err := s.filterFor(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	if f.Empty() {
		return 0, []string{}, nil
	}
	ids, err := s.store.ConversationIDs(ctx, f)
	if err != nil {
		return 0, nil, fmt.Errorf("conversation ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, ids, nil
	}
	n, err := s.store.CountUnread(ctx, userID, ids)
	if err != nil {
		return 0, nil, fmt.Errorf("count unread: %w", err)
	}
	return n, ids, nil
}

// UpsertProfile creates or updates the caller's own profile.
func (s *Service) UpsertProfile(ctx context.Context, userID string, p *store.Profile) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	if _, err := store.ParseRole(string(p.Role)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p.ID = userID
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// PostShipment creates a shipment owned by the caller, who must be a client.
func (s *Service) PostShipment(ctx context.Context, userID string, sh *store.Shipment) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	if p == nil || p.Role != store.RoleClient {
		return ErrForbidden
	}
	if strings.TrimSpace(sh.OriginCity) == "" || strings.TrimSpace(sh.DestinationCity) == "" {
		return fmt.Errorf("%w: origin and destination are required", ErrInvalid)
	}
	sh.ClientID = userID
	sh.TransporterID = ""
	if err := s.store.CreateShipment(ctx, sh); err != nil {
		return fmt.Errorf("create shipment: %w", err)
	}
	return nil
}

// AssignTransporter attaches a transporter to one of the caller's shipments,
// opening its conversation. Admins may assign any shipment.
func (s *Service) AssignTransporter(ctx context.Context, userID, shipmentID, transporterID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	caller, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	sh, err := s.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return fmt.Errorf("get shipment: %w", err)
	}
	if sh == nil {
		return fmt.Errorf("shipment %s: %w", shipmentID, ErrNotFound)
	}
	if caller == nil || (caller.Role != store.RoleAdmin && sh.ClientID != userID) {
		return ErrForbidden
	}
	t, err := s.store.GetProfile(ctx, transporterID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	if t == nil || t.Role != store.RoleTransporter {
		return fmt.Errorf("%w: %s is not a transporter", ErrInvalid, transporterID)
	}
	if err := s.store.AssignTransporter(ctx, shipmentID, transporterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("shipment %s: %w", shipmentID, ErrNotFound)
		}
		return fmt.Errorf("assign transporter: %w", err)
	}
	s.logger.Info("transporter assigned",
		zap.String("shipment_id", shipmentID),
		zap.String("transporter_id", transporterID),
	)
	return nil
}

// Caller binds a Service to one user. It satisfies chat.Backend for
// in-process chat sessions.
type Caller struct {
	svc    *Service
	userID string
}

// For returns the service as seen by userID.
func (s *Service) For(userID string) *Caller {
	return &Caller{svc: s, userID: userID}
}

// GetMessages returns the conversation history.
func (c *Caller) GetMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	return c.svc.GetMessages(ctx, c.userID, conversationID)
}

// SendMessage sends text without an attachment.
func (c *Caller) SendMessage(ctx context.Context, conversationID, text string) (*store.Message, error) {
	return c.svc.SendMessage(ctx, c.userID, conversationID, text, "")
}

// MarkMessagesAsRead marks the conversation read for the bound user.
func (c *Caller) MarkMessagesAsRead(ctx context.Context, conversationID string) (int, error) {
	return c.svc.MarkMessagesAsRead(ctx, c.userID, conversationID)
}
