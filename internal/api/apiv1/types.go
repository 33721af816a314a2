// Package apiv1 holds the JSON shapes exchanged between freightd and its
// clients.
package apiv1

import (
	"time"

	"github.com/matheus3301/freightdesk/internal/store"
)

// FrameUnread is the type of websocket frames carrying an unread count.
const FrameUnread = "unread"

type Profile struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	FullName    string `json:"full_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

type Shipment struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	TransporterID   string    `json:"transporter_id,omitempty"`
	OriginCity      string    `json:"origin_city"`
	DestinationCity string    `json:"destination_city"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

type Conversation struct {
	ID                 string     `json:"id"`
	OtherPartyID       string     `json:"other_party_id"`
	OtherPartyName     string     `json:"other_party_name"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
}

type ChatShipment struct {
	ID              string `json:"id"`
	OriginCity      string `json:"origin_city"`
	DestinationCity string `json:"destination_city"`
	OtherPartyName  string `json:"other_party_name"`
	OtherPartyRole  string `json:"other_party_role,omitempty"`
}

type LoginRequest struct {
	UserID string `json:"user_id"`
}

type Session struct {
	UserID string `json:"user_id"`
}

type CreateShipmentRequest struct {
	OriginCity      string `json:"origin_city"`
	DestinationCity string `json:"destination_city"`
}

type AssignTransporterRequest struct {
	TransporterID string `json:"transporter_id"`
}

type SendMessageRequest struct {
	Content       string `json:"content"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

type MarkReadResponse struct {
	Marked int `json:"marked"`
}

type UnreadResponse struct {
	Count int `json:"count"`
}

// UnreadFrame is pushed on /ws/unread whenever the count changes.
type UnreadFrame struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type Health struct {
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
}

type Error struct {
	Error string `json:"error"`
}

func ProfileFromStore(p *store.Profile) Profile {
	return Profile{ID: p.ID, Role: string(p.Role), FullName: p.FullName, CompanyName: p.CompanyName}
}

func ShipmentFromStore(s *store.Shipment) Shipment {
	return Shipment{
		ID:              s.ID,
		ClientID:        s.ClientID,
		TransporterID:   s.TransporterID,
		OriginCity:      s.OriginCity,
		DestinationCity: s.DestinationCity,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
	}
}

func MessageFromStore(m *store.Message) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		AttachmentURL:  m.AttachmentURL,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
}

// Store converts the wire message back to the domain type.
func (m Message) Store() store.Message {
	return store.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		AttachmentURL:  m.AttachmentURL,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
}

func ConversationFromStore(c *store.Conversation) Conversation {
	out := Conversation{
		ID:                 c.ID,
		OtherPartyID:       c.OtherPartyID,
		OtherPartyName:     c.OtherPartyName,
		LastMessagePreview: c.LastMessagePreview,
		UnreadCount:        c.UnreadCount,
	}
	if !c.LastMessageAt.IsZero() {
		t := c.LastMessageAt
		out.LastMessageAt = &t
	}
	return out
}

func ChatShipmentFromStore(c *store.ChatShipment) ChatShipment {
	return ChatShipment{
		ID:              c.ID,
		OriginCity:      c.OriginCity,
		DestinationCity: c.DestinationCity,
		OtherPartyName:  c.OtherPartyName,
		OtherPartyRole:  string(c.OtherPartyRole),
	}
}
