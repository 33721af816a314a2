package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by mutations that target a row which does not exist.
// Point reads return a nil value instead.
var ErrNotFound = errors.New("not found")

// Role is the closed set of marketplace account kinds.
type Role string

const (
	RoleClient      Role = "client"
	RoleTransporter Role = "transporter"
	RoleAdmin       Role = "admin"
)

// ParseRole validates a stored or user-supplied role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleClient, RoleTransporter, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Profile is the per-user account row.
type Profile struct {
	ID          string
	Role        Role
	FullName    string
	CompanyName string
}

// DisplayName returns the best human-readable name for the profile.
func (p *Profile) DisplayName() string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.CompanyName != "":
		return p.CompanyName
	}
	return p.ID
}

// Shipment is a posted load. Its id doubles as the conversation id once a
// transporter is assigned.
type Shipment struct {
	ID              string
	ClientID        string
	TransporterID   string // empty until assigned
	OriginCity      string
	DestinationCity string
	Status          string
	CreatedAt       time.Time
}

// HasConversation reports whether the shipment has two parties.
func (s *Shipment) HasConversation() bool {
	return s.TransporterID != ""
}

// IsParty reports whether userID is the client or the assigned transporter.
func (s *Shipment) IsParty(userID string) bool {
	return userID != "" && (s.ClientID == userID || s.TransporterID == userID)
}

// OtherParty returns the participant that is not userID.
func (s *Shipment) OtherParty(userID string) string {
	if s.ClientID == userID {
		return s.TransporterID
	}
	return s.ClientID
}

// Message is one entry of a shipment conversation. Read is the recipient's flag.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	AttachmentURL  string
	Read           bool
	CreatedAt      time.Time
}

// Conversation is a row of a user's conversation list.
type Conversation struct {
	ID                 string
	OtherPartyID       string
	OtherPartyName     string
	LastMessagePreview string
	LastMessageAt      time.Time // zero when the conversation has no messages
	UnreadCount        int
}

// ChatShipment is the header shown above a chat session.
type ChatShipment struct {
	ID              string
	OriginCity      string
	DestinationCity string
	OtherPartyName  string
	OtherPartyRole  Role
}

// ChangeOp mirrors the row operation that produced a Change.
type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)

// Change describes a mutation of the messages table. MessageID and SenderID
// are empty for bulk read-state updates.
type Change struct {
	Op             ChangeOp `json:"op"`
	MessageID      string   `json:"message_id,omitempty"`
	ConversationID string   `json:"conversation_id"`
	SenderID       string   `json:"sender_id,omitempty"`
}

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}
