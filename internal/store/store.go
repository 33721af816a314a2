package store

import "context"

// Notifier receives every message mutation committed by a store.
type Notifier interface {
	Notify(Change)
}

// Store is the relational backend of the marketplace messaging core.
// DB (SQLite) and PostgresStore implement it.
type Store interface {
	Close() error
	Ping(ctx context.Context) error
	Migrate() (*MigrateResult, error)
	SetNotifier(n Notifier)

	// Profiles
	UpsertProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// Shipments
	CreateShipment(ctx context.Context, s *Shipment) error
	AssignTransporter(ctx context.Context, shipmentID, transporterID string) error
	GetShipment(ctx context.Context, id string) (*Shipment, error)

	// Conversations
	ConversationIDs(ctx context.Context, f ConversationFilter) ([]string, error)
	ListConversations(ctx context.Context, userID string, f ConversationFilter) ([]Conversation, error)

	// Messages
	InsertMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	CountUnread(ctx context.Context, userID string, conversationIDs []string) (int, error)
}

const previewLen = 100

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
