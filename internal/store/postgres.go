package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore handles PostgreSQL database operations. Message changes are
// announced by the messages_notify trigger; a Notifier is only needed when the
// change feed is relayed elsewhere.
type PostgresStore struct {
	pool     *pgxpool.Pool
	notifier Notifier
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SetNotifier installs the change sink. Call it before the store is shared.
func (s *PostgresStore) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *PostgresStore) notify(c Change) {
	if s.notifier != nil {
		s.notifier.Notify(c)
	}
}

// UpsertProfile inserts or updates a profile record.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p *Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, role, full_name, company_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			full_name = EXCLUDED.full_name,
			company_name = EXCLUDED.company_name,
			updated_at = NOW()
	`, p.ID, string(p.Role), p.FullName, p.CompanyName)
	return err
}

// GetProfile retrieves a profile by id.
func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var (
		p    Profile
		role string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, role, full_name, company_name
		FROM profiles WHERE id = $1
	`, id).Scan(&p.ID, &role, &p.FullName, &p.CompanyName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if p.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateShipment inserts a new shipment.
func (s *PostgresStore) CreateShipment(ctx context.Context, sh *Shipment) error {
	if sh.ID == "" {
		sh.ID = uuid.New().String()
	}
	if sh.Status == "" {
		sh.Status = "pending"
	}
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = time.Now()
	}
	var transporter *string
	if sh.TransporterID != "" {
		transporter = &sh.TransporterID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO shipments (id, client_id, transporter_id, origin_city, destination_city, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sh.ID, sh.ClientID, transporter, sh.OriginCity, sh.DestinationCity, sh.Status, sh.CreatedAt)
	return err
}

// AssignTransporter attaches a transporter to a shipment.
func (s *PostgresStore) AssignTransporter(ctx context.Context, shipmentID, transporterID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE shipments SET transporter_id = $1, status = 'assigned' WHERE id = $2
	`, transporterID, shipmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetShipment retrieves a shipment by id.
func (s *PostgresStore) GetShipment(ctx context.Context, id string) (*Shipment, error) {
	var (
		sh          Shipment
		transporter *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, transporter_id, origin_city, destination_city, status, created_at
		FROM shipments WHERE id = $1
	`, id).Scan(&sh.ID, &sh.ClientID, &transporter, &sh.OriginCity, &sh.DestinationCity, &sh.Status, &sh.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if transporter != nil {
		sh.TransporterID = *transporter
	}
	return &sh, nil
}

// ConversationIDs returns the ids of the shipments selected by f.
func (s *PostgresStore) ConversationIDs(ctx context.Context, f ConversationFilter) ([]string, error) {
	if f.Empty() {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT s.id FROM shipments s WHERE `+f.Clause("s", "$1"), f.UserID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListConversations returns userID's conversations, most recently active first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string, f ConversationFilter) ([]Conversation, error) {
	if f.Empty() {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		WITH conv AS (
			SELECT s.id, s.created_at,
				CASE WHEN s.client_id = $1 THEN s.transporter_id ELSE s.client_id END AS other_id
			FROM shipments s
			WHERE `+f.Clause("s", "$1")+`
		)
		SELECT c.id, c.other_id,
			COALESCE(NULLIF(p.full_name, ''), NULLIF(p.company_name, ''), c.other_id),
			COALESCE(lm.content, ''),
			lm.created_at,
			(SELECT COUNT(*) FROM messages m WHERE m.shipment_id = c.id
				AND m.sender_id <> $1 AND NOT m.read)
		FROM conv c
		LEFT JOIN profiles p ON p.id = c.other_id
		LEFT JOIN LATERAL (
			SELECT m.content, m.created_at FROM messages m
			WHERE m.shipment_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		ORDER BY lm.created_at DESC NULLS LAST, c.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var (
			c      Conversation
			lastAt *time.Time
		)
		if err := rows.Scan(&c.ID, &c.OtherPartyID, &c.OtherPartyName, &c.LastMessagePreview, &lastAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		c.LastMessagePreview = truncate(c.LastMessagePreview, previewLen)
		if lastAt != nil {
			c.LastMessageAt = *lastAt
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// InsertMessage appends a message to its conversation.
func (s *PostgresStore) InsertMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.Read = false
	var attachment *string
	if m.AttachmentURL != "" {
		attachment = &m.AttachmentURL
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, shipment_id, sender_id, content, attachment_url, read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`, m.ID, m.ConversationID, m.SenderID, m.Content, attachment, m.CreatedAt)
	if err != nil {
		return err
	}
	s.notify(Change{Op: OpInsert, MessageID: m.ID, ConversationID: m.ConversationID, SenderID: m.SenderID})
	return nil
}

// ListMessages returns the full history of a conversation, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, shipment_id, sender_id, content, attachment_url, read, created_at
		FROM messages
		WHERE shipment_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m          Message
			attachment *string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &attachment, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		if attachment != nil {
			m.AttachmentURL = *attachment
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkRead flips every unread message addressed to readerID in the conversation.
func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET read = TRUE
		WHERE shipment_id = $1 AND sender_id <> $2 AND NOT read
	`, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	n := tag.RowsAffected()
	if n > 0 {
		s.notify(Change{Op: OpUpdate, ConversationID: conversationID})
	}
	return n, nil
}

// CountUnread counts unread messages addressed to userID in the given conversations.
func (s *PostgresStore) CountUnread(ctx context.Context, userID string, conversationIDs []string) (int, error) {
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE shipment_id = ANY($1) AND sender_id <> $2 AND NOT read
	`, conversationIDs, userID).Scan(&count)
	return count, err
}
