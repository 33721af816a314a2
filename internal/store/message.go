package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// InsertMessage appends a message to its conversation. ID and CreatedAt are
// filled in when empty; Read always starts false.
func (db *DB) InsertMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.Read = false
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, shipment_id, sender_id, content, attachment_url, read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, nullable(m.AttachmentURL), m.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	db.notify(Change{Op: OpInsert, MessageID: m.ID, ConversationID: m.ConversationID, SenderID: m.SenderID})
	return nil
}

// ListMessages returns the full history of a conversation, oldest first.
func (db *DB) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, shipment_id, sender_id, content, attachment_url, read, created_at
		FROM messages
		WHERE shipment_id = ?
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var (
			m          Message
			attachment sql.NullString
			createdAt  int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &attachment, &m.Read, &createdAt); err != nil {
			return nil, err
		}
		m.AttachmentURL = attachment.String
		m.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkRead flips every unread message addressed to readerID in the
// conversation to read. Messages sent by readerID are never touched.
func (db *DB) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET read = 1
		WHERE shipment_id = ? AND sender_id <> ? AND read = 0`,
		conversationID, readerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		db.notify(Change{Op: OpUpdate, ConversationID: conversationID})
	}
	return n, nil
}

// CountUnread counts messages in the given conversations that were not sent
// by userID and are still unread.
func (db *DB) CountUnread(ctx context.Context, userID string, conversationIDs []string) (int, error) {
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(conversationIDs)+1)
	args = append(args, userID)
	for _, id := range conversationIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(conversationIDs)), ",")

	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE sender_id <> ? AND read = 0 AND shipment_id IN (`+placeholders+`)`, args...).
		Scan(&count)
	return count, err
}
