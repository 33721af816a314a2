package store

import (
	"context"
	"time"
)

// ConversationIDs returns the ids of the shipments selected by f.
func (db *DB) ConversationIDs(ctx context.Context, f ConversationFilter) ([]string, error) {
	if f.Empty() {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `SELECT s.id FROM shipments s WHERE `+f.Clause("s", "?"), f.UserID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListConversations returns userID's conversations, most recently active first.
// Names are resolved from the other party's profile with fallback:
// full_name -> company_name -> id
func (db *DB) ListConversations(ctx context.Context, userID string, f ConversationFilter) ([]Conversation, error) {
	if f.Empty() {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `
		WITH conv AS (
			SELECT s.id, s.created_at,
				CASE WHEN s.client_id = ?1 THEN s.transporter_id ELSE s.client_id END AS other_id
			FROM shipments s
			WHERE `+f.Clause("s", "?1")+`
		)
		SELECT c.id, c.other_id,
			COALESCE(NULLIF(p.full_name,''), NULLIF(p.company_name,''), c.other_id) AS other_name,
			COALESCE((SELECT m.content FROM messages m WHERE m.shipment_id = c.id
				ORDER BY m.created_at DESC, m.id DESC LIMIT 1), '') AS preview,
			COALESCE((SELECT MAX(m.created_at) FROM messages m WHERE m.shipment_id = c.id), 0) AS last_at,
			(SELECT COUNT(*) FROM messages m WHERE m.shipment_id = c.id
				AND m.sender_id <> ?1 AND m.read = 0) AS unread
		FROM conv c
		LEFT JOIN profiles p ON p.id = c.other_id
		ORDER BY last_at DESC, c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var (
			c      Conversation
			lastAt int64
		)
		if err := rows.Scan(&c.ID, &c.OtherPartyID, &c.OtherPartyName, &c.LastMessagePreview, &lastAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		c.LastMessagePreview = truncate(c.LastMessagePreview, previewLen)
		if lastAt > 0 {
			c.LastMessageAt = time.UnixMilli(lastAt)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
