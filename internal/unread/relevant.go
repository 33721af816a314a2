package unread

import "github.com/matheus3301/freightdesk/internal/store"

// Relevant reports whether a message change can affect userID's unread
// count. known is the conversation set from the last applied recompute; nil
// means it is not known yet and every change is relevant.
//
// Inserts by other senders are always relevant because a conversation the
// user was just assigned to is not in known yet. The user's own inserts
// never add to their unread count.
func Relevant(c store.Change, userID string, known map[string]struct{}) bool {
	if known == nil {
		return true
	}
	if c.Op == store.OpInsert {
		return c.SenderID != userID
	}
	if c.ConversationID == "" {
		return true
	}
	_, ok := known[c.ConversationID]
	return ok
}
