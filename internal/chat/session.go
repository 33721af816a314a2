// Package chat holds the client-side state of one open conversation.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/matheus3301/freightdesk/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrEmptyMessage is returned by Send for whitespace-only text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight is returned by Send while a previous send is pending.
	ErrSendInFlight = errors.New("a message is already being sent")
	// ErrNotReady is returned by Send before the history has loaded.
	ErrNotReady = errors.New("conversation is still loading")
)

// State is the lifecycle phase of a Session.
type State int

const (
	Loading State = iota
	Ready
	Sending
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Sending:
		return "sending"
	}
	return "unknown"
}

// Backend is the server side of a chat session, already scoped to the viewer.
type Backend interface {
	GetMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	SendMessage(ctx context.Context, conversationID, text string) (*store.Message, error)
	MarkMessagesAsRead(ctx context.Context, conversationID string) (int, error)
}

// Hooks are notified as the session progresses. Any of them may be nil and
// none may block.
type Hooks struct {
	// Refresh asks every unread counter of the viewer to recompute.
	Refresh func()
	// Reload asks the hosting view to refetch its own data.
	Reload func()
	// OnChange fires after the state, history or draft changed.
	OnChange func()
}

// Session is an open conversation: Loading until the history arrives, then
// Ready, and Sending while a message is on its way.
type Session struct {
	conversationID string
	backend        Backend
	hooks          Hooks
	logger         *zap.Logger

	mu       sync.Mutex
	state    State
	messages []store.Message
	draft    string
	entries  int
	// version counts history mutations; a fetch that started at an older
	// version is merged instead of replacing the history.
	version     uint64
	syncPending bool
}

// NewSession creates a session in the Loading state. Call Open to load it.
func NewSession(conversationID string, backend Backend, hooks Hooks, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		conversationID: conversationID,
		backend:        backend,
		hooks:          hooks,
		logger:         logger.With(zap.String("conversation_id", conversationID)),
	}
}

// ConversationID returns the id of the open conversation.
func (s *Session) ConversationID() string {
	return s.conversationID
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the history, oldest first.
func (s *Session) Messages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Message(nil), s.messages...)
}

// Draft returns the composer text.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the composer text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// ReadyEntries returns how many times the session entered Ready.
func (s *Session) ReadyEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

// Open loads the history and enters Ready. On failure the session stays in
// Loading and Open may be retried.
func (s *Session) Open(ctx context.Context) error {
	msgs, err := s.backend.GetMessages(ctx, s.conversationID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.messages = msgs
	s.version++
	s.syncPending = false
	s.mu.Unlock()
	s.enterReady(ctx)
	return nil
}

// Sync refetches the history after a realtime signal and re-enters Ready.
// While loading it is a no-op since Open fetches anyway. While sending it is
// deferred: Send refetches before its own Ready entry, so nothing is marked
// read without having been fetched.
func (s *Session) Sync(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Loading:
		s.mu.Unlock()
		return nil
	case Sending:
		s.syncPending = true
		s.mu.Unlock()
		return nil
	}
	start := s.version
	s.mu.Unlock()

	msgs, err := s.backend.GetMessages(ctx, s.conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == Sending {
		// A send began while fetching; it will refetch when it ends.
		s.syncPending = true
		s.mu.Unlock()
		return nil
	}
	s.applyFetch(start, msgs)
	s.mu.Unlock()
	s.enterReady(ctx)
	return nil
}

// applyFetch installs a fetched history. If the history changed since the
// fetch began, the fetch is merged so newer local entries survive. Callers
// hold mu.
func (s *Session) applyFetch(start uint64, msgs []store.Message) {
	if s.version == start {
		s.messages = msgs
	} else {
		s.messages = mergeHistory(s.messages, msgs)
	}
	s.version++
}

// mergeHistory returns the union of two histories by message id, ordered by
// creation time then id.
func mergeHistory(local, fetched []store.Message) []store.Message {
	out := make([]store.Message, 0, len(local)+len(fetched))
	seen := make(map[string]struct{}, len(local)+len(fetched))
	for _, list := range [][]store.Message{fetched, local} {
		for _, m := range list {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Send delivers text. On success the message is appended, the draft cleared
// and the session re-enters Ready. On failure the draft keeps the text and
// the session returns to Ready. A Sync requested meanwhile is carried out
// before returning.
func (s *Session) Send(ctx context.Context, text string) (*store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	s.mu.Lock()
	switch s.state {
	case Sending:
		s.mu.Unlock()
		return nil, ErrSendInFlight
	case Loading:
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.state = Sending
	s.draft = text
	s.mu.Unlock()
	s.changed()

	m, err := s.backend.SendMessage(ctx, s.conversationID, text)
	if err != nil {
		s.mu.Lock()
		s.state = Ready
		pending := s.syncPending
		s.syncPending = false
		s.mu.Unlock()
		s.changed()
		s.logger.Warn("send failed", zap.Error(err))
		if pending {
			if serr := s.Sync(ctx); serr != nil {
				s.logger.Debug("deferred sync failed", zap.Error(serr))
			}
		}
		return nil, err
	}

	s.mu.Lock()
	if !s.has(m.ID) {
		s.messages = append(s.messages, *m)
		s.version++
	}
	s.draft = ""
	pending := s.syncPending
	s.syncPending = false
	start := s.version
	s.mu.Unlock()

	if pending {
		msgs, ferr := s.backend.GetMessages(ctx, s.conversationID)
		if ferr != nil {
			s.logger.Debug("deferred sync failed", zap.Error(ferr))
		} else {
			s.mu.Lock()
			// Keep the sent message even if the fetch raced ahead of it.
			s.applyFetch(start, msgs)
			if !s.has(m.ID) {
				s.messages = mergeHistory(s.messages, []store.Message{*m})
			}
			s.mu.Unlock()
		}
	}
	s.enterReady(ctx)
	return m, nil
}

// has reports whether the history already contains id. Callers hold mu.
func (s *Session) has(id string) bool {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return true
		}
	}
	return false
}

// enterReady marks the conversation read once for this entry, then lets the
// counters and the host catch up.
func (s *Session) enterReady(ctx context.Context) {
	s.mu.Lock()
	s.state = Ready
	s.entries++
	s.mu.Unlock()

	if _, err := s.backend.MarkMessagesAsRead(ctx, s.conversationID); err != nil {
		s.logger.Debug("mark read failed", zap.Error(err))
	}
	if s.hooks.Refresh != nil {
		s.hooks.Refresh()
	}
	if s.hooks.Reload != nil {
		s.hooks.Reload()
	}
	s.changed()
}

func (s *Session) changed() {
	if s.hooks.OnChange != nil {
		s.hooks.OnChange()
	}
}
