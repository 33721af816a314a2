// Package unread keeps a user's unread message count current. A Synchronizer
// starts from a server-provided seed and recomputes the count from the store
// whenever the change feed reports a relevant mutation.
package unread

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/metrics"
	"github.com/matheus3301/freightdesk/internal/store"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	feedBuffer     = 64
)

// Counter computes a user's unread count from the source of truth along with
// the conversation ids it was computed over.
type Counter interface {
	Recompute(ctx context.Context, userID string) (int, []string, error)
}

// Changed is the payload of unread.changed bus events.
type Changed struct {
	UserID string
	Count  int
}

// Options configures a Synchronizer.
type Options struct {
	UserID   string
	Seed     int
	Counter  Counter
	Bus      *bus.Bus
	Registry *Registry
	// OnChange receives every applied count that differs from the previous
	// one, in application order. It must not block.
	OnChange func(count int)
	Logger   *zap.Logger
	// Timeout bounds one recompute. Zero means 10s.
	Timeout time.Duration
}

// Synchronizer tracks one user's unread count. The zero value is not usable;
// create one with NewSynchronizer.
type Synchronizer struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	count   int
	known   map[string]struct{}
	nextSeq uint64
	applied uint64
	started bool
	closed  bool

	// pubMu keeps OnChange calls in application order.
	pubMu sync.Mutex

	ctx        context.Context
	cancel     context.CancelFunc
	unsub      func()
	unregister func()
	wg         sync.WaitGroup
}

// NewSynchronizer creates a synchronizer whose count starts at opts.Seed.
// With an empty UserID the synchronizer is inert: its count is 0 and Start
// does nothing.
func NewSynchronizer(opts Options) *Synchronizer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	s := &Synchronizer{
		opts:   opts,
		logger: opts.Logger.With(zap.String("user_id", opts.UserID)),
	}
	if opts.UserID != "" {
		s.count = opts.Seed
	}
	return s
}

// Inert reports whether the synchronizer has no user to track.
func (s *Synchronizer) Inert() bool {
	return s.opts.UserID == ""
}

// Count returns the last applied count.
func (s *Synchronizer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Start subscribes to the change feed and registers with the refresh
// registry. Calling it twice, after Close, or on an inert synchronizer is a
// no-op.
func (s *Synchronizer) Start(ctx context.Context) {
	if s.Inert() {
		return
	}
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.opts.Registry != nil {
		s.unregister = s.opts.Registry.Register(s.opts.UserID, s.Refresh)
	}
	metrics.ActiveSynchronizers.Inc()

	if s.opts.Bus == nil {
		return
	}
	ch, unsub := s.opts.Bus.Subscribe(bus.NamespaceFeed, feedBuffer)
	s.unsub = unsub

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case evt := <-ch:
				s.handleEvent(evt)
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Synchronizer) handleEvent(evt bus.Event) {
	c, ok := evt.Payload.(store.Change)
	if !ok {
		return
	}
	s.mu.Lock()
	known := s.known
	s.mu.Unlock()
	if !Relevant(c, s.opts.UserID, known) {
		return
	}
	s.Refresh()
}

// Refresh schedules a recompute. It returns immediately.
func (s *Synchronizer) Refresh() {
	s.mu.Lock()
	if !s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.nextSeq++
	seq := s.nextSeq
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.recompute(seq)
	}()
}

func (s *Synchronizer) recompute(seq uint64) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()
	count, ids, err := s.opts.Counter.Recompute(ctx, s.opts.UserID)
	s.apply(seq, count, ids, err)
}

// apply installs the result of recompute number seq unless a later one was
// already applied or the synchronizer is closed.
func (s *Synchronizer) apply(seq uint64, count int, ids []string, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.UnreadRecomputes.WithLabelValues("discarded").Inc()
		return
	}
	if err != nil {
		s.mu.Unlock()
		metrics.UnreadRecomputes.WithLabelValues("error").Inc()
		s.logger.Debug("unread recompute failed", zap.Uint64("seq", seq), zap.Error(err))
		return
	}
	if seq <= s.applied {
		s.mu.Unlock()
		metrics.UnreadRecomputes.WithLabelValues("stale").Inc()
		return
	}
	s.applied = seq
	s.known = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.known[id] = struct{}{}
	}
	changed := count != s.count
	s.count = count
	metrics.UnreadRecomputes.WithLabelValues("applied").Inc()
	if !changed {
		s.mu.Unlock()
		return
	}
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	if s.opts.OnChange != nil {
		s.opts.OnChange(count)
	}
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(bus.Event{
			Kind:    bus.KindUnreadChanged,
			Payload: Changed{UserID: s.opts.UserID, Count: count},
		})
	}
}

// Close stops the synchronizer: it unsubscribes from the feed, unregisters
// from the registry, cancels in-flight recomputes and waits for them.
// Results that arrive afterwards are ignored. Close is idempotent.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if !started {
		return
	}
	if s.unsub != nil {
		s.unsub()
	}
	if s.unregister != nil {
		s.unregister()
	}
	s.cancel()
	s.wg.Wait()
	metrics.ActiveSynchronizers.Dec()
}
