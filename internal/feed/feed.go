// Package feed delivers message-table mutations to every in-process
// subscriber through the bus, whatever their origin: the local store, a
// Postgres LISTEN connection, or a Redis channel shared by several daemons.
package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/metrics"
	"github.com/matheus3301/freightdesk/internal/store"
)

// Drivers accepted in configuration.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Channel is the Postgres NOTIFY channel written by the messages trigger.
const Channel = "message_changes"

// Publisher republishes store changes on the bus. It is the memory driver.
type Publisher struct {
	bus *bus.Bus
}

var _ store.Notifier = (*Publisher)(nil)

// NewPublisher creates a bus-backed notifier.
func NewPublisher(b *bus.Bus) *Publisher {
	return &Publisher{bus: b}
}

// Notify publishes c as feed.message.<op>.
func (p *Publisher) Notify(c store.Change) {
	metrics.FeedEvents.WithLabelValues(string(c.Op)).Inc()
	p.bus.Publish(bus.Event{
		Kind:      Kind(c.Op),
		Timestamp: time.Now(),
		Payload:   c,
	})
}

// Kind returns the bus kind for an operation.
func Kind(op store.ChangeOp) string {
	return bus.NamespaceFeed + strings.ToLower(string(op))
}

// Subscribe returns feed events from the bus. Every payload is a store.Change.
func Subscribe(b *bus.Bus, bufSize int) (<-chan bus.Event, func()) {
	return b.Subscribe(bus.NamespaceFeed, bufSize)
}

// EncodeChange serializes a change for remote transports.
func EncodeChange(c store.Change) ([]byte, error) {
	return json.Marshal(c)
}

// DecodeChange parses a payload produced by EncodeChange or by the Postgres
// notify_message_change trigger.
func DecodeChange(data []byte) (store.Change, error) {
	var c store.Change
	if err := json.Unmarshal(data, &c); err != nil {
		return store.Change{}, fmt.Errorf("decode change: %w", err)
	}
	switch c.Op {
	case store.OpInsert, store.OpUpdate, store.OpDelete:
	default:
		return store.Change{}, fmt.Errorf("decode change: unknown op %q", c.Op)
	}
	if c.ConversationID == "" {
		return store.Change{}, fmt.Errorf("decode change: missing conversation_id")
	}
	return c, nil
}
