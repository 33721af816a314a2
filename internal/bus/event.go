package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix, so the
// trailing-dot namespaces below match every kind underneath them.
const (
	NamespaceFeed   = "feed.message."
	NamespaceUnread = "unread."
	NamespaceDaemon = "daemon."

	KindUnreadChanged = "unread.changed"
	KindStatusChanged = "daemon.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
