package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightdesk_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freightdesk_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Messaging metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freightdesk_messages_sent_total",
			Help: "Total messages sent",
		},
	)

	MessagesMarkedRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freightdesk_messages_marked_read_total",
			Help: "Total messages flipped to read",
		},
	)

	// Unread synchronizer metrics
	UnreadRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightdesk_unread_recomputes_total",
			Help: "Unread count recomputations",
		},
		[]string{"result"}, // "applied", "stale", "error", "discarded"
	)

	ActiveSynchronizers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "freightdesk_unread_synchronizers",
			Help: "Live unread count synchronizers",
		},
	)

	// Change feed metrics
	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightdesk_feed_events_total",
			Help: "Message change events delivered to the bus",
		},
		[]string{"op"},
	)
)
