// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	NotificationsReceived prometheus.Counter
	FailedTxSkipped       prometheus.Counter
	EventsDecoded         *prometheus.CounterVec

	// Identity resolution metrics
	IdentityLookups prometheus.Counter
	IdentityUnknown prometheus.Counter
	LookupLatency   prometheus.Histogram

	// Ledger metrics
	OversellClamps prometheus.Counter
	OpenPositions  prometheus.Gauge

	// Reward metrics
	PointsAwarded       *prometheus.CounterVec
	DuplicateSignatures prometheus.Counter

	// Hub metrics
	Subscribers       prometheus.Gauge
	ChatRateLimited   prometheus.Counter
	MessagesBroadcast *prometheus.CounterVec

	// Sink metrics
	SinkTasksDropped prometheus.Counter
	SinkTaskFailures prometheus.Counter

	// Health metrics
	LastEventUnixSeconds prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "updown_monitor"
	}

	return &Metrics{
		NotificationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "notifications_received_total",
			Help:      "Total log notifications delivered by the subscription",
		}),
		FailedTxSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "failed_tx_skipped_total",
			Help:      "Notifications skipped because the transaction failed",
		}),
		EventsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_decoded_total",
			Help:      "Events decoded from program logs by kind",
		}, []string{"kind"}),

		IdentityLookups: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "lookups_total",
			Help:      "Transaction lookups performed for identity resolution",
		}),
		IdentityUnknown: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "unknown_total",
			Help:      "Events whose identity could not be resolved",
		}),
		LookupLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "lookup_duration_seconds",
			Help:      "Latency of transaction lookups including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		OversellClamps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "oversell_clamps_total",
			Help:      "Sells clamped because they exceeded held shares",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "open_positions",
			Help:      "Entries currently in the position map",
		}),

		PointsAwarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "points_awarded_total",
			Help:      "Reward points credited by kind",
		}, []string{"kind"}),
		DuplicateSignatures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "duplicate_signatures_total",
			Help:      "Reward evaluations skipped as already-processed signatures",
		}),

		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Currently attached websocket subscribers",
		}),
		ChatRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "chat_rate_limited_total",
			Help:      "Chat messages rejected by the sliding-window limiter",
		}),
		MessagesBroadcast: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "messages_broadcast_total",
			Help:      "Messages fanned out to subscribers by type",
		}, []string{"type"}),

		SinkTasksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "tasks_dropped_total",
			Help:      "Outbound sink tasks dropped because the queue was full",
		}),
		SinkTaskFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "task_failures_total",
			Help:      "Outbound sink tasks that returned an error",
		}),

		LastEventUnixSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_unix_seconds",
			Help:      "Wall-clock time of the last processed event",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
