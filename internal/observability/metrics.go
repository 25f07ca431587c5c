package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwarden_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// DatabaseQueryLatency records repository latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatwarden_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// MessagesIngested counts inbound messages by source and outcome.
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwarden_messages_ingested_total",
		Help: "Inbound messages by source (http, kafka, telegram) and outcome",
	}, []string{"source", "outcome"})

	// ViolationsDetected counts recorded violations by rule type.
	ViolationsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwarden_violations_detected_total",
		Help: "Rule violations recorded, by rule type",
	}, []string{"rule_type"})

	// MatcherErrors counts rules whose predicate failed to evaluate.
	MatcherErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwarden_matcher_errors_total",
		Help: "Rule evaluations that failed and were treated as no-match",
	})

	// NotificationsTotal counts routing outcomes: delivered, failed, suppressed, stale.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwarden_notifications_total",
		Help: "Notification routing outcomes by category and result",
	}, []string{"category", "result"})

	// DispatchQueueDepth is the number of deliveries waiting for a worker.
	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatwarden_dispatch_queue_depth",
		Help: "Deliveries queued for the transport",
	})

	// DispatchAttempts counts transport attempts by result.
	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwarden_dispatch_attempts_total",
		Help: "Transport send attempts by result",
	}, []string{"result"})

	// DecisionsRecorded counts ledger appends by decision.
	DecisionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwarden_decisions_recorded_total",
		Help: "Moderator decisions appended to the ledger",
	}, []string{"decision"})

	// EnforcementActions counts platform ban/unban calls by action and result.
	EnforcementActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwarden_enforcement_actions_total",
		Help: "Platform enforcement calls by action and result",
	}, []string{"action", "result"})

	// WebSocketConnections is the number of live moderator feed connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatwarden_websocket_connections",
		Help: "Active moderator feed WebSocket connections",
	})

	// WebSocketBackpressureDrops counts feed frames dropped because a client was slow.
	WebSocketBackpressureDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatwarden_websocket_backpressure_drops_total",
		Help: "Feed frames dropped due to a full client buffer",
	})
)

// TrackQuery returns a function that records latency when called, for use with defer.
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
