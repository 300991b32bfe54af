package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Ingestion store actions.
const (
	ActionInsert    = "insert"
	ActionTouch     = "touch"
	ActionRecovered = "duplicate_recovered"
	ActionRejected  = "rejected"
	ActionFailed    = "failed"
)

var (
	// Orchestration metrics
	OrchestrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_orchestrations_total",
			Help: "Total number of envelopes orchestrated, by outcome reason",
		},
		[]string{"outcome", "reason"},
	)

	TransportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventvault_transport_duration_seconds",
			Help:    "Duration of transport posts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Idempotent store metrics
	IngestionStoreTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_ingestion_store_total",
			Help: "Total number of store ingestion calls, by action",
		},
		[]string{"action"},
	)

	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventvault_ingestion_store_duration_seconds",
			Help:    "Duration of store ingestion calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DLQ metrics
	DLQWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_dlq_writes_total",
			Help: "Total number of DLQ records written",
		},
		[]string{"kind"},
	)

	DLQPostFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_dlq_post_failures_total",
			Help: "Total number of failed DLQ transport posts",
		},
		[]string{"kind"},
	)

	DLQIndexErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_dlq_index_errors_total",
			Help: "Total number of DLQ index bootstrap failures",
		},
		[]string{"kind"},
	)

	// Replay metrics
	ReplaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_replays_total",
			Help: "Total number of replay calls, by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	ReplayMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_replay_matched_total",
			Help: "Total number of candidates selected for replay",
		},
		[]string{"mode"},
	)

	ReplayResubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_replay_resubmitted_total",
			Help: "Total number of candidates successfully resubmitted",
		},
		[]string{"mode"},
	)

	// Consumer metrics
	ConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventvault_consumer_messages_total",
			Help: "Total number of anchored envelopes consumed",
		},
		[]string{"outcome"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventvault_rate_limit_hits_total",
			Help: "Total number of rate limited ingestion requests",
		},
	)
)
