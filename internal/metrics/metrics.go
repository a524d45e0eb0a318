// Package metrics registers the Prometheus metrics used by the service.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// External-call counters and histograms.
var (
	// ExternalCallsTotal counts calls to upstream services labelled by target
	// ("geocoder", "model", "image_fetch") and outcome ("success", "error").
	ExternalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundtruth_external_calls_total",
			Help: "Total calls to external services.",
		},
		[]string{"target", "status"},
	)

	// ExternalCallDuration observes upstream call latency in seconds.
	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groundtruth_external_call_duration_seconds",
			Help:    "Upstream call duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"target"},
	)

	// CacheLookups counts cache reads labelled by operation
	// ("geocode", "location_extract", "image_verify") and result ("hit", "miss").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundtruth_cache_lookups_total",
			Help: "Total cache lookups by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// Verdicts counts completed image verifications by final status
	// ("verified", "fake", "uncertain").
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundtruth_verdicts_total",
			Help: "Total image verification verdicts by status.",
		},
		[]string{"status"},
	)

	// QueueDepth tracks the number of verification jobs waiting in the queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundtruth_verify_queue_depth",
			Help: "Verification jobs currently queued.",
		},
	)

	// QueueDropped counts verification jobs rejected because the queue was full.
	QueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groundtruth_verify_queue_dropped_total",
			Help: "Verification jobs dropped because the queue was full.",
		},
	)

	// VerificationsStuckPending counts background verifications that failed and
	// left their report in pending status.
	VerificationsStuckPending = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groundtruth_verifications_stuck_pending_total",
			Help: "Background verifications that failed leaving the report pending.",
		},
	)
)
