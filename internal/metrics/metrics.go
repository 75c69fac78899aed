package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter metrics (monotonically increasing)
var (
	// AdmissionsTotal counts admission decisions by outcome (allowed, denied)
	// and reason (none, window, quota, fail_open)
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "morphic_admissions_total",
			Help: "Total number of admission decisions",
		},
		[]string{"outcome", "reason"},
	)

	// StoreErrorsTotal counts key-value store failures by operation
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "morphic_store_errors_total",
			Help: "Total number of key-value store errors",
		},
		[]string{"operation"},
	)

	// ModelUsageRecordedTotal counts recorded model-usage events
	ModelUsageRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "morphic_model_usage_recorded_total",
			Help: "Total number of model usage events recorded",
		},
	)

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "morphic_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Histogram metrics (distributions)
var (
	// HTTPRequestDuration tracks HTTP request durations by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "morphic_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SnapshotDuration tracks analytics snapshot computation time
	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "morphic_stats_snapshot_duration_seconds",
			Help:    "Analytics snapshot computation time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
