package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dataset cache
	DatasetCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetdash_dataset_cache_hits_total",
			Help: "Dataset requests served from the in-memory snapshot",
		},
	)

	DatasetCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetdash_dataset_cache_misses_total",
			Help: "Dataset requests that required a sheet fetch",
		},
	)

	DatasetFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sheetdash_dataset_fetch_duration_seconds",
			Help:    "Duration of sheet fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"}, // "success", "error"
	)

	DatasetRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sheetdash_dataset_rows",
			Help: "Rows held by the current dataset snapshot",
		},
	)

	// Query processing
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetdash_queries_total",
			Help: "Processed analytic queries by intent and result type",
		},
		[]string{"intent", "result_type"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sheetdash_query_duration_seconds",
			Help:    "End-to-end query processing time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetdash_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sheetdash_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetdash_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // "success", "invalid", "rejected"
	)

	// Maintenance
	RetentionPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetdash_retention_purged_total",
			Help: "Query log entries removed by the retention job",
		},
	)

	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetdash_alerts_total",
			Help: "Fetch failure alerts by outcome",
		},
		[]string{"outcome"}, // "sent", "suppressed", "failed"
	)
)
