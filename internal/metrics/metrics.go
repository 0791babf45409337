// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Database query performance (DuckDB)
// - Jellyfin API calls and circuit breaker state
// - Sync, reconciliation and migration outcomes
// - HTTP API latency and throughput

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Jellyfin API Client Metrics
	JellyfinRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jellyfin_api_requests_total",
			Help: "Total number of Jellyfin API requests",
		},
		[]string{"endpoint", "result"}, // result: "success", "error"
	)

	JellyfinRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jellyfin_api_request_duration_seconds",
			Help:    "Duration of Jellyfin API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Sync Operation Metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of sync operations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"}, // "items", "users", "libraries", "activities", "reconcile"
	)

	SyncRecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_processed_total",
			Help: "Total number of records processed during sync",
		},
		[]string{"operation", "outcome"}, // outcome: "inserted", "updated", "unchanged"
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Total number of sync errors",
		},
		[]string{"operation"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of last successful sync",
		},
		[]string{"operation"},
	)

	SyncPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_pages_fetched_total",
			Help: "Total number of item pages fetched from Jellyfin",
		},
	)

	// Reconciliation Metrics
	ItemsSoftDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_items_soft_deleted_total",
			Help: "Total number of items soft-deleted during reconciliation",
		},
	)

	ItemsMigrated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_items_migrated_total",
			Help: "Total number of items migrated to a new source ID",
		},
		[]string{"strategy"}, // "provider_id", "episode", "season", "series", "movie_manual"
	)

	ReconcileAborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_aborts_total",
			Help: "Total number of reconciliation runs aborted by a safety guard",
		},
		[]string{"reason"}, // "source_unreachable", "empty_snapshot"
	)

	// Activity Sync Metrics
	ActivityWatermark = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "activity_watermark_id",
			Help: "Highest activity-log entry ID stored locally",
		},
	)

	ActivitySafetyBoundHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_safety_bound_hits_total",
			Help: "Total number of activity scans stopped by the safety bound before finding the watermark",
		},
	)

	// HTTP API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordJellyfinRequest records a Jellyfin API call metric
func RecordJellyfinRequest(endpoint string, duration time.Duration, err error) {
	JellyfinRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	JellyfinRequestsTotal.WithLabelValues(endpoint, result).Inc()
}

// RecordAPIRequest records an HTTP API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSyncOperation records a completed sync stage
func RecordSyncOperation(operation string, duration time.Duration, err error) {
	SyncDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		SyncErrors.WithLabelValues(operation).Inc()
		return
	}
	SyncLastSuccess.WithLabelValues(operation).Set(float64(time.Now().Unix()))
}
