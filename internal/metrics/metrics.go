// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync cycle metrics
	SyncCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clocksync_cycle_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"strategy"},
	)

	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_cycles_total",
			Help: "Total sync cycles by trigger and outcome",
		},
		[]string{"trigger", "outcome"}, // outcome: success, failed
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_cycle_errors_total",
			Help: "Total failed sync cycles by error type",
		},
		[]string{"error_type"},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clocksync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful sync cycle",
		},
	)

	SyncRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clocksync_cycle_retries_total",
			Help: "Total retries of sync cycles after transient failures",
		},
	)

	// Record pipeline metrics
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_records_total",
			Help: "Records passing through each pipeline stage",
		},
		[]string{"stage"}, // fetched, resolved, orphaned
	)

	SinkResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_sink_results_total",
			Help: "Persistence sink results by record kind",
		},
		[]string{"kind", "result"}, // kind: resolved, orphan; result: inserted, skipped, failed
	)

	UnknownPunchLabels = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clocksync_unknown_punch_labels_total",
			Help: "Punch labels that were not recognized and defaulted to OUT",
		},
	)

	OutOfOrderIDs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clocksync_out_of_order_ids_total",
			Help: "Pages whose transaction ids were not in ascending order",
		},
	)

	MalformedPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clocksync_malformed_pages_total",
			Help: "Remote pages skipped because the body could not be decoded",
		},
	)

	CheckpointCursor = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clocksync_checkpoint_cursor",
			Help: "Committed checkpoint values per connector",
		},
		[]string{"connector", "field"}, // field: last_seen_id, last_page, last_window_end
	)

	DLQEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_dlq_entries_total",
			Help: "Records written to the failed check-in dead letter table",
		},
		[]string{"reason"},
	)

	// Remote API metrics
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clocksync_remote_request_duration_seconds",
			Help:    "Duration of requests to the time-clock service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_remote_requests_total",
			Help: "Requests to the time-clock service by status",
		},
		[]string{"endpoint", "status"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_token_refreshes_total",
			Help: "Bearer token refresh attempts",
		},
		[]string{"result"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clocksync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Storage metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clocksync_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_duckdb_query_errors_total",
			Help: "DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Event bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_events_published_total",
			Help: "Check-in events published to the event bus",
		},
		[]string{"result"},
	)

	// Trigger API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_api_requests_total",
			Help: "Trigger API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clocksync_api_request_duration_seconds",
			Help:    "Trigger API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordSyncCycle records a finished cycle. errorType is ignored when the
// cycle succeeded.
func RecordSyncCycle(trigger, strategy string, duration time.Duration, succeeded bool, errorType string) {
	SyncCycleDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	if succeeded {
		SyncCyclesTotal.WithLabelValues(trigger, "success").Inc()
		SyncLastSuccess.Set(float64(time.Now().Unix()))
		return
	}
	SyncCyclesTotal.WithLabelValues(trigger, "failed").Inc()
	SyncErrors.WithLabelValues(errorType).Inc()
}

// RecordPipeline adds per-stage record counts.
func RecordPipeline(fetched, resolved, orphaned int) {
	RecordsTotal.WithLabelValues("fetched").Add(float64(fetched))
	RecordsTotal.WithLabelValues("resolved").Add(float64(resolved))
	RecordsTotal.WithLabelValues("orphaned").Add(float64(orphaned))
}

// RecordSinkResult records one sink outcome for a record.
func RecordSinkResult(orphan bool, result string) {
	kind := "resolved"
	if orphan {
		kind = "orphan"
	}
	SinkResultsTotal.WithLabelValues(kind, result).Inc()
}

// RecordCheckpoint exports committed cursor values.
func RecordCheckpoint(connector string, lastSeenID int64, lastPage int, lastWindowEnd time.Time) {
	CheckpointCursor.WithLabelValues(connector, "last_seen_id").Set(float64(lastSeenID))
	CheckpointCursor.WithLabelValues(connector, "last_page").Set(float64(lastPage))
	if !lastWindowEnd.IsZero() {
		CheckpointCursor.WithLabelValues(connector, "last_window_end").Set(float64(lastWindowEnd.Unix()))
	}
}

// RecordRemoteRequest records one HTTP exchange with the time-clock service.
// status 0 means the request never got a response.
func RecordRemoteRequest(endpoint string, status int, duration time.Duration) {
	RemoteRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	label := "network_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RemoteRequestsTotal.WithLabelValues(endpoint, label).Inc()
}

// RecordTokenRefresh records a refresh attempt.
func RecordTokenRefresh(success bool) {
	if success {
		TokenRefreshes.WithLabelValues("success").Inc()
		return
	}
	TokenRefreshes.WithLabelValues("failure").Inc()
}

// RecordDBQuery records a DuckDB query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordEventPublish records a publish attempt on the event bus.
func RecordEventPublish(err error) {
	if err != nil {
		EventsPublished.WithLabelValues("error").Inc()
		return
	}
	EventsPublished.WithLabelValues("success").Inc()
}

// RecordAPIRequest records a trigger API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
