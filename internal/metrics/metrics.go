// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

// Package metrics holds the Prometheus collectors of the CSP reporter.
// Collectors are registered on the default registry at init and exposed
// by the /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Report outcomes.
const (
	OutcomeStored     = "stored"
	OutcomeFiltered   = "filtered"
	OutcomeMalformed  = "malformed"
	OutcomeStoreError = "store_error"
	OutcomeThrottled  = "throttled"
)

// Inventory sync results.
const (
	SyncSynced   = "synced"
	SyncExisting = "existing"
	SyncFailed   = "failed"
	SyncSkipped  = "skipped"
)

var (
	// Report Ingestion Metrics
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csp_reports_total",
			Help: "Total number of CSP reports received, by outcome",
		},
		[]string{"outcome"}, // stored, filtered, malformed, store_error, throttled
	)

	ReportsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csp_reports_filtered_total",
			Help: "Total number of CSP reports dropped by the exception filter, by reason",
		},
		[]string{"reason"},
	)

	ViolationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csp_violations_created_total",
			Help: "Total number of distinct violations first seen",
		},
	)

	// Store Metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "csp_store_query_duration_seconds",
			Help:    "Duration of violation store operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csp_store_errors_total",
			Help: "Total number of failed violation store operations",
		},
		[]string{"operation"},
	)

	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csp_store_conflicts_total",
			Help: "Total number of write conflicts recovered by retry or insert fallback",
		},
	)

	// Inventory Metrics
	InventorySyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_sync_total",
			Help: "Total number of inventory sync attempts, by result",
		},
		[]string{"result"}, // synced, existing, failed, skipped
	)

	InventoryRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inventory_request_duration_seconds",
			Help:    "Duration of inventory API calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// API Endpoint Metrics
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
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
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

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordReport records the outcome of one report submission.
func RecordReport(outcome string) {
	ReportsTotal.WithLabelValues(outcome).Inc()
}

// RecordFiltered records a report dropped by the exception filter. It
// counts the filtered outcome too; callers must not also call RecordReport.
func RecordFiltered(reason string) {
	ReportsTotal.WithLabelValues(OutcomeFiltered).Inc()
	ReportsFiltered.WithLabelValues(reason).Inc()
}

// RecordStoreQuery records a store operation.
func RecordStoreQuery(operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation).Inc()
	}
}

// RecordInventoryCall records one inventory API call.
func RecordInventoryCall(operation string, duration time.Duration) {
	InventoryRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
