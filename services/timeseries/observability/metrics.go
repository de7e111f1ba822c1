// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and tracing for the telemetry
// services.
//
// # Description
//
// Prometheus metrics cover both sides of the store:
//   - Ingestion counters (requests by status, points written)
//   - Query latency histograms per operation
//   - Cache lookups by result
//   - Store errors by operation
//   - Events leaving the filter pipeline
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for telemetry metrics
const telemetrySubsystem = "telemetry"

// Metrics holds the Prometheus collectors for ingestion and querying.
//
// # Description
//
// Construct with NewMetrics against the registry that backs /metrics.
// A nil *Metrics is valid: every Record method on it is a no-op, so
// components built without metrics need no guards.
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// IngestRequestsTotal counts ingestion requests.
	// Labels: status (ok, invalid, unavailable)
	IngestRequestsTotal *prometheus.CounterVec

	// IngestPointsTotal counts points written to the store.
	IngestPointsTotal prometheus.Counter

	// QueryDurationSeconds measures query service operations.
	// Labels: operation (query, sources, categories, choices, stats)
	QueryDurationSeconds *prometheus.HistogramVec

	// CacheLookupsTotal counts cache lookups.
	// Labels: operation, result (hit, miss)
	CacheLookupsTotal *prometheus.CounterVec

	// StoreErrorsTotal counts failed store calls.
	// Labels: operation (query, write, ping)
	StoreErrorsTotal *prometheus.CounterVec

	// FilterEventsTotal counts events returned after filtering.
	FilterEventsTotal prometheus.Counter
}

// NewMetrics creates and registers every collector on reg.
//
// # Inputs
//
//   - reg: Registry to register on. Tests pass prometheus.NewRegistry().
//
// # Outputs
//
//   - *Metrics: The initialized metrics instance.
//
// # Limitations
//
// Registering twice on the same registry panics, as promauto does.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IngestRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: telemetrySubsystem,
				Name:      "ingest_requests_total",
				Help:      "Total number of ingestion requests by status",
			},
			[]string{"status"},
		),
		IngestPointsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: telemetrySubsystem,
				Name:      "ingest_points_total",
				Help:      "Total number of points written to the store",
			},
		),
		QueryDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: telemetrySubsystem,
				Name:      "query_duration_seconds",
				Help:      "Query service operation duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: telemetrySubsystem,
				Name:      "cache_lookups_total",
				Help:      "Total cache lookups by operation and result",
			},
			[]string{"operation", "result"},
		),
		StoreErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: telemetrySubsystem,
				Name:      "store_errors_total",
				Help:      "Total failed store calls by operation",
			},
			[]string{"operation"},
		),
		FilterEventsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: telemetrySubsystem,
				Name:      "filter_events_total",
				Help:      "Total events returned by the filter pipeline",
			},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// IngestStatus labels an ingestion outcome.
type IngestStatus string

const (
	// IngestOK means every point was written.
	IngestOK IngestStatus = "ok"

	// IngestInvalid means the payload was rejected with 400.
	IngestInvalid IngestStatus = "invalid"

	// IngestUnavailable means the store write failed after retries.
	IngestUnavailable IngestStatus = "unavailable"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordIngest records one ingestion request and the points it wrote.
func (m *Metrics) RecordIngest(status IngestStatus, points int) {
	if m == nil {
		return
	}
	m.IngestRequestsTotal.WithLabelValues(string(status)).Inc()
	if points > 0 {
		m.IngestPointsTotal.Add(float64(points))
	}
}

// RecordQuery records the duration of a query service operation.
//
// # Inputs
//
//   - operation: The service method name, such as "query".
//   - seconds: Wall time in seconds.
func (m *Metrics) RecordQuery(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.QueryDurationSeconds.WithLabelValues(operation).Observe(seconds)
}

// RecordCache records one cache lookup.
func (m *Metrics) RecordCache(operation string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(operation, result).Inc()
}

// RecordStoreError records a failed store call.
func (m *Metrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordFiltered records the number of events a query returned.
func (m *Metrics) RecordFiltered(events int) {
	if m == nil {
		return
	}
	m.FilterEventsTotal.Add(float64(events))
}
