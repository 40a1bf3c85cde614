// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the log
// insight engine.
//
// # Description
//
// Metrics cover the full pipeline: process requests by source and
// status, per-phase latency, fetch volume and stream failures, cache
// effectiveness, and enrichment outcomes. Everything registers on the
// default registry and is served from the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "kodiak"
	metricsSubsystem = "log_insight"
)

// =============================================================================
// Pipeline Metrics
// =============================================================================

var (
	// ProcessTotal counts Process calls.
	// Labels: source (CACHE_HIT, INCREMENTAL, FULL), status (success, degraded, error)
	ProcessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "process_total",
		Help:      "Process calls by result source and status.",
	}, []string{"source", "status"})

	// PhaseDuration measures per-phase latency of a processing run.
	// Labels: phase (fetch, group, merge, persist, enrich, total)
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "phase_duration_seconds",
		Help:      "Wall-clock duration of each processing phase.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"phase"})

	// ActivePipelines tracks processing runs currently in flight.
	ActivePipelines = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "active_pipelines",
		Help:      "Processing runs currently executing.",
	})
)

// =============================================================================
// Fetch Metrics
// =============================================================================

var (
	// EventsFetched counts raw events retrieved from the log source.
	EventsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "events_fetched_total",
		Help:      "Raw log events retrieved from the log source.",
	})

	// StreamFailures counts stream-level fetch failures, including
	// discovery failures.
	StreamFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "stream_failures_total",
		Help:      "Per-stream fetch failures tolerated or surfaced.",
	})
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheReads counts cache store reads by outcome.
	// Labels: outcome (hit, miss, error)
	CacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "cache_reads_total",
		Help:      "Cache store reads by outcome.",
	}, []string{"outcome"})

	// CacheWriteFailures counts cache persists that failed after a
	// successful pipeline run.
	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "cache_write_failures_total",
		Help:      "Failed cache writes; results were still served.",
	})

	// SummariesCreated counts newly created summary groups.
	SummariesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "summaries_created_total",
		Help:      "Summary groups created by merge passes.",
	})

	// SummariesUpdated counts merges into existing summary groups.
	SummariesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "summaries_updated_total",
		Help:      "Summary groups updated by merge passes.",
	})
)

// =============================================================================
// Enrichment Metrics
// =============================================================================

var (
	// EmbeddingsCreated counts summaries that were embedded and indexed.
	EmbeddingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "embeddings_created_total",
		Help:      "Summaries embedded and upserted to the vector index.",
	})

	// EnrichmentFailures counts non-fatal enrichment errors.
	EnrichmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "enrichment_failures_total",
		Help:      "Enrichment attempts that failed; processing continued.",
	})
)
