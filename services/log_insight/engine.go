// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package log_insight is the tenant-scoped orchestration layer of the
// log insight engine: it decides whether cached summaries are still
// good, drives fetch/group/merge when they are not, persists the
// result, and reports processing statistics.
package log_insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/kodiak/services/log_insight/cachestore"
	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
	"github.com/AleutianAI/kodiak/services/log_insight/enrich"
	"github.com/AleutianAI/kodiak/services/log_insight/fetcher"
	"github.com/AleutianAI/kodiak/services/log_insight/freshness"
	"github.com/AleutianAI/kodiak/services/log_insight/grouper"
	"github.com/AleutianAI/kodiak/services/log_insight/observability"
)

var engineTracer = otel.Tracer("kodiak.log_insight.engine")

// Options tunes one Engine instance.
type Options struct {
	// TTL is the fresh window; 0 uses freshness.DefaultTTL.
	TTL time.Duration
	// MaxStaleness is the full re-fetch threshold; 0 uses the default.
	MaxStaleness time.Duration
	// MaxStreams caps streams walked per fetch. Default 50.
	MaxStreams int
	// MaxEventsPerStream caps pagination depth. Default 10000.
	MaxEventsPerStream int
	// SampleBound caps sample messages per summary. Default 5.
	SampleBound int
	// LogGroupPrefix maps a project ID to its log group name.
	// Default "/kodiak/projects/".
	LogGroupPrefix string
	// Clock overrides the time source for tests.
	Clock freshness.Clock
}

func (o Options) withDefaults() Options {
	if o.MaxStreams <= 0 {
		o.MaxStreams = 50
	}
	if o.MaxEventsPerStream <= 0 {
		o.MaxEventsPerStream = 10000
	}
	if o.SampleBound <= 0 {
		o.SampleBound = 5
	}
	if o.LogGroupPrefix == "" {
		o.LogGroupPrefix = "/kodiak/projects/"
	}
	if o.Clock == nil {
		o.Clock = freshness.SystemClock{}
	}
	return o
}

// Engine sequences freshness → fetch → group → merge → persist →
// enrich for one project at a time.
//
// # Description
//
// Process is the single entry point. Concurrent calls for the same
// project share one pipeline execution through a singleflight group;
// different projects run fully in parallel. The pipeline itself runs
// on a detached context so a caller hanging up does not waste a fetch
// that is already in flight: the merged state still lands in the
// cache and pays off on the next call.
//
// # Thread Safety
//
// Safe for concurrent use.
type Engine struct {
	store    cachestore.Store
	fetch    *fetcher.Fetcher
	group    *grouper.Grouper
	control  *freshness.Controller
	enricher *enrich.Enricher
	opts     Options
	clock    freshness.Clock
	inFlight singleflight.Group
}

// NewEngine wires the engine.
//
// # Inputs
//
//   - store: cache store; required.
//   - source-driven fetcher: required.
//   - enricher: optional; nil disables enrichment entirely.
//   - opts: tuning; zero values take defaults.
func NewEngine(store cachestore.Store, fetch *fetcher.Fetcher, enricher *enrich.Enricher, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:    store,
		fetch:    fetch,
		group:    grouper.New(opts.SampleBound),
		control:  freshness.NewController(opts.TTL, opts.MaxStaleness, opts.Clock),
		enricher: enricher,
		opts:     opts,
		clock:    opts.Clock,
	}
}

// Process summarizes the project's recent log activity.
//
// # Description
//
// Concurrent calls for the same project coalesce: exactly one
// pipeline runs, and everyone gets its result. Errors follow the
// degraded-service policy: a fully unavailable log source falls back
// to the prior cache when one exists, and only surfaces when there is
// nothing to fall back to.
//
// # Inputs
//
//   - ctx: used for trace linkage; the pipeline itself is detached
//     from the caller's cancellation.
//   - projectID: tenant to process.
//
// # Outputs
//
//   - *ProcessingResult: statistics plus the source of the data.
//   - error: only fetcher.ErrLogSourceUnavailable with no usable
//     prior cache; everything else degrades.
func (e *Engine) Process(ctx context.Context, projectID string) (*datatypes.ProcessingResult, error) {
	v, err, shared := e.inFlight.Do(projectID, func() (interface{}, error) {
		// Keep the span linkage but drop the caller's cancellation:
		// an expensive fetch is worth finishing and persisting even
		// if the original caller has gone away.
		runCtx := trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
		return e.runPipeline(runCtx, projectID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("process call coalesced with in-flight pipeline", "project_id", projectID)
	}
	return v.(*datatypes.ProcessingResult), nil
}

// Summaries returns the project's cached summaries sorted by count,
// largest group first. It never triggers a fetch.
func (e *Engine) Summaries(ctx context.Context, projectID string) ([]*datatypes.LogSummary, error) {
	state, err := e.store.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, cachestore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache for %s: %w", projectID, err)
	}

	out := make([]*datatypes.LogSummary, 0, len(state.Summaries))
	for _, s := range state.Summaries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].GroupKey < out[j].GroupKey
	})
	return out, nil
}

func (e *Engine) runPipeline(ctx context.Context, projectID string) (*datatypes.ProcessingResult, error) {
	ctx, span := engineTracer.Start(ctx, "log_insight.process")
	defer span.End()

	observability.ActivePipelines.Inc()
	defer observability.ActivePipelines.Dec()

	start := e.clock.Now()

	existing := e.readCache(ctx, projectID)
	decision := e.control.Evaluate(existing)

	if !decision.NeedsFetch() {
		observability.ProcessTotal.WithLabelValues(string(datatypes.SourceCacheHit), "success").Inc()
		slog.Info("cache fresh, serving without fetch",
			"project_id", projectID,
			"age", decision.Age,
			"summaries", len(existing.Summaries),
		)
		return e.assembleCached(projectID, existing, start, false), nil
	}

	window := datatypes.FetchWindow{
		ProjectID:          projectID,
		LogGroup:           e.opts.LogGroupPrefix + projectID,
		Start:              decision.FetchStart,
		End:                decision.FetchEnd,
		MaxStreams:         e.opts.MaxStreams,
		MaxEventsPerStream: e.opts.MaxEventsPerStream,
	}

	fetchStart := e.clock.Now()
	fetched, err := e.fetch.Fetch(ctx, window)
	fetchDur := e.clock.Now().Sub(fetchStart)
	observability.PhaseDuration.WithLabelValues("fetch").Observe(fetchDur.Seconds())

	if err != nil {
		if errors.Is(err, fetcher.ErrLogSourceUnavailable) && !existing.IsEmpty() {
			observability.ProcessTotal.WithLabelValues(string(datatypes.SourceCacheHit), "degraded").Inc()
			slog.Warn("log source unavailable, serving stale cache",
				"project_id", projectID,
				"error", err,
			)
			return e.assembleCached(projectID, existing, start, true), nil
		}
		observability.ProcessTotal.WithLabelValues(string(decision.Source), "error").Inc()
		return nil, fmt.Errorf("processing %s: %w", projectID, err)
	}

	groupStart := e.clock.Now()
	grouped := e.group.Summarize(fetched.Events)

	// Every path merges into the existing state, expired included:
	// summaries are accumulated history, and dropping the ones the
	// fetch window no longer covers would shrink counts and move the
	// cache's high-water mark backwards. Eviction belongs to the
	// store's retention policy, not to this engine.
	merged, outcome := Merge(projectID, existing, grouped.Groups, e.opts.SampleBound)
	groupDur := e.clock.Now().Sub(groupStart)
	observability.PhaseDuration.WithLabelValues("group").Observe(groupDur.Seconds())
	observability.SummariesCreated.Add(float64(len(outcome.Created)))
	observability.SummariesUpdated.Add(float64(outcome.Updated))

	enrichStart := e.clock.Now()
	embeddings := 0
	if e.enricher != nil && len(outcome.Created) > 0 {
		created := make([]*datatypes.LogSummary, 0, len(outcome.Created))
		for _, key := range outcome.Created {
			created = append(created, merged.Summaries[key])
		}
		embeddings = e.enricher.EnrichAll(ctx, created)
	}
	enrichDur := e.clock.Now().Sub(enrichStart)
	observability.PhaseDuration.WithLabelValues("enrich").Observe(enrichDur.Seconds())

	persistStart := e.clock.Now()
	if err := e.store.Put(ctx, projectID, merged); err != nil {
		// The caller still gets the freshly computed result; the next
		// call just recomputes instead of reading the cache.
		observability.CacheWriteFailures.Inc()
		slog.Warn("cache write failed, serving uncached result",
			"project_id", projectID,
			"error", err,
		)
	}
	observability.PhaseDuration.WithLabelValues("persist").Observe(e.clock.Now().Sub(persistStart).Seconds())

	total := e.clock.Now().Sub(start)
	observability.PhaseDuration.WithLabelValues("total").Observe(total.Seconds())
	observability.ProcessTotal.WithLabelValues(string(decision.Source), "success").Inc()

	slog.Info("processing run complete",
		"project_id", projectID,
		"source", decision.Source,
		"events", grouped.TotalEvents,
		"groups", len(grouped.Groups),
		"created", len(outcome.Created),
		"updated", outcome.Updated,
		"embeddings", embeddings,
		"failed_streams", fetched.StreamsFailed,
		"duration", total,
	)

	return &datatypes.ProcessingResult{
		ProjectID:           projectID,
		ProcessingTimestamp: start,
		TotalLogsProcessed:  grouped.TotalEvents,
		ErrorCount:          grouped.ErrorCount,
		WarningCount:        grouped.WarningCount,
		InfoCount:           grouped.InfoCount,
		SummariesCreated:    len(outcome.Created),
		SummariesUpdated:    outcome.Updated,
		EmbeddingsCreated:   embeddings,
		SkippedStreams:      fetched.StreamsPruned,
		FailedStreams:       fetched.StreamsFailed,
		Source:              decision.Source,
		Stats: datatypes.ProcessingStats{
			LogFetchDurationMs:            fetchDur.Milliseconds(),
			LogProcessingDurationMs:       groupDur.Milliseconds(),
			EmbeddingGenerationDurationMs: enrichDur.Milliseconds(),
			TotalDurationMs:               total.Milliseconds(),
		},
	}, nil
}

// readCache loads the project's prior state, treating read failures
// as a missing cache so the run degrades to a full fetch.
func (e *Engine) readCache(ctx context.Context, projectID string) *datatypes.ProjectCacheState {
	state, err := e.store.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, cachestore.ErrNotFound) {
			observability.CacheReads.WithLabelValues("miss").Inc()
			return nil
		}
		observability.CacheReads.WithLabelValues("error").Inc()
		slog.Warn("cache read failed, forcing full fetch",
			"project_id", projectID,
			"error", err,
		)
		return nil
	}
	observability.CacheReads.WithLabelValues("hit").Inc()
	return state
}

// assembleCached builds a CACHE_HIT result from the existing state.
// Severity counters report accumulated occurrence counts from the
// cached summaries; TotalLogsProcessed stays zero because no logs
// were processed by this call.
func (e *Engine) assembleCached(projectID string, state *datatypes.ProjectCacheState, start time.Time, degraded bool) *datatypes.ProcessingResult {
	res := &datatypes.ProcessingResult{
		ProjectID:           projectID,
		ProcessingTimestamp: start,
		Source:              datatypes.SourceCacheHit,
		Degraded:            degraded,
	}
	for _, s := range state.Summaries {
		switch s.Severity {
		case datatypes.SeverityError:
			res.ErrorCount += int(s.Count)
		case datatypes.SeverityWarning:
			res.WarningCount += int(s.Count)
		default:
			res.InfoCount += int(s.Count)
		}
	}
	res.Stats.TotalDurationMs = e.clock.Now().Sub(start).Milliseconds()
	return res
}
