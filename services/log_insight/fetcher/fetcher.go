// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetcher walks log streams within a fetch window, enforcing
// the stream and per-stream event caps, and tolerates partial stream
// failures: one bad stream never sinks the run.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
	"github.com/AleutianAI/kodiak/services/log_insight/logsource"
	"github.com/AleutianAI/kodiak/services/log_insight/observability"
)

// ErrLogSourceUnavailable reports that no log data could be retrieved
// at all: stream discovery failed, or every attempted stream failed.
// Partial failures do not raise it.
var ErrLogSourceUnavailable = errors.New("log source unavailable")

// Config tunes one fetcher instance.
type Config struct {
	// Concurrency bounds parallel per-stream walks. Default 4.
	Concurrency int
	// PageSize is the event page size requested per call. Default 1000.
	PageSize int
	// CallTimeout bounds each individual adapter call. Default 10s.
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PageSize <= 0 {
		c.PageSize = 1000
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}

// Result is the outcome of one fetch pass.
//
// Events holds every in-window event from every stream that was
// walked successfully; ordering across streams is unspecified.
type Result struct {
	Events           []datatypes.LogEvent
	StreamsListed    int
	StreamsFetched   int
	StreamsPruned    int
	StreamsFailed    int
	StreamsTruncated int
}

// Fetcher retrieves events through a logsource.Adapter.
//
// # Thread Safety
//
// Safe for concurrent use; each Fetch call keeps its own state.
type Fetcher struct {
	source logsource.Adapter
	cfg    Config
}

// New builds a Fetcher over the given adapter.
func New(source logsource.Adapter, cfg Config) *Fetcher {
	return &Fetcher{source: source, cfg: cfg.withDefaults()}
}

// Fetch walks up to window.MaxStreams streams and returns their
// in-window events.
//
// # Description
//
// Streams are discovered newest-activity first, then pruned: a stream
// whose LastEventTime predates window.Start cannot contain in-window
// events and is skipped without any event call. Surviving streams are
// walked concurrently (bounded), each paginating newest to oldest
// until the window's lower edge, the per-stream event cap, or stream
// exhaustion.
//
// # Inputs
//
//   - ctx: cancellation propagates to all in-flight stream walks.
//   - window: bounds, caps, and the log group to read.
//
// # Outputs
//
//   - *Result: events plus per-stream accounting. Partial failures
//     are reported in StreamsFailed, not as an error.
//   - error: ErrLogSourceUnavailable when discovery fails or every
//     attempted stream fails; ctx errors pass through.
func (f *Fetcher) Fetch(ctx context.Context, window datatypes.FetchWindow) (*Result, error) {
	listCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	streams, err := f.source.ListStreams(listCtx, window.LogGroup, window.MaxStreams)
	cancel()
	if err != nil {
		observability.StreamFailures.Inc()
		return nil, fmt.Errorf("%w: listing streams for %q: %v", ErrLogSourceUnavailable, window.LogGroup, err)
	}

	res := &Result{StreamsListed: len(streams)}

	// Streams arrive recency-ordered, so pruning usually cuts a
	// suffix, but each stream is checked on its own in case an
	// adapter's ordering is loose.
	attempt := make([]logsource.StreamInfo, 0, len(streams))
	for _, s := range streams {
		if s.LastEventTime.Before(window.Start) {
			res.StreamsPruned++
			continue
		}
		attempt = append(attempt, s)
	}

	if len(attempt) == 0 {
		slog.Debug("no streams with activity in window",
			"log_group", window.LogGroup,
			"listed", res.StreamsListed,
			"pruned", res.StreamsPruned,
		)
		return res, nil
	}

	var (
		mu        sync.Mutex
		perStream = make([][]datatypes.LogEvent, len(attempt))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)

	for i, stream := range attempt {
		g.Go(func() error {
			events, truncated, err := f.fetchStream(gctx, window, stream.Name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res.StreamsFailed++
				observability.StreamFailures.Inc()
				slog.Warn("stream fetch failed, skipping",
					"log_group", window.LogGroup,
					"stream", stream.Name,
					"error", err,
				)
				return nil
			}
			res.StreamsFetched++
			if truncated {
				res.StreamsTruncated++
			}
			perStream[i] = events
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if res.StreamsFailed == len(attempt) {
		return nil, fmt.Errorf("%w: all %d attempted streams failed", ErrLogSourceUnavailable, len(attempt))
	}

	for _, events := range perStream {
		res.Events = append(res.Events, events...)
	}
	observability.EventsFetched.Add(float64(len(res.Events)))

	slog.Debug("fetch pass complete",
		"log_group", window.LogGroup,
		"streams_listed", res.StreamsListed,
		"streams_pruned", res.StreamsPruned,
		"streams_fetched", res.StreamsFetched,
		"streams_failed", res.StreamsFailed,
		"events", len(res.Events),
	)
	return res, nil
}

// fetchStream paginates one stream newest to oldest until the window
// lower edge, the event cap, or exhaustion. The returned bool reports
// whether the cap truncated the stream.
func (f *Fetcher) fetchStream(ctx context.Context, window datatypes.FetchWindow, stream string) ([]datatypes.LogEvent, bool, error) {
	var (
		events    []datatypes.LogEvent
		pageToken string
		truncated bool
	)

	for {
		remaining := window.MaxEventsPerStream - len(events)
		if remaining <= 0 {
			truncated = true
			break
		}

		limit := f.cfg.PageSize
		if limit > remaining {
			limit = remaining
		}

		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		page, err := f.source.GetEvents(callCtx, logsource.EventQuery{
			LogGroup:  window.LogGroup,
			Stream:    stream,
			Start:     window.Start,
			End:       window.End,
			PageToken: pageToken,
			Limit:     limit,
		})
		cancel()
		if err != nil {
			return nil, false, err
		}

		crossedStart := false
		for _, ev := range page.Events {
			if ev.Timestamp.Before(window.Start) {
				// Pages walk backward in time; everything after
				// this point is out of window.
				crossedStart = true
				continue
			}
			if len(events) < window.MaxEventsPerStream {
				events = append(events, ev)
			} else {
				truncated = true
			}
		}

		if crossedStart || page.NextToken == "" || truncated {
			break
		}
		pageToken = page.NextToken
	}

	return events, truncated, nil
}
