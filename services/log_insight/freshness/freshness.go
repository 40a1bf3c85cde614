// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package freshness decides whether a project's cached summaries can
// be served as-is, topped up incrementally, or need a re-fetch of the
// full staleness window.
package freshness

import (
	"time"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// Default windows. TTL is how long a cache serves reads without any
// fetch; MaxStaleness is how far back an incremental top-up is trusted
// before the full window is re-fetched instead.
const (
	DefaultTTL          = 2 * time.Hour
	DefaultMaxStaleness = 24 * time.Hour
)

// CacheState classifies the age of a project's cache.
type CacheState string

const (
	// StateNoCache means no summaries exist for the project.
	StateNoCache CacheState = "NO_CACHE"
	// StateFresh means age < TTL; serve the cache, fetch nothing.
	StateFresh CacheState = "CACHE_FRESH"
	// StateStale means TTL <= age < MaxStaleness; fetch incrementally.
	StateStale CacheState = "CACHE_STALE"
	// StateExpired means age >= MaxStaleness; re-fetch the full window.
	StateExpired CacheState = "CACHE_EXPIRED"
)

// Decision is the outcome of one freshness evaluation.
//
// # Description
//
// For states that require a fetch, [FetchStart, FetchEnd) is the window
// to retrieve and Source is the ResultSource the run will report. For
// StateFresh the window fields are zero and Source is SourceCacheHit.
type Decision struct {
	State      CacheState
	Age        time.Duration
	FetchStart time.Time
	FetchEnd   time.Time
	Source     datatypes.ResultSource
}

// NeedsFetch reports whether the decision requires hitting the log source.
func (d Decision) NeedsFetch() bool {
	return d.State != StateFresh
}

// Controller evaluates cache state against the configured windows.
//
// # Description
//
// Age is measured from the newest LastSeen across the project's
// summaries, not from the time the cache row was written: a cache
// whose newest event is old is stale even if it was persisted a
// second ago, because the interesting question is how current the
// underlying data is.
//
// Boundary semantics are inclusive on the lower edge of each band:
// age == TTL is already STALE and age == MaxStaleness is already
// EXPIRED.
//
// # Thread Safety
//
// The controller is immutable after construction and safe for
// concurrent use.
type Controller struct {
	ttl          time.Duration
	maxStaleness time.Duration
	clock        Clock
}

// NewController builds a Controller.
//
// # Inputs
//
//   - ttl: fresh window; values <= 0 fall back to DefaultTTL.
//   - maxStaleness: incremental window; values <= ttl fall back to
//     DefaultMaxStaleness.
//   - clock: time source; nil falls back to SystemClock.
func NewController(ttl, maxStaleness time.Duration, clock Clock) *Controller {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxStaleness <= ttl {
		maxStaleness = DefaultMaxStaleness
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Controller{ttl: ttl, maxStaleness: maxStaleness, clock: clock}
}

// Evaluate classifies the given cache state and computes the fetch
// window when one is needed.
//
// # Description
//
// The four outcomes:
//
//   - nil or empty state: NO_CACHE, full window [now-MaxStaleness, now).
//   - age < TTL: CACHE_FRESH, no fetch.
//   - TTL <= age < MaxStaleness: CACHE_STALE, incremental window
//     (newestLastSeen, now). The lower bound is the cached data's own
//     high-water mark, so nothing is fetched twice and nothing is
//     skipped between runs.
//   - age >= MaxStaleness: CACHE_EXPIRED, full window. The re-fetched
//     window still merges into the expired summaries like any other
//     pass; only the fetch range widens.
//
// # Inputs
//
//   - state: current cache state; nil is treated as NO_CACHE.
//
// # Outputs
//
//   - Decision: state classification plus fetch window and source.
func (c *Controller) Evaluate(state *datatypes.ProjectCacheState) Decision {
	now := c.clock.Now()

	if state.IsEmpty() {
		return Decision{
			State:      StateNoCache,
			FetchStart: now.Add(-c.maxStaleness),
			FetchEnd:   now,
			Source:     datatypes.SourceFull,
		}
	}

	newest := state.NewestLastSeen()
	age := now.Sub(newest)

	switch {
	case age < c.ttl:
		return Decision{
			State:  StateFresh,
			Age:    age,
			Source: datatypes.SourceCacheHit,
		}
	case age < c.maxStaleness:
		// The window lower bound sits one millisecond past the cached
		// high-water mark: the event at newestLastSeen is already
		// counted, and the log source timestamps at millisecond
		// resolution, so nothing can fall in between.
		return Decision{
			State:      StateStale,
			Age:        age,
			FetchStart: newest.Add(time.Millisecond),
			FetchEnd:   now,
			Source:     datatypes.SourceIncremental,
		}
	default:
		return Decision{
			State:      StateExpired,
			Age:        age,
			FetchStart: now.Add(-c.maxStaleness),
			FetchEnd:   now,
			Source:     datatypes.SourceFull,
		}
	}
}

// TTL returns the configured fresh window.
func (c *Controller) TTL() time.Duration {
	return c.ttl
}

// MaxStaleness returns the configured full re-fetch threshold.
func (c *Controller) MaxStaleness() time.Duration {
	return c.maxStaleness
}
