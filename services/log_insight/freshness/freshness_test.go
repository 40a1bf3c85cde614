// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

func stateWithNewest(projectID string, newest time.Time) *datatypes.ProjectCacheState {
	st := datatypes.NewProjectCacheState(projectID)
	key := datatypes.NewGroupKey("api", datatypes.SeverityError, "abc123")
	st.Summaries[key] = &datatypes.LogSummary{
		ProjectID: projectID,
		GroupKey:  key,
		Service:   "api",
		Severity:  datatypes.SeverityError,
		Count:     1,
		FirstSeen: newest.Add(-time.Hour),
		LastSeen:  newest,
	}
	return st
}

func TestEvaluate_NoCache(t *testing.T) {
	now := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	ctrl := NewController(2*time.Hour, 24*time.Hour, NewManualClock(now))

	for _, state := range []*datatypes.ProjectCacheState{nil, datatypes.NewProjectCacheState("p1")} {
		d := ctrl.Evaluate(state)
		assert.Equal(t, StateNoCache, d.State)
		assert.True(t, d.NeedsFetch())
		assert.Equal(t, datatypes.SourceFull, d.Source)
		assert.Equal(t, now.Add(-24*time.Hour), d.FetchStart)
		assert.Equal(t, now, d.FetchEnd)
	}
}

func TestEvaluate_Fresh(t *testing.T) {
	now := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	ctrl := NewController(2*time.Hour, 24*time.Hour, NewManualClock(now))

	d := ctrl.Evaluate(stateWithNewest("p1", now.Add(-30*time.Minute)))

	assert.Equal(t, StateFresh, d.State)
	assert.False(t, d.NeedsFetch())
	assert.Equal(t, datatypes.SourceCacheHit, d.Source)
	assert.True(t, d.FetchStart.IsZero())
}

func TestEvaluate_Stale_Incremental(t *testing.T) {
	now := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	newest := now.Add(-3 * time.Hour)
	ctrl := NewController(2*time.Hour, 24*time.Hour, NewManualClock(now))

	d := ctrl.Evaluate(stateWithNewest("p1", newest))

	require.Equal(t, StateStale, d.State)
	assert.Equal(t, datatypes.SourceIncremental, d.Source)
	assert.Equal(t, newest.Add(time.Millisecond), d.FetchStart,
		"incremental window starts just past the cached high-water mark")
	assert.Equal(t, now, d.FetchEnd)
}

// Age exactly equal to the TTL is already stale, not fresh.
func TestEvaluate_BoundaryAgeEqualsTTL(t *testing.T) {
	now := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	ttl := 2 * time.Hour
	ctrl := NewController(ttl, 24*time.Hour, NewManualClock(now))

	d := ctrl.Evaluate(stateWithNewest("p1", now.Add(-ttl)))

	assert.Equal(t, StateStale, d.State)
	assert.Equal(t, datatypes.SourceIncremental, d.Source)
}

// Age exactly equal to MaxStaleness triggers a full-window re-fetch.
func TestEvaluate_BoundaryAgeEqualsMaxStaleness(t *testing.T) {
	now := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	maxStale := 24 * time.Hour
	ctrl := NewController(2*time.Hour, maxStale, NewManualClock(now))

	d := ctrl.Evaluate(stateWithNewest("p1", now.Add(-maxStale)))

	assert.Equal(t, StateExpired, d.State)
	assert.Equal(t, datatypes.SourceFull, d.Source)
	assert.Equal(t, now.Add(-maxStale), d.FetchStart)
	assert.Equal(t, now, d.FetchEnd)
}

func TestEvaluate_Expired(t *testing.T) {
	now := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	ctrl := NewController(2*time.Hour, 24*time.Hour, NewManualClock(now))

	d := ctrl.Evaluate(stateWithNewest("p1", now.Add(-48*time.Hour)))

	assert.Equal(t, StateExpired, d.State)
	assert.Equal(t, datatypes.SourceFull, d.Source)
}

func TestEvaluate_AgeFromNewestSummary(t *testing.T) {
	now := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	ctrl := NewController(2*time.Hour, 24*time.Hour, NewManualClock(now))

	st := stateWithNewest("p1", now.Add(-30*time.Hour))
	key := datatypes.NewGroupKey("worker", datatypes.SeverityWarning, "def456")
	st.Summaries[key] = &datatypes.LogSummary{
		ProjectID: "p1",
		GroupKey:  key,
		Count:     1,
		FirstSeen: now.Add(-time.Hour),
		LastSeen:  now.Add(-time.Hour),
	}

	d := ctrl.Evaluate(st)

	assert.Equal(t, StateFresh, d.State, "newest summary governs, not the oldest")
}

func TestNewController_Defaults(t *testing.T) {
	ctrl := NewController(0, 0, nil)
	assert.Equal(t, DefaultTTL, ctrl.TTL())
	assert.Equal(t, DefaultMaxStaleness, ctrl.MaxStaleness())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	assert.Equal(t, start, clock.Now())
	clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())
	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}
