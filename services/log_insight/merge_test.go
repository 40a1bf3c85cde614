// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package log_insight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
	"github.com/AleutianAI/kodiak/services/log_insight/grouper"
)

var t0 = time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)

func cachedState(projectID string, key datatypes.GroupKey, count int64, lastSeen time.Time, samples ...string) *datatypes.ProjectCacheState {
	state := datatypes.NewProjectCacheState(projectID)
	state.Summaries[key] = &datatypes.LogSummary{
		ProjectID:      projectID,
		GroupKey:       key,
		Service:        "api",
		Severity:       datatypes.SeverityError,
		ErrorSignature: "connection refused to db",
		Count:          count,
		FirstSeen:      lastSeen.Add(-time.Hour),
		LastSeen:       lastSeen,
		SampleMessages: samples,
	}
	return state
}

func accumulator(count int64, first, last time.Time, samples ...string) *grouper.Accumulator {
	return &grouper.Accumulator{
		Service:        "api",
		Severity:       datatypes.SeverityError,
		ErrorSignature: "connection refused to db",
		Count:          count,
		FirstSeen:      first,
		LastSeen:       last,
		Samples:        samples,
	}
}

func TestMerge_ExistingKeyAccumulates(t *testing.T) {
	key := datatypes.NewGroupKey("api", datatypes.SeverityError, "abc123")
	existing := cachedState("p1", key, 5, t0)

	newest := t0.Add(30 * time.Minute)
	groups := map[datatypes.GroupKey]*grouper.Accumulator{
		key: accumulator(3, t0.Add(10*time.Minute), newest),
	}

	merged, outcome := Merge("p1", existing, groups, 5)

	require.Contains(t, merged.Summaries, key)
	got := merged.Summaries[key]
	assert.Equal(t, int64(8), got.Count)
	assert.Equal(t, newest, got.LastSeen)
	assert.Equal(t, t0.Add(-time.Hour), got.FirstSeen)
	assert.Empty(t, outcome.Created)
	assert.Equal(t, 1, outcome.Updated)
}

func TestMerge_NewKeyInserts(t *testing.T) {
	existingKey := datatypes.NewGroupKey("api", datatypes.SeverityError, "abc123")
	newKey := datatypes.NewGroupKey("worker", datatypes.SeverityWarning, "def456")
	existing := cachedState("p1", existingKey, 5, t0)

	groups := map[datatypes.GroupKey]*grouper.Accumulator{
		newKey: {
			Service:        "worker",
			Severity:       datatypes.SeverityWarning,
			ErrorSignature: "timeout calling <ip>",
			Count:          2,
			FirstSeen:      t0,
			LastSeen:       t0.Add(time.Minute),
			Samples:        []string{"Timeout calling 10.0.0.1"},
		},
	}

	merged, outcome := Merge("p1", existing, groups, 5)

	require.Len(t, merged.Summaries, 2)
	assert.Equal(t, []datatypes.GroupKey{newKey}, outcome.Created)
	assert.Zero(t, outcome.Updated)

	created := merged.Summaries[newKey]
	assert.Equal(t, "p1", created.ProjectID)
	assert.Equal(t, int64(2), created.Count)
	assert.Equal(t, datatypes.SeverityWarning, created.Severity)

	// Untouched keys carry over unchanged.
	assert.Equal(t, int64(5), merged.Summaries[existingKey].Count)
}

func TestMerge_SampleBoundNewestWins(t *testing.T) {
	key := datatypes.NewGroupKey("api", datatypes.SeverityError, "abc123")
	existing := cachedState("p1", key, 5, t0, "old-1", "old-2", "old-3")

	groups := map[datatypes.GroupKey]*grouper.Accumulator{
		key: accumulator(3, t0, t0.Add(time.Minute), "new-1", "new-2", "new-3"),
	}

	merged, _ := Merge("p1", existing, groups, 5)

	got := merged.Summaries[key].SampleMessages
	require.Len(t, got, 5)
	assert.Equal(t, []string{"old-2", "old-3", "new-1", "new-2", "new-3"}, got)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	key := datatypes.NewGroupKey("api", datatypes.SeverityError, "abc123")
	existing := cachedState("p1", key, 5, t0, "old-1")

	groups := map[datatypes.GroupKey]*grouper.Accumulator{
		key: accumulator(3, t0, t0.Add(time.Minute), "new-1"),
	}

	_, _ = Merge("p1", existing, groups, 5)

	assert.Equal(t, int64(5), existing.Summaries[key].Count)
	assert.Equal(t, []string{"old-1"}, existing.Summaries[key].SampleMessages)
	assert.Equal(t, int64(3), groups[key].Count)
}

func TestMerge_NilExisting(t *testing.T) {
	key := datatypes.NewGroupKey("api", datatypes.SeverityError, "abc123")
	groups := map[datatypes.GroupKey]*grouper.Accumulator{
		key: accumulator(1, t0, t0, "only"),
	}

	merged, outcome := Merge("p1", nil, groups, 5)

	require.Len(t, merged.Summaries, 1)
	assert.Equal(t, []datatypes.GroupKey{key}, outcome.Created)
	assert.Equal(t, "p1", merged.ProjectID)
}

// Incremental application over disjoint windows must commute: merging
// window A then B equals merging B then A.
func TestMerge_DisjointWindowsCommute(t *testing.T) {
	key := datatypes.NewGroupKey("api", datatypes.SeverityError, "abc123")

	windowA := map[datatypes.GroupKey]*grouper.Accumulator{
		key: accumulator(4, t0, t0.Add(time.Hour), "a-1"),
	}
	windowB := map[datatypes.GroupKey]*grouper.Accumulator{
		key: accumulator(6, t0.Add(2*time.Hour), t0.Add(3*time.Hour), "b-1"),
	}

	ab, _ := Merge("p1", nil, windowA, 5)
	ab, _ = Merge("p1", ab, windowB, 5)

	ba, _ := Merge("p1", nil, windowB, 5)
	ba, _ = Merge("p1", ba, windowA, 5)

	assert.Equal(t, ab.Summaries[key].Count, ba.Summaries[key].Count)
	assert.Equal(t, ab.Summaries[key].FirstSeen, ba.Summaries[key].FirstSeen)
	assert.Equal(t, ab.Summaries[key].LastSeen, ba.Summaries[key].LastSeen)
	assert.Equal(t, int64(10), ab.Summaries[key].Count)
}
