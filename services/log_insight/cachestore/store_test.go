// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the cache store implementations

package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

var storeNow = time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)

func sampleState(projectID string, keys ...string) *datatypes.ProjectCacheState {
	state := datatypes.NewProjectCacheState(projectID)
	for i, raw := range keys {
		key := datatypes.GroupKey(raw)
		state.Summaries[key] = &datatypes.LogSummary{
			ProjectID:      projectID,
			GroupKey:       key,
			Service:        "api",
			Severity:       datatypes.SeverityError,
			ErrorSignature: "connection refused to db",
			Count:          int64(i + 1),
			FirstSeen:      storeNow.Add(-time.Hour),
			LastSeen:       storeNow,
			SampleMessages: []string{"ERROR: connection refused to db"},
		}
	}
	return state
}

// storeUnderTest runs the same contract assertions against any Store.
func storeUnderTest(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("get missing project returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "absent")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		in := sampleState("p1", "api|ERROR|aaa", "api|ERROR|bbb")
		require.NoError(t, store.Put(ctx, "p1", in))

		out, err := store.Get(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, out.Summaries, 2)
		assert.Equal(t, in.Summaries[datatypes.GroupKey("api|ERROR|aaa")].Count,
			out.Summaries[datatypes.GroupKey("api|ERROR|aaa")].Count)
		assert.True(t, out.NewestLastSeen().Equal(storeNow))
	})

	t.Run("put replaces prior state", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "p2", sampleState("p2", "api|ERROR|old")))
		require.NoError(t, store.Put(ctx, "p2", sampleState("p2", "api|ERROR|new")))

		out, err := store.Get(ctx, "p2")
		require.NoError(t, err)
		require.Len(t, out.Summaries, 1)
		assert.Contains(t, out.Summaries, datatypes.GroupKey("api|ERROR|new"))
	})

	t.Run("projects are isolated", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "p3", sampleState("p3", "api|ERROR|ccc")))
		require.NoError(t, store.Put(ctx, "p4", sampleState("p4", "api|ERROR|ddd", "api|ERROR|eee")))

		p3, err := store.Get(ctx, "p3")
		require.NoError(t, err)
		assert.Len(t, p3.Summaries, 1)

		p4, err := store.Get(ctx, "p4")
		require.NoError(t, err)
		assert.Len(t, p4.Summaries, 2)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	storeUnderTest(t, store)
}

func TestBadgerStore_Contract(t *testing.T) {
	store, err := OpenBadgerInMemory()
	require.NoError(t, err)
	defer store.Close()
	storeUnderTest(t, store)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "p1", sampleState("p1", "api|ERROR|aaa")))

	first, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	first.Summaries[datatypes.GroupKey("api|ERROR|aaa")].Count = 999

	second, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Summaries[datatypes.GroupKey("api|ERROR|aaa")].Count,
		"mutating a returned state must not leak into the store")
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	require.Error(t, err)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "p1", sampleState("p1", "api|ERROR|aaa")))
	require.NoError(t, store.Close())

	reopened, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	out, err := reopened.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, out.Summaries, 1)
}
