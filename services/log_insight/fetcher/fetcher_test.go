// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
	"github.com/AleutianAI/kodiak/services/log_insight/logsource"
)

var windowEnd = time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)

func testWindow(maxStreams, maxEvents int) datatypes.FetchWindow {
	return datatypes.FetchWindow{
		ProjectID:          "p1",
		LogGroup:           "/kodiak/projects/p1",
		Start:              windowEnd.Add(-24 * time.Hour),
		End:                windowEnd,
		MaxStreams:         maxStreams,
		MaxEventsPerStream: maxEvents,
	}
}

// seedEvents returns n in-window events, one second apart, newest last.
func seedEvents(n int, newest time.Time, msg string) []datatypes.LogEvent {
	events := make([]datatypes.LogEvent, 0, n)
	for i := n - 1; i >= 0; i-- {
		events = append(events, datatypes.LogEvent{
			Timestamp: newest.Add(-time.Duration(i) * time.Second),
			Message:   fmt.Sprintf("%s seq=%d", msg, i),
		})
	}
	return events
}

func TestFetch_SingleStream(t *testing.T) {
	fake := logsource.NewFake()
	fake.AddStream("api/prod/1", seedEvents(10, windowEnd.Add(-time.Minute), "ERROR: boom")...)

	res, err := New(fake, Config{}).Fetch(context.Background(), testWindow(50, 10000))

	require.NoError(t, err)
	assert.Len(t, res.Events, 10)
	assert.Equal(t, 1, res.StreamsListed)
	assert.Equal(t, 1, res.StreamsFetched)
	assert.Zero(t, res.StreamsFailed)
	assert.Zero(t, res.StreamsPruned)
}

// Caps: three streams of 150 events with MaxStreams=2 and
// MaxEventsPerStream=100 yield exactly 200 events, never 450.
func TestFetch_Caps(t *testing.T) {
	fake := logsource.NewFake()
	fake.AddStream("s1/a", seedEvents(150, windowEnd.Add(-1*time.Minute), "ERROR: one")...)
	fake.AddStream("s2/a", seedEvents(150, windowEnd.Add(-2*time.Minute), "ERROR: two")...)
	fake.AddStream("s3/a", seedEvents(150, windowEnd.Add(-3*time.Minute), "ERROR: three")...)

	res, err := New(fake, Config{}).Fetch(context.Background(), testWindow(2, 100))

	require.NoError(t, err)
	assert.Len(t, res.Events, 200)
	assert.Equal(t, 2, res.StreamsListed, "listing respects MaxStreams")
	assert.Equal(t, 2, res.StreamsFetched)
	assert.Equal(t, 2, res.StreamsTruncated)

	// s3 is the least recent and must not have been walked at all.
	for _, ev := range res.Events {
		assert.NotEqual(t, "s3/a", ev.Stream)
	}
}

func TestFetch_PaginatesWithinStream(t *testing.T) {
	fake := logsource.NewFake()
	fake.AddStream("api/prod/1", seedEvents(120, windowEnd.Add(-time.Minute), "WARN: slow")...)

	res, err := New(fake, Config{PageSize: 50}).Fetch(context.Background(), testWindow(10, 10000))

	require.NoError(t, err)
	assert.Len(t, res.Events, 120)
	// 50 + 50 + 20, no fourth call: the third page has no next token.
	assert.EqualValues(t, 3, fake.GetCalls())
}

func TestFetch_PrunesStreamsOlderThanWindow(t *testing.T) {
	fake := logsource.NewFake()
	fake.AddStream("fresh/a", seedEvents(5, windowEnd.Add(-time.Minute), "ERROR: live")...)
	fake.AddStream("stale/a", seedEvents(5, windowEnd.Add(-48*time.Hour), "ERROR: old")...)

	res, err := New(fake, Config{}).Fetch(context.Background(), testWindow(50, 10000))

	require.NoError(t, err)
	assert.Len(t, res.Events, 5)
	assert.Equal(t, 1, res.StreamsPruned)
	assert.EqualValues(t, 1, fake.GetCalls(), "pruned stream costs no event calls")
}

// One failing stream out of three: its events are dropped, the other
// two deliver, and the failure is counted rather than raised.
func TestFetch_PartialFailureTolerated(t *testing.T) {
	fake := logsource.NewFake()
	fake.AddStream("ok1/a", seedEvents(80, windowEnd.Add(-1*time.Minute), "ERROR: a")...)
	fake.AddStream("bad/a", seedEvents(80, windowEnd.Add(-2*time.Minute), "ERROR: b")...)
	fake.AddStream("ok2/a", seedEvents(80, windowEnd.Add(-3*time.Minute), "ERROR: c")...)
	fake.FailStream("bad/a", 2, errors.New("throttled"))

	res, err := New(fake, Config{PageSize: 50}).Fetch(context.Background(), testWindow(50, 10000))

	require.NoError(t, err)
	assert.Equal(t, 1, res.StreamsFailed)
	assert.Equal(t, 2, res.StreamsFetched)
	assert.Len(t, res.Events, 160, "failed stream contributes nothing, even from successful pages")
}

func TestFetch_AllStreamsFailed(t *testing.T) {
	fake := logsource.NewFake()
	fake.AddStream("a/x", seedEvents(5, windowEnd.Add(-time.Minute), "ERROR: a")...)
	fake.AddStream("b/x", seedEvents(5, windowEnd.Add(-time.Minute), "ERROR: b")...)
	fake.FailStream("a/x", 1, errors.New("refused"))
	fake.FailStream("b/x", 1, errors.New("refused"))

	_, err := New(fake, Config{}).Fetch(context.Background(), testWindow(50, 10000))

	assert.ErrorIs(t, err, ErrLogSourceUnavailable)
}

func TestFetch_ListFailure(t *testing.T) {
	fake := logsource.NewFake()
	fake.FailList(errors.New("connection reset"))

	_, err := New(fake, Config{}).Fetch(context.Background(), testWindow(50, 10000))

	assert.ErrorIs(t, err, ErrLogSourceUnavailable)
}

func TestFetch_NoStreams(t *testing.T) {
	res, err := New(logsource.NewFake(), Config{}).Fetch(context.Background(), testWindow(50, 10000))

	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Zero(t, res.StreamsListed)
}

// sloppyAdapter returns events below the window start, the way a
// source with coarse time filtering might at the window edge. The
// fetcher must drop them and stop paging.
type sloppyAdapter struct {
	stream logsource.StreamInfo
	pages  [][]datatypes.LogEvent
	calls  int
}

func (s *sloppyAdapter) ListStreams(context.Context, string, int) ([]logsource.StreamInfo, error) {
	return []logsource.StreamInfo{s.stream}, nil
}

func (s *sloppyAdapter) GetEvents(_ context.Context, q logsource.EventQuery) (*logsource.EventPage, error) {
	if s.calls >= len(s.pages) {
		return &logsource.EventPage{}, nil
	}
	page := &logsource.EventPage{Events: s.pages[s.calls], NextToken: fmt.Sprintf("t%d", s.calls+1)}
	s.calls++
	return page, nil
}

func TestFetch_StopsAtWindowStart(t *testing.T) {
	window := testWindow(10, 10000)
	adapter := &sloppyAdapter{
		stream: logsource.StreamInfo{Name: "edge/a", LastEventTime: window.End.Add(-time.Minute)},
		pages: [][]datatypes.LogEvent{
			{
				{Stream: "edge/a", Timestamp: window.Start.Add(time.Hour), Message: "in window"},
				{Stream: "edge/a", Timestamp: window.Start, Message: "on the edge"},
				{Stream: "edge/a", Timestamp: window.Start.Add(-time.Second), Message: "too old"},
			},
			{
				{Stream: "edge/a", Timestamp: window.Start.Add(-time.Hour), Message: "much too old"},
			},
		},
	}

	res, err := New(adapter, Config{}).Fetch(context.Background(), window)

	require.NoError(t, err)
	assert.Len(t, res.Events, 2, "window start is inclusive, older events dropped")
	assert.Equal(t, 1, adapter.calls, "paging stops once the walk crosses the window start")
}
