// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logsource

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// Fake is an in-memory Adapter for tests and local development.
//
// # Description
//
// Streams and events are seeded up front; pagination, window
// filtering, and newest-first ordering mirror the CloudWatch adapter.
// Failures can be injected per stream and per page, and every API
// call is counted so tests can assert that cache hits make zero
// adapter calls.
//
// # Thread Safety
//
// Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	streams map[string]StreamInfo
	events  map[string][]datatypes.LogEvent

	listErr   error
	streamErr map[string]fakeFailure
	pageCalls map[string]int

	listCalls atomic.Int64
	getCalls  atomic.Int64
}

type fakeFailure struct {
	onCall int
	err    error
}

// NewFake returns an empty fake adapter.
func NewFake() *Fake {
	return &Fake{
		streams:   make(map[string]StreamInfo),
		events:    make(map[string][]datatypes.LogEvent),
		streamErr: make(map[string]fakeFailure),
		pageCalls: make(map[string]int),
	}
}

// AddStream seeds a stream with events. LastEventTime is derived from
// the newest event; calling again for the same stream appends.
func (f *Fake) AddStream(name string, events ...datatypes.LogEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info := f.streams[name]
	info.Name = name
	for _, ev := range events {
		ev.Stream = name
		f.events[name] = append(f.events[name], ev)
		if ev.Timestamp.After(info.LastEventTime) {
			info.LastEventTime = ev.Timestamp
		}
	}
	f.streams[name] = info
}

// SetLastEventTime overrides a stream's reported recency, for pruning
// tests where the seeded events disagree with the stream metadata.
func (f *Fake) SetLastEventTime(name string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := f.streams[name]
	info.Name = name
	info.LastEventTime = t
	f.streams[name] = info
}

// FailList makes ListStreams return err.
func (f *Fake) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailStream makes GetEvents for the stream fail on the nth call
// (1-based). Earlier pages succeed.
func (f *Fake) FailStream(name string, onCall int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamErr[name] = fakeFailure{onCall: onCall, err: err}
}

// ListCalls returns how many ListStreams calls were made.
func (f *Fake) ListCalls() int64 {
	return f.listCalls.Load()
}

// GetCalls returns how many GetEvents calls were made.
func (f *Fake) GetCalls() int64 {
	return f.getCalls.Load()
}

// ListStreams returns seeded streams newest first.
func (f *Fake) ListStreams(_ context.Context, _ string, limit int) ([]StreamInfo, error) {
	f.listCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	out := make([]StreamInfo, 0, len(f.streams))
	for _, info := range f.streams {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastEventTime.After(out[j].LastEventTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetEvents serves one window-filtered page, newest events first.
func (f *Fake) GetEvents(_ context.Context, q EventQuery) (*EventPage, error) {
	f.getCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pageCalls[q.Stream]++
	if failure, ok := f.streamErr[q.Stream]; ok && f.pageCalls[q.Stream] >= failure.onCall {
		return nil, failure.err
	}

	var window []datatypes.LogEvent
	for _, ev := range f.events[q.Stream] {
		if !ev.Timestamp.Before(q.Start) && ev.Timestamp.Before(q.End) {
			window = append(window, ev)
		}
	}
	sort.Slice(window, func(i, j int) bool {
		return window[i].Timestamp.After(window[j].Timestamp)
	})

	offset := 0
	if q.PageToken != "" {
		parsed, err := strconv.Atoi(q.PageToken)
		if err != nil {
			return nil, err
		}
		offset = parsed
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	page := &EventPage{}
	if offset < len(window) {
		end := offset + limit
		if end > len(window) {
			end = len(window)
		}
		page.Events = window[offset:end]
		if end < len(window) {
			page.NextToken = strconv.Itoa(end)
		}
	}
	return page, nil
}
