// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logsource abstracts the remote log store behind a narrow,
// paginated adapter interface. The production implementation talks to
// CloudWatch Logs; tests use the in-memory fake.
package logsource

import (
	"context"
	"time"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// StreamInfo describes one log stream as reported by the source.
type StreamInfo struct {
	Name          string
	LastEventTime time.Time
}

// EventQuery asks for one page of events from a single stream.
//
// Start is inclusive, End exclusive. PageToken continues a prior page;
// empty means start from the newest events.
type EventQuery struct {
	LogGroup  string
	Stream    string
	Start     time.Time
	End       time.Time
	PageToken string
	Limit     int
}

// EventPage is one page of events plus the continuation token.
// An empty NextToken means the stream is exhausted for the query.
type EventPage struct {
	Events    []datatypes.LogEvent
	NextToken string
}

// Adapter is the engine's only view of the remote log store.
//
// # Description
//
// Implementations must order ListStreams by last-event recency,
// newest first, and must honor the query window in GetEvents. Both
// calls are expected to be expensive; callers budget them carefully
// and count every call they make.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the fetcher issues
// GetEvents for several streams at once.
type Adapter interface {
	// ListStreams returns up to limit streams, most recent first.
	ListStreams(ctx context.Context, logGroup string, limit int) ([]StreamInfo, error)

	// GetEvents returns one page of events for the query, walking the
	// stream from newest to oldest across pages.
	GetEvents(ctx context.Context, q EventQuery) (*EventPage, error)
}
