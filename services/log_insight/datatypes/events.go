// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// LogEvent is a single raw log line as returned by the log source.
// Events are ephemeral: they exist between fetch and grouping and are
// never persisted.
type LogEvent struct {
	Stream    string    `json:"stream"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	// RawSeverityHint carries a severity label the source attached to
	// the event, when it has one. Advisory only: classification always
	// derives from Message content so sources with and without labels
	// group identically.
	RawSeverityHint string `json:"rawSeverityHint,omitempty"`
}

// FetchWindow bounds one retrieval pass against the log source.
//
// Start is inclusive, End exclusive. MaxStreams caps how many streams
// are walked per pass and MaxEventsPerStream caps pagination depth
// within a single stream. A window is immutable once built.
type FetchWindow struct {
	ProjectID          string
	LogGroup           string
	Start              time.Time
	End                time.Time
	MaxStreams         int
	MaxEventsPerStream int
}

// Duration returns the span covered by the window.
func (w FetchWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether ts falls inside [Start, End).
func (w FetchWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}
