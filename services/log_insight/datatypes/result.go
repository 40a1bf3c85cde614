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

// ResultSource records which path produced a ProcessingResult.
type ResultSource string

const (
	// SourceCacheHit means the cache was fresh and no fetch happened.
	SourceCacheHit ResultSource = "CACHE_HIT"
	// SourceIncremental means only logs newer than the cache were fetched.
	SourceIncremental ResultSource = "INCREMENTAL"
	// SourceFull means the full staleness window was re-fetched.
	SourceFull ResultSource = "FULL"
)

// ProcessingStats carries per-phase wall-clock durations in milliseconds.
type ProcessingStats struct {
	LogFetchDurationMs            int64 `json:"logFetchDurationMs"`
	LogProcessingDurationMs       int64 `json:"logProcessingDurationMs"`
	EmbeddingGenerationDurationMs int64 `json:"embeddingGenerationDurationMs"`
	TotalDurationMs               int64 `json:"totalDurationMs"`
}

// ProcessingResult is the caller-facing outcome of one Process call.
type ProcessingResult struct {
	ProjectID           string          `json:"projectId"`
	ProcessingTimestamp time.Time       `json:"processingTimestamp"`
	TotalLogsProcessed  int             `json:"totalLogsProcessed"`
	ErrorCount          int             `json:"errorCount"`
	WarningCount        int             `json:"warningCount"`
	InfoCount           int             `json:"infoCount"`
	SummariesCreated    int             `json:"summariesCreated"`
	SummariesUpdated    int             `json:"summariesUpdated"`
	EmbeddingsCreated   int             `json:"embeddingsCreated"`
	SkippedStreams      int             `json:"skippedStreams"`
	FailedStreams       int             `json:"failedStreams"`
	Source              ResultSource    `json:"source"`
	Degraded            bool            `json:"degraded,omitempty"`
	Stats               ProcessingStats `json:"stats"`
}
