// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the value types shared across the log insight
// engine: raw log events, aggregated summaries, per-project cache state,
// and processing results. Types here carry no behavior beyond derived
// accessors; all mutation happens in the owning components.
package datatypes

import (
	"fmt"
	"time"
)

// Severity is the normalized severity class assigned to a log group.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// GroupKey identifies one log group within a project.
//
// # Description
//
// The key is the deterministic composite of the classified attributes:
//
//	<service>|<severity>|<signatureHash>
//
// Two events that normalize to the same service, severity, and message
// signature always map to the same GroupKey, regardless of which stream
// they arrived on or in which processing run they were seen.
type GroupKey string

// NewGroupKey derives the composite key from classified attributes.
func NewGroupKey(service string, severity Severity, signatureHash string) GroupKey {
	return GroupKey(fmt.Sprintf("%s|%s|%s", service, severity, signatureHash))
}

// LogSummary is one aggregated group of similar log events.
//
// # Description
//
// Identity is (ProjectID, GroupKey); everything else is accumulated
// state. Summaries are only ever mutated through the merge step so the
// invariants hold everywhere else:
//
//   - Count >= 1
//   - FirstSeen <= LastSeen
//   - len(SampleMessages) never exceeds the configured bound
type LogSummary struct {
	ProjectID      string    `json:"projectId"`
	GroupKey       GroupKey  `json:"groupKey"`
	Service        string    `json:"service"`
	Severity       Severity  `json:"severity"`
	ErrorSignature string    `json:"errorSignature"`
	Count          int64     `json:"count"`
	FirstSeen      time.Time `json:"firstSeen"`
	LastSeen       time.Time `json:"lastSeen"`
	SampleMessages []string  `json:"sampleMessages"`
	Embedded       bool      `json:"embedded"`
}

// Clone returns a deep copy. Merge operates on copies so callers can
// keep the prior state for fallback paths.
func (s *LogSummary) Clone() *LogSummary {
	cp := *s
	cp.SampleMessages = append([]string(nil), s.SampleMessages...)
	return &cp
}

// ProjectCacheState is the cached aggregate for one project (tenant).
type ProjectCacheState struct {
	ProjectID string                   `json:"projectId"`
	Summaries map[GroupKey]*LogSummary `json:"summaries"`
}

// NewProjectCacheState returns an empty state for the project.
func NewProjectCacheState(projectID string) *ProjectCacheState {
	return &ProjectCacheState{
		ProjectID: projectID,
		Summaries: make(map[GroupKey]*LogSummary),
	}
}

// IsEmpty reports whether the state holds no summaries. An empty state
// is indistinguishable from a missing one for freshness purposes.
func (p *ProjectCacheState) IsEmpty() bool {
	return p == nil || len(p.Summaries) == 0
}

// NewestLastSeen returns the maximum LastSeen across all summaries.
// The zero time is returned for an empty state. Freshness decisions
// and incremental fetch windows both key off this value.
func (p *ProjectCacheState) NewestLastSeen() time.Time {
	var newest time.Time
	if p == nil {
		return newest
	}
	for _, s := range p.Summaries {
		if s.LastSeen.After(newest) {
			newest = s.LastSeen
		}
	}
	return newest
}

// Clone returns a deep copy of the state.
func (p *ProjectCacheState) Clone() *ProjectCacheState {
	if p == nil {
		return nil
	}
	cp := NewProjectCacheState(p.ProjectID)
	for k, s := range p.Summaries {
		cp.Summaries[k] = s.Clone()
	}
	return cp
}
