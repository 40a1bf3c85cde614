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
	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
	"github.com/AleutianAI/kodiak/services/log_insight/grouper"
)

// MergeOutcome reports what a merge pass did, split by whether each
// group key existed before the pass.
type MergeOutcome struct {
	// Created lists group keys that did not exist in the prior state.
	// The enrichment pass only embeds these; updated groups keep their
	// existing vector.
	Created []datatypes.GroupKey
	Updated int
}

// Merge folds freshly grouped accumulators into a project's cache state.
//
// # Description
//
// The merge never mutates its inputs: the existing state is cloned and
// the clone is updated, so callers can keep the prior state around for
// the degraded-fallback path. For each incoming group key:
//
//   - key exists: counts add, the [FirstSeen, LastSeen] envelope
//     extends, and new sample messages append with the newest
//     replacing the oldest once the bound is hit.
//   - key is new: a LogSummary is created from the accumulator.
//
// Keys present only in the existing state carry over untouched, which
// is what makes repeated incremental application safe: disjoint fetch
// windows merge commutatively and never reprocess history.
//
// # Inputs
//
//   - projectID: tenant the state belongs to.
//   - existing: prior cache state; nil is treated as empty.
//   - groups: accumulators from one grouping pass.
//   - sampleBound: cap on sample messages per summary.
//
// # Outputs
//
//   - *ProjectCacheState: the merged state, always a fresh value.
//   - MergeOutcome: created keys and updated count.
func Merge(projectID string, existing *datatypes.ProjectCacheState,
	groups map[datatypes.GroupKey]*grouper.Accumulator, sampleBound int) (*datatypes.ProjectCacheState, MergeOutcome) {

	if sampleBound < 1 {
		sampleBound = 1
	}

	var merged *datatypes.ProjectCacheState
	if existing.IsEmpty() {
		merged = datatypes.NewProjectCacheState(projectID)
	} else {
		merged = existing.Clone()
	}

	var outcome MergeOutcome
	for key, acc := range groups {
		summary, ok := merged.Summaries[key]
		if !ok {
			merged.Summaries[key] = &datatypes.LogSummary{
				ProjectID:      projectID,
				GroupKey:       key,
				Service:        acc.Service,
				Severity:       acc.Severity,
				ErrorSignature: acc.ErrorSignature,
				Count:          acc.Count,
				FirstSeen:      acc.FirstSeen,
				LastSeen:       acc.LastSeen,
				SampleMessages: boundSamples(nil, acc.Samples, sampleBound),
			}
			outcome.Created = append(outcome.Created, key)
			continue
		}

		summary.Count += acc.Count
		if acc.FirstSeen.Before(summary.FirstSeen) {
			summary.FirstSeen = acc.FirstSeen
		}
		if acc.LastSeen.After(summary.LastSeen) {
			summary.LastSeen = acc.LastSeen
		}
		summary.SampleMessages = boundSamples(summary.SampleMessages, acc.Samples, sampleBound)
		outcome.Updated++
	}

	return merged, outcome
}

// boundSamples appends incoming samples and keeps the newest bound
// entries, dropping from the front.
func boundSamples(existing, incoming []string, bound int) []string {
	out := make([]string, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	out = append(out, incoming...)
	if len(out) > bound {
		out = out[len(out)-bound:]
	}
	return out
}
