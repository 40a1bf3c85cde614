// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grouper classifies raw log events and folds them into
// per-group accumulators keyed by (service, severity, signature).
// Grouping is deterministic: the same input events produce the same
// groups regardless of arrival order across streams.
package grouper

import (
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// severityRule maps a message pattern to a severity class. Rules are
// evaluated in order and the first match wins, which gives ERROR
// precedence over WARNING when a message matches both.
type severityRule struct {
	name     string
	pattern  *regexp.Regexp
	severity datatypes.Severity
}

// The rule table is data, not control flow. Extending classification
// means appending a rule, not editing a switch.
var severityRules = []severityRule{
	{name: "error_keyword", pattern: regexp.MustCompile(`(?i)error`), severity: datatypes.SeverityError},
	{name: "exception_keyword", pattern: regexp.MustCompile(`(?i)exception`), severity: datatypes.SeverityError},
	{name: "http_5xx", pattern: regexp.MustCompile(`\b5\d{2}\b`), severity: datatypes.SeverityError},
	{name: "warn_keyword", pattern: regexp.MustCompile(`(?i)warn`), severity: datatypes.SeverityWarning},
	{name: "timeout_keyword", pattern: regexp.MustCompile(`(?i)timeout`), severity: datatypes.SeverityWarning},
}

// ClassifySeverity runs the rule table against a raw (not normalized)
// message. Messages matching no rule are INFO.
func ClassifySeverity(message string) datatypes.Severity {
	for _, rule := range severityRules {
		if rule.pattern.MatchString(message) {
			return rule.severity
		}
	}
	return datatypes.SeverityInfo
}

// instanceSuffix matches trailing replica-hash segments on service
// names, e.g. "checkout-7f9c4b" or "worker-003".
var instanceSuffix = regexp.MustCompile(`-(?:[0-9a-f]{4,}|\d+)$`)

// ServiceFromStream extracts the owning service from a stream name.
//
// Stream names follow the "<service>/<env-or-task>/..." convention;
// the first path segment identifies the service. Replica hashes on the
// segment are stripped so "checkout-7f9c4b" and "checkout-66dd21"
// group together. Streams with no usable prefix map to "unknown".
func ServiceFromStream(stream string) string {
	name := stream
	if idx := strings.IndexByte(name, '/'); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = instanceSuffix.ReplaceAllString(strings.ToLower(name), "")
	if name == "" {
		return "unknown"
	}
	return name
}

// Accumulator is the in-flight aggregate for one group within a single
// processing run. It mirrors the persisted LogSummary shape but stays
// mutable until the merge step folds it into cache state.
type Accumulator struct {
	Service        string
	Severity       datatypes.Severity
	ErrorSignature string
	SignatureHash  string
	Count          int64
	FirstSeen      time.Time
	LastSeen       time.Time
	Samples        []string
}

// Result carries the grouped accumulators plus run-level tallies.
type Result struct {
	Groups       map[datatypes.GroupKey]*Accumulator
	TotalEvents  int
	ErrorCount   int
	WarningCount int
	InfoCount    int
}

// Grouper folds events into accumulators.
//
// # Thread Safety
//
// A Grouper is stateless between calls and safe for concurrent use;
// each Summarize call builds its own result.
type Grouper struct {
	sampleBound int
}

// New returns a Grouper keeping at most sampleBound example messages
// per group. Bounds below 1 fall back to 1.
func New(sampleBound int) *Grouper {
	if sampleBound < 1 {
		sampleBound = 1
	}
	return &Grouper{sampleBound: sampleBound}
}

// Summarize classifies every event and folds it into its group.
//
// # Description
//
// For each event: severity from the rule table, service from the
// stream prefix, signature from the normalized message. The group key
// is the composite of those three. Within a group the accumulator
// tracks count, the [FirstSeen, LastSeen] envelope, and up to the
// sample bound of example messages (first seen kept; merge policy for
// persisted summaries prefers newest instead).
//
// # Inputs
//
//   - events: raw events in any order. Order does not affect grouping.
//
// # Outputs
//
//   - *Result: accumulators keyed by group plus severity tallies.
func (g *Grouper) Summarize(events []datatypes.LogEvent) *Result {
	res := &Result{
		Groups:      make(map[datatypes.GroupKey]*Accumulator),
		TotalEvents: len(events),
	}

	for _, ev := range events {
		severity := ClassifySeverity(ev.Message)
		switch severity {
		case datatypes.SeverityError:
			res.ErrorCount++
		case datatypes.SeverityWarning:
			res.WarningCount++
		default:
			res.InfoCount++
		}

		service := ServiceFromStream(ev.Stream)
		normalized := Normalize(ev.Message)
		sigHash := SignatureHash(normalized)
		key := datatypes.NewGroupKey(service, severity, sigHash)

		acc, ok := res.Groups[key]
		if !ok {
			acc = &Accumulator{
				Service:        service,
				Severity:       severity,
				ErrorSignature: normalized,
				SignatureHash:  sigHash,
				FirstSeen:      ev.Timestamp,
				LastSeen:       ev.Timestamp,
			}
			res.Groups[key] = acc
		}

		acc.Count++
		if ev.Timestamp.Before(acc.FirstSeen) {
			acc.FirstSeen = ev.Timestamp
		}
		if ev.Timestamp.After(acc.LastSeen) {
			acc.LastSeen = ev.Timestamp
		}
		if len(acc.Samples) < g.sampleBound {
			acc.Samples = append(acc.Samples, ev.Message)
		}
	}

	return res
}
