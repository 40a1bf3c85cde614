// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enrich computes vector embeddings for log summaries and
// upserts them into the vector index. Enrichment is strictly optional:
// every failure here is swallowed, counted, and logged; none of it is
// allowed to fail a processing run.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
	"github.com/AleutianAI/kodiak/services/log_insight/observability"
)

// EmbeddingClient turns text into a vector.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores summary vectors for downstream semantic search.
type VectorIndex interface {
	Upsert(ctx context.Context, summary *datatypes.LogSummary, vector []float32) error
}

// embedInputLimit caps the text handed to the embedding model. The
// splitter clips at chunk boundaries instead of mid-word.
const embedInputLimit = 2000

// Enricher embeds newly created summaries.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction.
type Enricher struct {
	client   EmbeddingClient
	index    VectorIndex
	splitter textsplitter.RecursiveCharacter
}

// New builds an Enricher. Both collaborators are required; a nil
// client or index means enrichment is disabled and the engine should
// not construct an Enricher at all.
func New(client EmbeddingClient, index VectorIndex) *Enricher {
	return &Enricher{
		client: client,
		index:  index,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(embedInputLimit),
			textsplitter.WithChunkOverlap(0),
		),
	}
}

// EnrichAll embeds each summary and returns how many succeeded.
//
// # Description
//
// Summaries are processed one at a time; a failure on one never stops
// the rest. Successes flip the summary's Embedded flag so the caller
// can persist the fact. The returned count feeds the
// embeddingsCreated statistic.
func (e *Enricher) EnrichAll(ctx context.Context, summaries []*datatypes.LogSummary) int {
	created := 0
	for _, summary := range summaries {
		if err := e.enrichOne(ctx, summary); err != nil {
			observability.EnrichmentFailures.Inc()
			slog.Warn("enrichment failed, continuing",
				"project_id", summary.ProjectID,
				"group_key", summary.GroupKey,
				"error", err,
			)
			continue
		}
		summary.Embedded = true
		created++
		observability.EmbeddingsCreated.Inc()
	}
	return created
}

// EmbedText assembles the text representation of a summary that gets
// embedded: signature first, then the sample messages, clipped to the
// input limit.
func (e *Enricher) EmbedText(summary *datatypes.LogSummary) string {
	var sb strings.Builder
	sb.WriteString(summary.Service)
	sb.WriteString(" ")
	sb.WriteString(string(summary.Severity))
	sb.WriteString(": ")
	sb.WriteString(summary.ErrorSignature)
	for _, sample := range summary.SampleMessages {
		sb.WriteString("\n")
		sb.WriteString(sample)
	}

	text := sb.String()
	if len(text) <= embedInputLimit {
		return text
	}
	chunks, err := e.splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return text[:embedInputLimit]
	}
	return chunks[0]
}

func (e *Enricher) enrichOne(ctx context.Context, summary *datatypes.LogSummary) error {
	vector, err := e.client.Embed(ctx, e.EmbedText(summary))
	if err != nil {
		return fmt.Errorf("embedding summary: %w", err)
	}
	if err := e.index.Upsert(ctx, summary, vector); err != nil {
		return fmt.Errorf("indexing summary vector: %w", err)
	}
	return nil
}
