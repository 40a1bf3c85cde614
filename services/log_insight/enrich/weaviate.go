// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// LogSummaryClassName is the Weaviate class holding summary vectors.
const LogSummaryClassName = "LogSummaryVector"

// GetLogSummarySchema returns the Weaviate class definition.
//
// Vectors are computed by the engine (vectorizer "none"); Weaviate
// only stores and searches them.
func GetLogSummarySchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       LogSummaryClassName,
		Description: "Embedded log summary groups for semantic error search",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "projectId",
				DataType:        []string{"text"},
				Description:     "Owning project (tenant)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "groupKey",
				DataType:        []string{"text"},
				Description:     "Composite group identity",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "service",
				DataType:    []string{"text"},
				Description: "Originating service",
			},
			{
				Name:        "severity",
				DataType:    []string{"text"},
				Description: "Normalized severity class",
			},
			{
				Name:        "errorSignature",
				DataType:    []string{"text"},
				Description: "Normalized message signature",
			},
			{
				Name:        "count",
				DataType:    []string{"int"},
				Description: "Occurrences observed so far",
			},
			{
				Name:        "lastSeen",
				DataType:    []string{"date"},
				Description: "Newest occurrence timestamp",
			},
		},
	}
}

// WeaviateIndex implements VectorIndex on a Weaviate instance.
type WeaviateIndex struct {
	client *weaviate.Client
}

// NewWeaviateIndex connects to the instance at rawURL and ensures the
// LogSummaryVector class exists.
func NewWeaviateIndex(ctx context.Context, rawURL string) (*WeaviateIndex, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL %q: %w", rawURL, err)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	index := &WeaviateIndex{client: client}
	if err := index.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return index, nil
}

func (w *WeaviateIndex) ensureSchema(ctx context.Context) error {
	// The class getter errors when the class does not exist yet.
	_, err := w.client.Schema().ClassGetter().
		WithClassName(LogSummaryClassName).Do(ctx)
	if err == nil {
		return nil
	}
	if err := w.client.Schema().ClassCreator().
		WithClass(GetLogSummarySchema()).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class %s: %w", LogSummaryClassName, err)
	}
	slog.Info("Created Weaviate class", "class", LogSummaryClassName)
	return nil
}

// Upsert writes the summary vector, keyed deterministically by
// (projectId, groupKey) so re-embedding the same group overwrites
// instead of duplicating.
func (w *WeaviateIndex) Upsert(ctx context.Context, summary *datatypes.LogSummary, vector []float32) error {
	hash := sha256.Sum256([]byte(summary.ProjectID + "|" + string(summary.GroupKey)))
	objUUID, err := uuid.FromBytes(hash[:16])
	if err != nil {
		return fmt.Errorf("derive object id: %w", err)
	}

	obj := &models.Object{
		Class:  LogSummaryClassName,
		ID:     strfmt.UUID(objUUID.String()),
		Vector: vector,
		Properties: map[string]interface{}{
			"projectId":      summary.ProjectID,
			"groupKey":       string(summary.GroupKey),
			"service":        summary.Service,
			"severity":       string(summary.Severity),
			"errorSignature": summary.ErrorSignature,
			"count":          summary.Count,
			"lastSeen":       summary.LastSeen.Format(time.RFC3339),
		},
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate batch upsert: %w", err)
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				if errItem != nil {
					return fmt.Errorf("weaviate batch item failed: %s", errItem.Message)
				}
			}
		}
	}
	return nil
}
