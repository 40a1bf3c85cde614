// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/kodiak/services/log_insight"
	"github.com/AleutianAI/kodiak/services/log_insight/cachestore"
	"github.com/AleutianAI/kodiak/services/log_insight/config"
	"github.com/AleutianAI/kodiak/services/log_insight/enrich"
	"github.com/AleutianAI/kodiak/services/log_insight/fetcher"
	"github.com/AleutianAI/kodiak/services/log_insight/logsource"
)

// buildEngine wires the full pipeline from configuration: cache
// store, log source adapter, fetcher, optional enricher, engine. The
// returned close function releases the store.
func buildEngine(ctx context.Context, cfg *config.Config) (*log_insight.Engine, func(), error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing cache store failed", "error", err)
		}
	}

	source, err := logsource.NewCloudWatch(ctx, logsource.CloudWatchConfig{
		Region:            cfg.AWS.Region,
		Endpoint:          cfg.AWS.Endpoint,
		AccessKeyID:       cfg.AWS.AccessKeyID,
		SecretAccessKey:   cfg.AWS.SecretAccessKey,
		RequestsPerSecond: cfg.AWS.RequestsPerSecond,
	})
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("building CloudWatch adapter: %w", err)
	}

	fetch := fetcher.New(source, fetcher.Config{
		Concurrency: cfg.Engine.FetchConcurrency,
		CallTimeout: cfg.Engine.AdapterCallTimeout.Std(),
	})

	enricher := buildEnricher(ctx, cfg)

	engine := log_insight.NewEngine(store, fetch, enricher, log_insight.Options{
		TTL:                cfg.Engine.CacheTTL.Std(),
		MaxStaleness:       cfg.Engine.MaxStaleness.Std(),
		MaxStreams:         cfg.Engine.MaxStreams,
		MaxEventsPerStream: cfg.Engine.MaxEventsPerStream,
		SampleBound:        cfg.Engine.SampleMessageBound,
		LogGroupPrefix:     cfg.Engine.LogGroupPrefix,
	})
	return engine, closeFn, nil
}

func openStore(cfg *config.Config) (cachestore.Store, error) {
	if cfg.Store.InMemory {
		slog.Info("using in-memory cache store")
		return cachestore.NewMemoryStore(), nil
	}

	badgerCfg := cachestore.DefaultBadgerConfig(cfg.Store.Path)
	badgerCfg.SyncWrites = cfg.Store.SyncWrites
	badgerCfg.Retention = cfg.Store.Retention.Std()
	badgerCfg.Logger = slog.Default()

	store, err := cachestore.OpenBadger(badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("opening cache store at %s: %w", cfg.Store.Path, err)
	}
	return store, nil
}

// buildEnricher returns nil when enrichment is disabled or its
// collaborators cannot be reached; the engine runs fine without it.
func buildEnricher(ctx context.Context, cfg *config.Config) *enrich.Enricher {
	if !cfg.Enrich.Enabled {
		return nil
	}

	embedder, err := enrich.NewOpenAIEmbedder(cfg.Enrich.OpenAIModel)
	if err != nil {
		slog.Warn("enrichment disabled: embedding client unavailable", "error", err)
		return nil
	}

	index, err := enrich.NewWeaviateIndex(ctx, cfg.Enrich.WeaviateURL)
	if err != nil {
		slog.Warn("enrichment disabled: vector index unavailable", "error", err)
		return nil
	}

	return enrich.New(embedder, index)
}
