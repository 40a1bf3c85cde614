// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// summaryPrefix namespaces all cache entries. One key per summary:
//
//	summary/<projectID>/<groupKey>
//
// keeps projects independently readable by prefix and lets Badger's
// native entry TTL age out dead tenants without a sweeper of our own.
const summaryPrefix = "summary/"

// BadgerConfig holds configuration for the Badger-backed store.
type BadgerConfig struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Retention is the entry TTL applied on write. Entries untouched
	// for this long disappear on their own. 0 keeps entries forever.
	Retention time.Duration

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5.
	GCDiscardRatio float64

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults for the given path.
//
// Description:
//
//	SyncWrites on, 7-day retention, 5-minute GC interval at a 50%
//	discard ratio.
//
// Outputs:
//
//	BadgerConfig - Ready-to-use production configuration.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		Retention:      7 * 24 * time.Hour,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore implements Store on an embedded BadgerDB.
//
// Description:
//
//	Summaries are stored one key per group as JSON, namespaced by
//	project. Writes replace the project namespace atomically within
//	one transaction.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
	gc        *gcRunner
}

// OpenBadger opens (or creates) the store at the configured location.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*BadgerStore - The opened store. Caller must Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	store := &BadgerStore{db: db, retention: cfg.Retention}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		store.gc = newGCRunner(db, cfg.GCInterval, ratio, cfg.Logger)
		store.gc.start()
	}

	return store, nil
}

// OpenBadgerInMemory opens an ephemeral store for testing.
func OpenBadgerInMemory() (*BadgerStore, error) {
	return OpenBadger(BadgerConfig{InMemory: true})
}

func projectPrefix(projectID string) []byte {
	return []byte(summaryPrefix + projectID + "/")
}

func summaryKey(projectID string, key datatypes.GroupKey) []byte {
	return []byte(summaryPrefix + projectID + "/" + string(key))
}

// Get loads every summary stored for the project.
func (s *BadgerStore) Get(ctx context.Context, projectID string) (*datatypes.ProjectCacheState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := datatypes.NewProjectCacheState(projectID)
	prefix := projectPrefix(projectID)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				var summary datatypes.LogSummary
				if err := json.Unmarshal(val, &summary); err != nil {
					return fmt.Errorf("decode summary %s: %w", item.Key(), err)
				}
				state.Summaries[summary.GroupKey] = &summary
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", projectID, err)
	}

	if len(state.Summaries) == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return state, nil
}

// Put replaces the project's stored state in one transaction. Keys
// absent from the state are deleted so the store mirrors exactly what
// it was handed; the engine always hands it a merged superset of the
// prior state, so summary eviction stays a retention concern.
func (s *BadgerStore) Put(ctx context.Context, projectID string, state *datatypes.ProjectCacheState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := projectPrefix(projectID)

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var stale [][]byte
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			groupKey := datatypes.GroupKey(key[len(prefix):])
			if state == nil || state.Summaries[groupKey] == nil {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		if state == nil {
			return nil
		}
		for groupKey, summary := range state.Summaries {
			val, err := json.Marshal(summary)
			if err != nil {
				return fmt.Errorf("encode summary %s: %w", groupKey, err)
			}
			entry := badger.NewEntry(summaryKey(projectID, groupKey), val)
			if s.retention > 0 {
				entry = entry.WithTTL(s.retention)
			}
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write project %s: %w", projectID, err)
	}
	return nil
}

// Close stops background GC and closes the database.
func (s *BadgerStore) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// gcRunner periodically reclaims Badger value log space.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	// RunValueLogGC rewrites at most one log file per call; loop until
	// it reports nothing left to collect.
	for {
		err := r.db.RunValueLogGC(r.ratio)
		if err != nil {
			if r.logger != nil && err != badger.ErrNoRewrite {
				r.logger.Warn("badger value log GC failed", "error", err)
			}
			return
		}
	}
}
