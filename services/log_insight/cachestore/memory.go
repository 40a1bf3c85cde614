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
	"fmt"
	"sync"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// MemoryStore is a map-backed Store for tests and one-shot runs.
//
// It deep-copies state on the way in and out so callers cannot alias
// stored summaries, and supports read/write fault injection so the
// degraded paths can be exercised.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	states   map[string]*datatypes.ProjectCacheState
	readErr  error
	writeErr error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*datatypes.ProjectCacheState)}
}

// FailReads makes subsequent Gets return err. Nil restores reads.
func (m *MemoryStore) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes subsequent Puts return err. Nil restores writes.
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Get returns a deep copy of the stored state or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, projectID string) (*datatypes.ProjectCacheState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.readErr != nil {
		return nil, m.readErr
	}
	state, ok := m.states[projectID]
	if !ok || state.IsEmpty() {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return state.Clone(), nil
}

// Put stores a deep copy of state, replacing whatever was there.
func (m *MemoryStore) Put(_ context.Context, projectID string, state *datatypes.ProjectCacheState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	if state == nil || state.IsEmpty() {
		delete(m.states, projectID)
		return nil
	}
	m.states[projectID] = state.Clone()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
