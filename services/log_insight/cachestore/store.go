// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cachestore persists per-project summary state between
// processing runs. The BadgerDB store is the production backend; the
// memory store serves tests and one-shot runs.
package cachestore

import (
	"context"
	"errors"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// ErrNotFound reports that a project has no cached state. Callers
// treat it as "no cache", never as a failure.
var ErrNotFound = errors.New("no cached state for project")

// Store reads and writes project cache state.
//
// # Description
//
// Get returns the full summary set for a project or ErrNotFound. Put
// replaces the project's stored state with the given one: summaries
// absent from the new state are removed. Implementations must keep a
// Put atomic per project; readers never observe a half-written state.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use across projects.
// Concurrent writes to the same project are serialized by the engine.
type Store interface {
	Get(ctx context.Context, projectID string) (*datatypes.ProjectCacheState, error)
	Put(ctx context.Context, projectID string, state *datatypes.ProjectCacheState) error
	Close() error
}
