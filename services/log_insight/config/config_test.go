// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Engine.CacheTTL.Std())
	assert.Equal(t, 24*time.Hour, cfg.Engine.MaxStaleness.Std())
	assert.Equal(t, 50, cfg.Engine.MaxStreams)
	assert.Equal(t, 10000, cfg.Engine.MaxEventsPerStream)
	assert.Equal(t, 5, cfg.Engine.SampleMessageBound)
	assert.Equal(t, "/kodiak/projects/", cfg.Engine.LogGroupPrefix)
	assert.Equal(t, "kodiak-otel-collector:4317", cfg.Server.OTLPEndpoint)
}

func TestLoad_OTLPEndpointOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kodiak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  otlp_endpoint: collector.internal:4317\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "collector.internal:4317", cfg.Server.OTLPEndpoint)

	t.Setenv("KODIAK_OTLP_ENDPOINT", "collector.other:4317")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "collector.other:4317", cfg.Server.OTLPEndpoint)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kodiak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  cache_ttl: 30m
  max_streams: 10
store:
  in_memory: true
`), 0644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Engine.CacheTTL.Std())
	assert.Equal(t, 10, cfg.Engine.MaxStreams)
	assert.True(t, cfg.Store.InMemory)
	// Untouched values keep their defaults.
	assert.Equal(t, 24*time.Hour, cfg.Engine.MaxStaleness.Std())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kodiak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  cache_ttl: 30m\n"), 0644))
	t.Setenv("KODIAK_CACHE_TTL", "45m")
	t.Setenv("KODIAK_MAX_STREAMS", "7")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.Engine.CacheTTL.Std())
	assert.Equal(t, 7, cfg.Engine.MaxStreams)
}

func TestLoad_RejectsBadEnvValue(t *testing.T) {
	t.Setenv("KODIAK_MAX_STREAMS", "lots")

	_, err := Load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "KODIAK_MAX_STREAMS")
}

func TestLoad_RejectsStalenessBelowTTL(t *testing.T) {
	t.Setenv("KODIAK_CACHE_TTL", "24h")
	t.Setenv("KODIAK_MAX_STALENESS", "2h")

	_, err := Load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_staleness")
}

func TestLoad_RejectsInvalidYAMLDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kodiak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  cache_ttl: soon\n"), 0644))

	_, err := Load(path)

	require.Error(t, err)
}
