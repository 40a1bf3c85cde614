// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the log insight service configuration from an
// optional YAML file plus KODIAK_-prefixed environment overrides.
// Values are validated after loading; a missing file just means
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry values like "2h".
type Duration time.Duration

// UnmarshalYAML parses a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Engine EngineConfig `yaml:"engine"`
	Store  StoreConfig  `yaml:"store"`
	AWS    AWSConfig    `yaml:"aws"`
	Enrich EnrichConfig `yaml:"enrich"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
	// OTLPEndpoint is the trace collector address. The standard
	// OTEL_EXPORTER_OTLP_ENDPOINT variable, when set, wins over both
	// this field and KODIAK_OTLP_ENDPOINT.
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required"`
}

// EngineConfig carries the freshness and fetch tuning knobs.
type EngineConfig struct {
	CacheTTL           Duration `yaml:"cache_ttl" validate:"required"`
	MaxStaleness       Duration `yaml:"max_staleness" validate:"required"`
	MaxStreams         int      `yaml:"max_streams" validate:"min=1"`
	MaxEventsPerStream int      `yaml:"max_events_per_stream" validate:"min=1"`
	SampleMessageBound int      `yaml:"sample_message_bound" validate:"min=1"`
	FetchConcurrency   int      `yaml:"fetch_concurrency" validate:"min=1"`
	AdapterCallTimeout Duration `yaml:"adapter_call_timeout" validate:"required"`
	LogGroupPrefix     string   `yaml:"log_group_prefix" validate:"required"`
}

type StoreConfig struct {
	Path       string   `yaml:"path"`
	InMemory   bool     `yaml:"in_memory"`
	SyncWrites bool     `yaml:"sync_writes"`
	Retention  Duration `yaml:"retention"`
}

type AWSConfig struct {
	Region            string  `yaml:"region"`
	Endpoint          string  `yaml:"endpoint"`
	AccessKeyID       string  `yaml:"access_key_id"`
	SecretAccessKey   string  `yaml:"secret_access_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type EnrichConfig struct {
	Enabled     bool   `yaml:"enabled"`
	OpenAIModel string `yaml:"openai_model"`
	WeaviateURL string `yaml:"weaviate_url"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:         12230,
			OTLPEndpoint: "kodiak-otel-collector:4317",
		},
		Engine: EngineConfig{
			CacheTTL:           Duration(2 * time.Hour),
			MaxStaleness:       Duration(24 * time.Hour),
			MaxStreams:         50,
			MaxEventsPerStream: 10000,
			SampleMessageBound: 5,
			FetchConcurrency:   4,
			AdapterCallTimeout: Duration(10 * time.Second),
			LogGroupPrefix:     "/kodiak/projects/",
		},
		Store: StoreConfig{
			Path:       "/var/lib/kodiak/loginsight",
			SyncWrites: true,
			Retention:  Duration(7 * 24 * time.Hour),
		},
		AWS: AWSConfig{
			Region:            "us-east-1",
			RequestsPerSecond: 5,
		},
		Enrich: EnrichConfig{
			OpenAIModel: "text-embedding-3-small",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML
// file at path (skipped when path is empty or absent), then
// environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults plus env are a complete configuration.
		case err != nil:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Engine.MaxStaleness.Std() <= cfg.Engine.CacheTTL.Std() {
		return nil, fmt.Errorf("invalid configuration: max_staleness (%s) must exceed cache_ttl (%s)",
			cfg.Engine.MaxStaleness.Std(), cfg.Engine.CacheTTL.Std())
	}
	return &cfg, nil
}

// applyEnv overlays KODIAK_-prefixed environment variables.
func applyEnv(cfg *Config) error {
	var err error

	setString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setInt := func(key string, target *int) {
		v := os.Getenv(key)
		if v == "" || err != nil {
			return
		}
		parsed, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("invalid %s=%q: %w", key, v, perr)
			return
		}
		*target = parsed
	}
	setDuration := func(key string, target *Duration) {
		v := os.Getenv(key)
		if v == "" || err != nil {
			return
		}
		parsed, perr := time.ParseDuration(v)
		if perr != nil {
			err = fmt.Errorf("invalid %s=%q: %w", key, v, perr)
			return
		}
		*target = Duration(parsed)
	}
	setBool := func(key string, target *bool) {
		v := os.Getenv(key)
		if v == "" || err != nil {
			return
		}
		parsed, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("invalid %s=%q: %w", key, v, perr)
			return
		}
		*target = parsed
	}

	setInt("KODIAK_SERVER_PORT", &cfg.Server.Port)
	setString("KODIAK_OTLP_ENDPOINT", &cfg.Server.OTLPEndpoint)

	setDuration("KODIAK_CACHE_TTL", &cfg.Engine.CacheTTL)
	setDuration("KODIAK_MAX_STALENESS", &cfg.Engine.MaxStaleness)
	setInt("KODIAK_MAX_STREAMS", &cfg.Engine.MaxStreams)
	setInt("KODIAK_MAX_EVENTS_PER_STREAM", &cfg.Engine.MaxEventsPerStream)
	setInt("KODIAK_SAMPLE_MESSAGE_BOUND", &cfg.Engine.SampleMessageBound)
	setInt("KODIAK_FETCH_CONCURRENCY", &cfg.Engine.FetchConcurrency)
	setDuration("KODIAK_ADAPTER_CALL_TIMEOUT", &cfg.Engine.AdapterCallTimeout)
	setString("KODIAK_LOG_GROUP_PREFIX", &cfg.Engine.LogGroupPrefix)

	setString("KODIAK_STORE_PATH", &cfg.Store.Path)
	setBool("KODIAK_STORE_IN_MEMORY", &cfg.Store.InMemory)
	setDuration("KODIAK_STORE_RETENTION", &cfg.Store.Retention)

	setString("KODIAK_AWS_REGION", &cfg.AWS.Region)
	setString("KODIAK_AWS_ENDPOINT", &cfg.AWS.Endpoint)
	setString("KODIAK_AWS_ACCESS_KEY_ID", &cfg.AWS.AccessKeyID)
	setString("KODIAK_AWS_SECRET_ACCESS_KEY", &cfg.AWS.SecretAccessKey)

	setBool("KODIAK_ENRICH_ENABLED", &cfg.Enrich.Enabled)
	setString("KODIAK_ENRICH_OPENAI_MODEL", &cfg.Enrich.OpenAIModel)
	setString("KODIAK_ENRICH_WEAVIATE_URL", &cfg.Enrich.WeaviateURL)

	return err
}
