// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging sets up structured logging for Kodiak services.
//
// Services log JSON to stdout so collectors can parse lines directly;
// when stderr is an interactive terminal (local development, the
// one-shot CLI) the format switches to a readable text handler. A
// trace-aware helper attaches the current span identifiers so log
// lines join up with distributed traces.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/trace"
)

// Setup builds the process-wide logger and installs it as the slog
// default.
//
// # Description
//
// The level comes from KODIAK_LOG_LEVEL (debug, info, warn, error;
// default info). Format selection:
//
//   - stderr is a TTY: text handler, for humans.
//   - otherwise: JSON handler on stdout, for collectors.
//
// # Outputs
//
//   - *slog.Logger: the installed logger, also available via
//     slog.Default().
func Setup(service string) *slog.Logger {
	level := parseLevel(os.Getenv("KODIAK_LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTrace returns the logger extended with the span identifiers
// from ctx, or the logger unchanged when no span is recording.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
