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
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/kodiak/pkg/logging"
	"github.com/AleutianAI/kodiak/services/log_insight/config"
	"github.com/AleutianAI/kodiak/services/log_insight/routes"
)

var (
	configPath string
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:   "loginsight",
		Short: "Kodiak log insight engine",
		Long: "Summarizes per-project error and warning activity from the remote\n" +
			"log store into an incrementally maintained cache.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup("loginsight")

			loaded, err := config.Load(configPath)
			if err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}
			cfg = loaded
			slog.Info("configuration loaded",
				"config_path", configPath,
				"cache_ttl", cfg.Engine.CacheTTL.Std(),
				"max_staleness", cfg.Engine.MaxStaleness.Std(),
			)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the log insight HTTP service",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			cleanup, err := initTracer(cfg.Server.OTLPEndpoint)
			if err != nil {
				log.Fatalf("failed to setup the OTLP tracer: %v", err)
			}
			defer cleanup(ctx)

			engine, closeFn, err := buildEngine(ctx, cfg)
			if err != nil {
				log.Fatalf("Failed to build the engine: %v", err)
			}
			defer closeFn()

			router := gin.Default()
			router.Use(otelgin.Middleware(tracerServiceName))
			routes.SetupRoutes(router, engine)

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			slog.Info("starting the log insight server", "addr", addr)
			if err := router.Run(addr); err != nil {
				log.Fatalf("Failed to start server: %v", err)
			}
		},
	}

	processCmd = &cobra.Command{
		Use:   "process <project-id>",
		Short: "Run one processing pass for a project and print the result",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			engine, closeFn, err := buildEngine(ctx, cfg)
			if err != nil {
				log.Fatalf("Failed to build the engine: %v", err)
			}
			defer closeFn()

			result, err := engine.Process(ctx, args[0])
			if err != nil {
				log.Fatalf("Processing failed: %v", err)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				log.Fatalf("Failed to render result: %v", err)
			}
			fmt.Fprintln(os.Stdout, string(out))
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "kodiak.yaml",
		"path to the configuration file (missing file means defaults)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
}
