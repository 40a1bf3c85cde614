// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the log insight engine over HTTP. The
// surrounding admin backend mounts these routes; everything about
// authentication and tenancy resolution happens before requests get
// here.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
	"github.com/AleutianAI/kodiak/services/log_insight/fetcher"
)

// Processor is the slice of the engine the HTTP layer needs.
type Processor interface {
	Process(ctx context.Context, projectID string) (*datatypes.ProcessingResult, error)
	Summaries(ctx context.Context, projectID string) ([]*datatypes.LogSummary, error)
}

// ProcessLogs triggers a processing run for the project in the path.
//
// 200 with a ProcessingResult on success (including degraded cache
// fallbacks), 502 when the log source is unavailable and there is no
// cache to fall back to.
func ProcessLogs(engine Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")
		if projectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "projectId is required"})
			return
		}

		requestID := uuid.NewString()
		logger := slog.With("request_id", requestID, "project_id", projectID)
		logger.Info("processing request received")

		result, err := engine.Process(c.Request.Context(), projectID)
		if err != nil {
			if errors.Is(err, fetcher.ErrLogSourceUnavailable) {
				logger.Error("log source unavailable with no cache fallback", "error", err)
				c.JSON(http.StatusBadGateway, gin.H{
					"error":      "log source unavailable",
					"request_id": requestID,
				})
				return
			}
			logger.Error("processing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":      "processing failed",
				"request_id": requestID,
			})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// GetSummaries returns the project's cached summaries without
// triggering any fetch. An unknown project reads as an empty list.
func GetSummaries(engine Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")
		if projectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "projectId is required"})
			return
		}

		summaries, err := engine.Summaries(c.Request.Context(), projectID)
		if err != nil {
			slog.Error("reading summaries failed", "project_id", projectID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reading summaries failed"})
			return
		}
		if summaries == nil {
			summaries = []*datatypes.LogSummary{}
		}

		c.JSON(http.StatusOK, gin.H{
			"projectId": projectID,
			"summaries": summaries,
		})
	}
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
