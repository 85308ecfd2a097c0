// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
	"github.com/AleutianAI/thinkbox/services/orchestrator/observability"
	"github.com/AleutianAI/thinkbox/services/orchestrator/store"
)

// keepAliveInterval paces SSE comment pings during long generation calls.
const keepAliveInterval = 15 * time.Second

// sseSink adapts an SSEWriter to the pipeline's EventSink. Write errors
// are logged and swallowed; a dropped client must not abort the run
// mid-phase and leave the tree half-built.
type sseSink struct {
	writer    SSEWriter
	sessionID string
}

func (s *sseSink) Send(event *datatypes.StreamEvent) {
	if err := s.writer.WriteEvent(*event); err != nil {
		slog.Debug("Dropped stream event, client likely disconnected",
			"session_id", s.sessionID, "type", event.Type)
	}
}

// StreamSession handles GET /v1/sessions/:id/stream.
//
// # Description
//
// Opens an SSE stream and drives the brainstorm pipeline for the
// session. A session that already has nodes is replayed as a single
// existing_nodes event. Every connection ends with exactly one terminal
// event (existing_nodes, complete or error) before close.
func (h *BrainstormHandler) StreamSession(c *gin.Context) {
	sessionID := c.Param("id")

	// Step 1: 404 before committing to the SSE content type.
	if _, err := h.store.GetSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.String(http.StatusNotFound, "Session not found")
		} else {
			c.String(http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	// Step 2: Switch the response to an event stream.
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.String(http.StatusInternalServerError, "Streaming not supported")
		return
	}

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	// Step 3: Keep the connection warm while the model works.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = writer.WriteKeepAlive()
			case <-done:
				return
			}
		}
	}()

	// Step 4: Run the pipeline. The runner emits the terminal event
	// itself, including on failure.
	report, err := h.runner.Run(c.Request.Context(), sessionID, &sseSink{writer: writer, sessionID: sessionID})
	if err != nil {
		slog.Warn("Brainstorm run ended with error", "session_id", sessionID, "error", err)
		return
	}
	slog.Info("Brainstorm run finished",
		"session_id", sessionID,
		"replayed", report.Replayed,
		"nodes_created", report.NodesCreated,
		"rejections", len(report.Rejections))
}
