// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the brainstorm
// orchestrator: session CRUD, node actions and the SSE pipeline stream.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/thinkbox/services/llm"
	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
	"github.com/AleutianAI/thinkbox/services/orchestrator/middleware"
	"github.com/AleutianAI/thinkbox/services/orchestrator/pipeline"
	"github.com/AleutianAI/thinkbox/services/orchestrator/safety"
	"github.com/AleutianAI/thinkbox/services/orchestrator/store"
)

// BrainstormHandler serves the session and node endpoints. One instance
// is shared by all requests.
type BrainstormHandler struct {
	store  store.Store
	runner *pipeline.Runner
}

// NewBrainstormHandler wires the handler to its store and pipeline runner.
func NewBrainstormHandler(st store.Store, runner *pipeline.Runner) *BrainstormHandler {
	return &BrainstormHandler{store: st, runner: runner}
}

// CreateSession handles POST /v1/sessions.
//
// # Description
//
// Validates and safety-screens the problem statement, then creates the
// session together with its root node. The root node stores the raw
// prompt; the pipeline itself is only started by the stream endpoint.
func (h *BrainstormHandler) CreateSession(c *gin.Context) {
	// Step 1: Parse and validate the request body.
	var req datatypes.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prompt := req.TrimmedPrompt()

	// Step 2: Content gate. An unsafe prompt never reaches the store or
	// a model.
	if !safety.IsSafeContent(prompt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt contains disallowed content"})
		return
	}

	// Step 3: Create the session and its root node.
	userID := middleware.UserID(c)
	session, err := h.store.CreateSession(c.Request.Context(), uuid.NewString(), userID, prompt)
	if err != nil {
		h.respondError(c, err)
		return
	}

	rootNode, err := h.store.CreateNode(c.Request.Context(), &datatypes.Node{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		AgentType: datatypes.AgentRoot,
		Content:   prompt,
		Metadata:  "{}",
		Status:    datatypes.StatusComplete,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	slog.Info("Created brainstorm session",
		"session_id", session.ID, "user_id", userID, "prompt_len", len(prompt))
	c.JSON(http.StatusCreated, gin.H{"session": session, "rootNode": rootNode})
}

// GetSessions handles GET /v1/sessions. With an id query parameter it
// returns that session plus its full node tree; without one it lists the
// caller's sessions with node counts.
func (h *BrainstormHandler) GetSessions(c *gin.Context) {
	if id := c.Query("id"); id != "" {
		session, err := h.store.GetSession(c.Request.Context(), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		nodes, err := h.store.ListSessionNodes(c.Request.Context(), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session, "nodes": nodes})
		return
	}

	sessions, err := h.store.ListSessions(c.Request.Context(), middleware.UserID(c), 50)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// DeleteSession handles DELETE /v1/sessions?id=. The cascade removes the
// node tree and deep dives; the session's rate-gate state is reset so a
// recreated session starts with a full budget.
func (h *BrainstormHandler) DeleteSession(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}

	if err := h.store.DeleteSession(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.runner.Gate().Reset(id)

	slog.Info("Deleted brainstorm session", "session_id", id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// respondError maps internal errors to client responses. Provider and
// store details stay out of response bodies.
func (h *BrainstormHandler) respondError(c *gin.Context, err error) {
	var capErr *store.CapacityError
	var authErr *llm.AuthError
	var rateErr *llm.RateLimitError
	var timeoutErr *llm.TimeoutError

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, pipeline.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit reached. Please wait a moment."})
	case errors.As(err, &capErr):
		if capErr.Kind == "node_children" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Node already has maximum children (4)."})
		} else {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Maximum node limit (50) reached for this session."})
		}
	case errors.Is(err, store.ErrConstraint):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
	case errors.As(err, &authErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI service authentication failed. Please check the GROQ_API_KEY configuration."})
	case errors.As(err, &rateErr):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "AI service rate limit reached. Please wait a moment and try again."})
	case errors.As(err, &timeoutErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI service timed out. Please try again."})
	default:
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error. Please try again."})
	}
}
