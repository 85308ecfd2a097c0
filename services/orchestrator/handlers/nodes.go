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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
)

// PatchNode handles PATCH /v1/nodes/:id. Only grade, status, x_pos and
// y_pos are writable; content and metadata are write-once. An explicit
// "grade": null clears the grade.
func (h *BrainstormHandler) PatchNode(c *gin.Context) {
	id := c.Param("id")

	var patch datatypes.PatchNodeRequest
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := patch.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields in request"})
		return
	}

	if err := h.store.UpdateNode(c.Request.Context(), id, &patch); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// NodeAction handles POST /v1/nodes/:id.
//
// # Description
//
// Dispatches one of the on-demand actions:
//
//   - expand: generate up to three sub-ideas under the node
//   - deep_dive: return the node's report, generating it on first request
//   - ignore: mark the node ignored
//
// Capacity and rate-gate failures surface as 400/429 before any model
// call is made; provider failures map to 429/503/500.
func (h *BrainstormHandler) NodeAction(c *gin.Context) {
	id := c.Param("id")

	var req datatypes.NodeActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case datatypes.ActionExpand:
		nodes, err := h.runner.ExpandNode(ctx, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		slog.Info("Expanded node", "node_id", id, "children", len(nodes))
		c.JSON(http.StatusOK, gin.H{"nodes": nodes})

	case datatypes.ActionDeepDive:
		dive, err := h.runner.DeepDiveNode(ctx, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deepDive": dive})

	case datatypes.ActionIgnore:
		if err := h.runner.IgnoreNode(ctx, id); err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
	}
}
