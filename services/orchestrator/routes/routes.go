// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/thinkbox/services/orchestrator/handlers"
	"github.com/AleutianAI/thinkbox/services/orchestrator/middleware"
	"github.com/AleutianAI/thinkbox/services/orchestrator/pipeline"
	"github.com/AleutianAI/thinkbox/services/orchestrator/store"
)

// SetupRoutes registers the brainstorm API on router.
func SetupRoutes(router *gin.Engine, st store.Store, runner *pipeline.Runner) {
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.NewBrainstormHandler(st, runner)

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.IdentityMiddleware())
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", h.CreateSession)
			sessions.GET("", h.GetSessions)
			sessions.DELETE("", h.DeleteSession)
			sessions.GET("/:id/stream", h.StreamSession)
		}
		nodes := v1.Group("/nodes")
		{
			nodes.PATCH("/:id", h.PatchNode)
			nodes.POST("/:id", h.NodeAction)
		}
	}
}
