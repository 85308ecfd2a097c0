// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/thinkbox/services/orchestrator/observability"
)

// MetricsMiddleware records a request counter per route template and
// status code. The route template (not the raw path) keeps the label
// cardinality bounded.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observability.RequestsTotal.
			WithLabelValues(route, strconv.Itoa(c.Writer.Status())).
			Inc()
	}
}
