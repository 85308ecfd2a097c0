// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the brainstorm
// orchestrator.
//
// # Identity Flow
//
// The identity middleware derives a stable user id for session scoping.
// A bearer token in the Authorization header becomes the user id; a
// request without one runs as "anonymous". There is no credential
// validation in the open-source build; the id only partitions sessions
// between callers.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the context key for the derived user id. Typed key name
// to avoid collisions with other context values.
const userIDKey = "thinkbox_user_id"

// AnonymousUser is the identity assigned to unauthenticated requests.
const AnonymousUser = "anonymous"

// UserID returns the identity derived for this request. Always non-empty
// once IdentityMiddleware has run.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return AnonymousUser
}

// IdentityMiddleware resolves the caller identity for every request.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(userIDKey, extractIdentity(c))
		c.Next()
	}
}

func extractIdentity(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return AnonymousUser
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return AnonymousUser
	}
	return strings.TrimSpace(parts[1])
}
