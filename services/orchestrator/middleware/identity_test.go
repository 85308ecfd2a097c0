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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func identityFor(t *testing.T, authHeader string) string {
	t.Helper()
	var got string
	r := gin.New()
	r.Use(IdentityMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		got = UserID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestIdentityMiddleware(t *testing.T) {
	assert.Equal(t, AnonymousUser, identityFor(t, ""))
	assert.Equal(t, AnonymousUser, identityFor(t, "Basic dXNlcjpwYXNz"))
	assert.Equal(t, AnonymousUser, identityFor(t, "Bearer "))
	assert.Equal(t, "team-alpha", identityFor(t, "Bearer team-alpha"))
	assert.Equal(t, "team-alpha", identityFor(t, "bearer team-alpha"))
}
