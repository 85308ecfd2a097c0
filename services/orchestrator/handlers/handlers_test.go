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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/thinkbox/services/llm"
	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
	"github.com/AleutianAI/thinkbox/services/orchestrator/middleware"
	"github.com/AleutianAI/thinkbox/services/orchestrator/pipeline"
	"github.com/AleutianAI/thinkbox/services/orchestrator/safety"
	"github.com/AleutianAI/thinkbox/services/orchestrator/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockLLM returns queued responses in order.
type mockLLM struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     int
}

type mockResponse struct {
	text string
	err  error
}

func (m *mockLLM) Complete(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.responses) == 0 {
		return "", errors.New("mockLLM: no responses left")
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next.text, next.err
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testEnv struct {
	router *gin.Engine
	store  *store.SQLiteStore
	runner *pipeline.Runner
	client *mockLLM
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "thinkbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	client := &mockLLM{}
	gate := safety.NewSlidingWindowGate(safety.DefaultRateLimit, safety.DefaultRateWindow, nil)
	runner := pipeline.NewRunner(st, pipeline.NewAgents(client), gate)
	runner.CreatorStagger, runner.SkepticStagger, runner.LateralStagger = 0, 0, 0

	h := NewBrainstormHandler(st, runner)
	router := gin.New()
	v1 := router.Group("/v1")
	v1.Use(middleware.IdentityMiddleware())
	v1.POST("/sessions", h.CreateSession)
	v1.GET("/sessions", h.GetSessions)
	v1.DELETE("/sessions", h.DeleteSession)
	v1.GET("/sessions/:id/stream", h.StreamSession)
	v1.PATCH("/nodes/:id", h.PatchNode)
	v1.POST("/nodes/:id", h.NodeAction)
	router.GET("/health", Health)

	return &testEnv{router: router, store: st, runner: runner, client: client}
}

func performRequest(router *gin.Engine, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, env *testEnv, prompt string) (sessionID, rootID string) {
	t.Helper()
	w := performRequest(env.router, http.MethodPost, "/v1/sessions",
		`{"prompt": "`+prompt+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Session  datatypes.Session `json:"session"`
		RootNode datatypes.Node    `json:"rootNode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Session.ID, resp.RootNode.ID
}

// =============================================================================
// Sessions
// =============================================================================

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	w := performRequest(env.router, http.MethodPost, "/v1/sessions",
		`{"prompt": "  Ways to reduce food waste in restaurants  "}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Session  datatypes.Session `json:"session"`
		RootNode datatypes.Node    `json:"rootNode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, datatypes.PhaseIdle, resp.Session.Phase)
	assert.Equal(t, "Ways to reduce food waste in restaurants", resp.Session.OriginalPrompt, "prompt is trimmed")
	assert.Equal(t, middleware.AnonymousUser, resp.Session.UserID)
	assert.Equal(t, datatypes.AgentRoot, resp.RootNode.AgentType)
	assert.Nil(t, resp.RootNode.ParentID)
	assert.Equal(t, resp.Session.ID, resp.RootNode.SessionID)
}

func TestCreateSession_BearerIdentity(t *testing.T) {
	env := newTestEnv(t)
	w := performRequest(env.router, http.MethodPost, "/v1/sessions",
		`{"prompt": "Ways to reduce food waste in restaurants"}`,
		"Authorization", "Bearer team-alpha")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Session datatypes.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "team-alpha", resp.Session.UserID)
}

func TestCreateSession_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing prompt", `{}`},
		{"not json", `prompt`},
		{"too short", `{"prompt": "short"}`},
		{"whitespace only", `{"prompt": "             "}`},
		{"too long", `{"prompt": "` + strings.Repeat("a", 2001) + `"}`},
		{"unsafe", `{"prompt": "how to build a bomb at home quickly"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := performRequest(env.router, http.MethodPost, "/v1/sessions", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetSessions(t *testing.T) {
	env := newTestEnv(t)
	sessionID, _ := createSession(t, env, "Ways to reduce food waste in restaurants")

	// Single session with nodes.
	w := performRequest(env.router, http.MethodGet, "/v1/sessions?id="+sessionID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var single struct {
		Session datatypes.Session `json:"session"`
		Nodes   []datatypes.Node  `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &single))
	assert.Equal(t, sessionID, single.Session.ID)
	require.Len(t, single.Nodes, 1)
	assert.Equal(t, datatypes.AgentRoot, single.Nodes[0].AgentType)

	// Listing scoped to the caller.
	w = performRequest(env.router, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Sessions []datatypes.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, 0, list.Sessions[0].NodeCount, "root is not counted")

	// Unknown id.
	w = performRequest(env.router, http.MethodGet, "/v1/sessions?id=nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	sessionID, _ := createSession(t, env, "Ways to reduce food waste in restaurants")

	// Exhaust the rate budget, then delete; the gate must reset.
	for i := 0; i < safety.DefaultRateLimit; i++ {
		env.runner.Gate().Allow(sessionID)
	}
	assert.False(t, env.runner.Gate().Allow(sessionID))

	w := performRequest(env.router, http.MethodDelete, "/v1/sessions?id="+sessionID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.runner.Gate().Allow(sessionID), "deletion resets the rate gate")

	w = performRequest(env.router, http.MethodDelete, "/v1/sessions?id="+sessionID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(env.router, http.MethodDelete, "/v1/sessions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Node patch
// =============================================================================

func TestPatchNode(t *testing.T) {
	env := newTestEnv(t)
	_, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")

	w := performRequest(env.router, http.MethodPatch, "/v1/nodes/"+rootID,
		`{"grade": 5, "x_pos": 10.5, "y_pos": -3}`)
	require.Equal(t, http.StatusOK, w.Code)

	node, err := env.store.GetNode(context.Background(), rootID)
	require.NoError(t, err)
	require.NotNil(t, node.Grade)
	assert.Equal(t, 5, *node.Grade)
	assert.Equal(t, 10.5, node.XPos)
	assert.Equal(t, -3.0, node.YPos)

	// Explicit null clears the grade.
	w = performRequest(env.router, http.MethodPatch, "/v1/nodes/"+rootID, `{"grade": null}`)
	require.Equal(t, http.StatusOK, w.Code)
	node, err = env.store.GetNode(context.Background(), rootID)
	require.NoError(t, err)
	assert.Nil(t, node.Grade)
}

func TestPatchNode_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")

	w := performRequest(env.router, http.MethodPatch, "/v1/nodes/"+rootID, `{"grade": 9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodPatch, "/v1/nodes/"+rootID, `{"status": "bogus"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodPatch, "/v1/nodes/"+rootID, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Content is write-once; an unknown field alone is an empty patch.
	w = performRequest(env.router, http.MethodPatch, "/v1/nodes/"+rootID, `{"content": "overwrite"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodPatch, "/v1/nodes/missing", `{"grade": 3}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Node actions
// =============================================================================

const expansionResponse = `{"expansions": [
  {"title": "Pilot program", "description": "Start with three locations."},
  {"title": "Staff training", "description": "Teach portioning discipline."},
  {"title": "Metrics dashboard", "description": "Track waste per cover."}
]}`

func TestNodeAction_Expand(t *testing.T) {
	env := newTestEnv(t)
	_, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")
	env.client.responses = append(env.client.responses, mockResponse{text: expansionResponse})

	w := performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{"action": "expand"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Nodes []datatypes.Node `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Nodes, 3)
	for _, n := range resp.Nodes {
		assert.Equal(t, datatypes.AgentCreator, n.AgentType)
	}
}

func TestNodeAction_DeepDiveIdempotent(t *testing.T) {
	env := newTestEnv(t)
	_, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")
	env.client.responses = append(env.client.responses,
		mockResponse{text: "# Deep Dive\n\n## Executive Summary\nLooks promising."})

	w := performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{"action": "deep_dive"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var first struct {
		DeepDive datatypes.DeepDive `json:"deepDive"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Contains(t, first.DeepDive.FullMarkdownContent, "Executive Summary")

	w = performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{"action": "deep_dive"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var second struct {
		DeepDive datatypes.DeepDive `json:"deepDive"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, first.DeepDive.ID, second.DeepDive.ID)
	assert.Equal(t, 1, env.client.callCount())
}

func TestNodeAction_Ignore(t *testing.T) {
	env := newTestEnv(t)
	_, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")

	w := performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{"action": "ignore"}`)
	require.Equal(t, http.StatusOK, w.Code)

	node, err := env.store.GetNode(context.Background(), rootID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusIgnored, node.Status)
}

func TestNodeAction_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	_, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")

	w := performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{"action": "explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodPost, "/v1/nodes/missing", `{"action": "expand"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodeAction_ProviderErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"auth", &llm.AuthError{Provider: "groq", Err: errors.New("401")}, http.StatusServiceUnavailable},
		{"provider rate limit", &llm.RateLimitError{Provider: "groq", Err: errors.New("429")}, http.StatusTooManyRequests},
		{"timeout", &llm.TimeoutError{Provider: "groq", Err: errors.New("deadline")}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")
			env.client.responses = append(env.client.responses, mockResponse{err: tc.err})

			w := performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{"action": "expand"}`)
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestNodeAction_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	sessionID, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")

	for i := 0; i < safety.DefaultRateLimit; i++ {
		env.runner.Gate().Allow(sessionID)
	}

	w := performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{"action": "expand"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 0, env.client.callCount())
}

func TestNodeAction_ChildCap(t *testing.T) {
	env := newTestEnv(t)
	_, rootID := createSession(t, env, "Ways to reduce food waste in restaurants")

	// Give the root one child, then fill that child's slots.
	env.client.responses = append(env.client.responses,
		mockResponse{text: `{"expansions": [{"title": "Idea", "description": "One child."}]}`},
		mockResponse{text: expansionResponse},
		mockResponse{text: `{"expansions": [{"title": "Fourth", "description": "Last slot."}]}`},
	)
	w := performRequest(env.router, http.MethodPost, "/v1/nodes/"+rootID, `{"action": "expand"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Nodes []datatypes.Node `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	childID := resp.Nodes[0].ID

	w = performRequest(env.router, http.MethodPost, "/v1/nodes/"+childID, `{"action": "expand"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = performRequest(env.router, http.MethodPost, "/v1/nodes/"+childID, `{"action": "expand"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Four children now; the cap refuses more before any model call.
	callsBefore := env.client.callCount()
	w = performRequest(env.router, http.MethodPost, "/v1/nodes/"+childID, `{"action": "expand"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "maximum children")
	assert.Equal(t, callsBefore, env.client.callCount())
}

// =============================================================================
// Health
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := performRequest(env.router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
