// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *orchestratorClient {
	return &orchestratorClient{
		baseURL: url,
		token:   "team-alpha",
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func TestCreateSession(t *testing.T) {
	var gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"session":  map[string]any{"id": "s1", "phase": "pending"},
			"rootNode": map[string]any{"id": "n1", "agent_type": "root"},
		})
	}))
	defer server.Close()

	session, err := testClient(server.URL).createSession(context.Background(), "Reduce water use")

	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
	assert.Equal(t, "Bearer team-alpha", gotAuth)
	assert.JSONEq(t, `{"prompt":"Reduce water use"}`, gotBody)
}

func TestAPIErrorSurfacesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "Rate limit reached. Please wait a moment."})
	}))
	defer server.Close()

	_, err := testClient(server.URL).createSession(context.Background(), "anything")

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Contains(t, apiErr.Message, "Rate limit reached")
}

func TestGetSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "s1", r.URL.Query().Get("id"))
		json.NewEncoder(w).Encode(map[string]any{
			"session": map[string]any{"id": "s1", "phase": "complete", "original_prompt": "Reduce water use"},
			"nodes": []map[string]any{
				{"id": "root", "agent_type": "root", "content": "Reduce water use"},
				{"id": "n1", "parent_id": "root", "agent_type": "creator", "content": "Drip irrigation"},
			},
		})
	}))
	defer server.Close()

	session, nodes, err := testClient(server.URL).getSession(context.Background(), "s1")

	require.NoError(t, err)
	assert.Equal(t, "complete", session.Phase)
	require.Len(t, nodes, 2)
	assert.Equal(t, "creator", nodes[1].AgentType)
	require.NotNil(t, nodes[1].ParentID)
	assert.Equal(t, "root", *nodes[1].ParentID)
}

func TestNodeActions(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		json.NewEncoder(w).Encode(map[string]any{
			"nodes":    []map[string]any{{"id": "c1", "agent_type": "creator"}},
			"deepDive": map[string]any{"id": "d1", "node_id": "n1", "full_markdown_content": "# Report"},
			"success":  true,
		})
	}))
	defer server.Close()
	client := testClient(server.URL)
	ctx := context.Background()

	nodes, err := client.expandNode(ctx, "n1")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
	assert.Equal(t, "/v1/nodes/n1", gotPath)
	assert.JSONEq(t, `{"action":"expand"}`, gotBody)

	dive, err := client.deepDiveNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "# Report", dive.FullMarkdownContent)
	assert.JSONEq(t, `{"action":"deep_dive"}`, gotBody)

	require.NoError(t, client.ignoreNode(ctx, "n1"))
	assert.JSONEq(t, `{"action":"ignore"}`, gotBody)
}

func TestPatchNode_NullGradeSerializes(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer server.Close()

	err := testClient(server.URL).patchNode(context.Background(), "n1", map[string]any{"grade": nil})

	require.NoError(t, err)
	assert.JSONEq(t, `{"grade":null}`, gotBody)
}

func TestOpenStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/s1/stream", r.URL.Path)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: complete\ndata: {\"type\":\"complete\"}\n\n")
	}))
	defer server.Close()

	body, err := testClient(server.URL).openStream(context.Background(), "s1")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"complete"`)
}

func TestOpenStream_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Not found"})
	}))
	defer server.Close()

	_, err := testClient(server.URL).openStream(context.Background(), "missing")

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}
