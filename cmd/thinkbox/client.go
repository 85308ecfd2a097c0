// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

// sessionInfo mirrors the orchestrator's session payload.
type sessionInfo struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	OriginalPrompt string `json:"original_prompt"`
	Phase          string `json:"phase"`
	CreatedAt      string `json:"created_at"`
	NodeCount      int    `json:"node_count"`
}

// nodeInfo mirrors the orchestrator's node payload.
type nodeInfo struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id"`
	AgentType string  `json:"agent_type"`
	Content   string  `json:"content"`
	Grade     *int    `json:"grade"`
	Status    string  `json:"status"`
}

// deepDiveInfo mirrors the orchestrator's deep dive payload.
type deepDiveInfo struct {
	ID                  string `json:"id"`
	NodeID              string `json:"node_id"`
	FullMarkdownContent string `json:"full_markdown_content"`
}

// apiError carries the server's status code and sanitized message so run
// functions can report exactly what the orchestrator said.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// orchestratorClient is a minimal JSON/SSE client for the orchestrator's
// v1 API.
type orchestratorClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient() *orchestratorClient {
	return &orchestratorClient{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		token:   authToken,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// doJSON performs a request with optional JSON body and decodes the JSON
// response into out (when out is non-nil). Non-2xx responses become
// *apiError with the server's error message.
func (c *orchestratorClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// openStream opens the session's SSE stream. The caller owns the body.
// Streams run for the length of the pipeline, so no client timeout is
// applied; cancellation comes from ctx.
func (c *orchestratorClient) openStream(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/sessions/"+sessionID+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.setAuth(req)

	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}

func (c *orchestratorClient) createSession(ctx context.Context, prompt string) (*sessionInfo, error) {
	var result struct {
		Session  sessionInfo `json:"session"`
		RootNode nodeInfo    `json:"rootNode"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/sessions",
		map[string]string{"prompt": prompt}, &result)
	if err != nil {
		return nil, err
	}
	return &result.Session, nil
}

func (c *orchestratorClient) listSessions(ctx context.Context) ([]sessionInfo, error) {
	var result struct {
		Sessions []sessionInfo `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions", nil, &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

func (c *orchestratorClient) getSession(ctx context.Context, id string) (*sessionInfo, []nodeInfo, error) {
	var result struct {
		Session sessionInfo `json:"session"`
		Nodes   []nodeInfo  `json:"nodes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions?id="+id, nil, &result); err != nil {
		return nil, nil, err
	}
	return &result.Session, result.Nodes, nil
}

func (c *orchestratorClient) deleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/sessions?id="+id, nil, nil)
}

func (c *orchestratorClient) expandNode(ctx context.Context, nodeID string) ([]nodeInfo, error) {
	var result struct {
		Nodes []nodeInfo `json:"nodes"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/nodes/"+nodeID,
		map[string]string{"action": "expand"}, &result)
	if err != nil {
		return nil, err
	}
	return result.Nodes, nil
}

func (c *orchestratorClient) deepDiveNode(ctx context.Context, nodeID string) (*deepDiveInfo, error) {
	var result struct {
		DeepDive deepDiveInfo `json:"deepDive"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/nodes/"+nodeID,
		map[string]string{"action": "deep_dive"}, &result)
	if err != nil {
		return nil, err
	}
	return &result.DeepDive, nil
}

func (c *orchestratorClient) ignoreNode(ctx context.Context, nodeID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/nodes/"+nodeID,
		map[string]string{"action": "ignore"}, nil)
}

// patchNode sends a raw patch body. A nil grade value must serialize as
// an explicit JSON null to clear the grade, hence map[string]any.
func (c *orchestratorClient) patchNode(ctx context.Context, nodeID string, patch map[string]any) error {
	return c.doJSON(ctx, http.MethodPatch, "/v1/nodes/"+nodeID, patch, nil)
}

func (c *orchestratorClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &apiError{Status: resp.StatusCode, Message: "unknown error"}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
