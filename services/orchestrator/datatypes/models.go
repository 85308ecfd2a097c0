// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the wire and storage types shared by the
// brainstorming orchestrator: sessions, idea nodes, deep-dive reports,
// request bodies and stream events.
package datatypes

import "encoding/json"

// =============================================================================
// Session
// =============================================================================

// Phase is the session-wide stage of the scripted three-agent pipeline.
// Phases only ever move forward; no code path rolls a session back.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseCritiquing Phase = "critiquing"
	PhaseEvolving   Phase = "evolving"
	PhaseComplete   Phase = "complete"
)

// Ordinal returns the position of the phase in the forward-only sequence.
// Unknown phases sort before idle.
func (p Phase) Ordinal() int {
	switch p {
	case PhaseIdle:
		return 0
	case PhaseGenerating:
		return 1
	case PhaseCritiquing:
		return 2
	case PhaseEvolving:
		return 3
	case PhaseComplete:
		return 4
	default:
		return -1
	}
}

// Session is one brainstorming run anchored by a single problem statement.
// Immutable after creation except for Phase.
type Session struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	OriginalPrompt string `json:"original_prompt"`
	Phase          Phase  `json:"phase"`
	CreatedAt      string `json:"created_at"`
}

// SessionSummary is a Session plus the non-root node count, used by the
// session list endpoint.
type SessionSummary struct {
	Session
	NodeCount int `json:"node_count"`
}

// =============================================================================
// Node
// =============================================================================

// AgentType identifies which persona produced a node.
type AgentType string

const (
	AgentRoot    AgentType = "root"
	AgentCreator AgentType = "creator"
	AgentSkeptic AgentType = "skeptic"
	AgentLateral AgentType = "lateral"
	AgentSummary AgentType = "summary"
)

// Valid reports whether t is one of the known agent types.
func (t AgentType) Valid() bool {
	switch t {
	case AgentRoot, AgentCreator, AgentSkeptic, AgentLateral, AgentSummary:
		return true
	}
	return false
}

// ChildType returns the agent type that children spawned from a node of
// this type inherit: skeptic nodes spawn skeptics, lateral nodes spawn
// laterals, everything else spawns creators.
func (t AgentType) ChildType() AgentType {
	switch t {
	case AgentSkeptic:
		return AgentSkeptic
	case AgentLateral:
		return AgentLateral
	default:
		return AgentCreator
	}
}

// NodeStatus is the lifecycle state of a node. The pipeline only ever
// writes "complete"; "ignored" is set by the ignore action. "pending" and
// "generating" are schema-valid but currently unassigned.
type NodeStatus string

const (
	StatusPending    NodeStatus = "pending"
	StatusGenerating NodeStatus = "generating"
	StatusComplete   NodeStatus = "complete"
	StatusIgnored    NodeStatus = "ignored"
)

// Valid reports whether s is one of the known statuses.
func (s NodeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusComplete, StatusIgnored:
		return true
	}
	return false
}

// Node is one tree entry produced by a generation agent or user action.
// Content and Metadata are opaque serialized blobs owned by whichever
// component wrote them; the store does not interpret either.
type Node struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	ParentID  *string    `json:"parent_id"`
	AgentType AgentType  `json:"agent_type"`
	Content   string     `json:"content"`
	Metadata  string     `json:"metadata"`
	Grade     *int       `json:"grade"`
	Status    NodeStatus `json:"status"`
	XPos      float64    `json:"x_pos"`
	YPos      float64    `json:"y_pos"`
	CreatedAt string     `json:"created_at"`
}

// NodeContent is the {title, description} payload carried by every
// non-root node. Root nodes store the raw prompt instead.
type NodeContent struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// ParseContent decodes a node's content blob. A blob that is not JSON is
// treated as a bare description, matching how root nodes store prompts.
func ParseContent(content string) NodeContent {
	var nc NodeContent
	if err := json.Unmarshal([]byte(content), &nc); err != nil {
		return NodeContent{Description: content}
	}
	return nc
}

// EncodeContent serializes a title/description pair for storage.
func EncodeContent(title, description string) string {
	b, _ := json.Marshal(NodeContent{Title: title, Description: description})
	return string(b)
}

// =============================================================================
// Deep dive
// =============================================================================

// DeepDive is a long-form generated markdown report attached to exactly
// one node. Created at most once per node, immutable thereafter.
type DeepDive struct {
	ID                  string `json:"id"`
	NodeID              string `json:"node_id"`
	FullMarkdownContent string `json:"full_markdown_content"`
	CreatedAt           string `json:"created_at"`
}
