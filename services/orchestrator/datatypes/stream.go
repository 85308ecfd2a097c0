// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Stream Events
// =============================================================================

// StreamEventType identifies one kind of brainstorm stream event.
type StreamEventType string

const (
	// StreamEventExistingNodes replays the full node set of a session that
	// already ran. Terminal: the channel closes right after it.
	StreamEventExistingNodes StreamEventType = "existing_nodes"

	// StreamEventPhaseChanged announces a pipeline phase transition.
	StreamEventPhaseChanged StreamEventType = "phase_changed"

	// StreamEventNodeCreated carries one freshly persisted node.
	StreamEventNodeCreated StreamEventType = "node_created"

	// StreamEventComplete marks a successful pipeline run. Terminal.
	StreamEventComplete StreamEventType = "complete"

	// StreamEventError carries a client-safe failure message. Terminal.
	StreamEventError StreamEventType = "error"
)

// Terminal reports whether the event type ends the stream. Every
// connection sees exactly one terminal event.
func (t StreamEventType) Terminal() bool {
	switch t {
	case StreamEventExistingNodes, StreamEventComplete, StreamEventError:
		return true
	}
	return false
}

// StreamEvent is one Server-Sent Event on a brainstorm stream.
//
// # Description
//
// Each event is assigned an Id (UUID v4) and CreatedAt (Unix ms) when
// written. Hash is SHA-256 over the event content and PrevHash links to
// the previous event, giving the client a verifiable chain of custody
// over the order in which nodes were revealed.
//
// # Fields
//
//   - Type: event discriminator, mirrored into the SSE "event:" field
//   - Phase/Message: set on phase_changed and error events
//   - Node: set on node_created events
//   - Nodes: set on existing_nodes replay events
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Id        string          `json:"id,omitempty"`
	CreatedAt int64           `json:"created_at,omitempty"`
	Hash      string          `json:"hash,omitempty"`
	PrevHash  string          `json:"prev_hash,omitempty"`

	Phase   Phase  `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`
	Node    *Node  `json:"node,omitempty"`
	Nodes   []Node `json:"nodes,omitempty"`
}
