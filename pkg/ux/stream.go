// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// StreamEventType represents the type of streaming event
type StreamEventType string

const (
	StreamEventExistingNodes StreamEventType = "existing_nodes"
	StreamEventPhaseChanged  StreamEventType = "phase_changed"
	StreamEventNodeCreated   StreamEventType = "node_created"
	StreamEventComplete      StreamEventType = "complete"
	StreamEventError         StreamEventType = "error"
)

// StreamEvent represents a single streaming event from the orchestrator.
//
// Node and Nodes are kept as raw JSON: the server's hash chain covers the
// serialized node payloads byte for byte, so re-marshaling them client-side
// would break verification.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Id        string          `json:"id,omitempty"`
	CreatedAt int64           `json:"created_at,omitempty"`
	Hash      string          `json:"hash,omitempty"`
	PrevHash  string          `json:"prev_hash,omitempty"`
	Phase     string          `json:"phase,omitempty"`
	Message   string          `json:"message,omitempty"`
	Node      json.RawMessage `json:"node,omitempty"`
	Nodes     json.RawMessage `json:"nodes,omitempty"`
}

// NodeView is the subset of a brainstorm node the CLI renders.
type NodeView struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id"`
	AgentType string  `json:"agent_type"`
	Content   string  `json:"content"`
	Metadata  string  `json:"metadata"`
	Status    string  `json:"status"`
}

// StreamResult contains the complete result of processing a brainstorm stream
type StreamResult struct {
	SessionPhase string
	Nodes        []NodeView
	Replayed     bool

	// Events holds every chained event in arrival order so the caller can
	// run hash chain verification after the stream completes.
	Events []StreamEvent
}

// FinalHash returns the hash of the last event in the stream, or empty if
// no events were received.
func (r *StreamResult) FinalHash() string {
	if len(r.Events) == 0 {
		return ""
	}
	return r.Events[len(r.Events)-1].Hash
}

// StreamProcessor defines the interface for processing brainstorm streams.
type StreamProcessor interface {
	// Process reads and processes a streaming response from the reader.
	// Returns the accumulated nodes, final phase, and any error. An error
	// event from the server terminates processing and is returned as an
	// error; events received before it are preserved in the result.
	Process(reader io.Reader) (*StreamResult, error)
}

// sseStreamProcessor implements StreamProcessor for Server-Sent Events
type sseStreamProcessor struct {
	writer io.Writer
	quiet  bool
	result StreamResult
}

// NewStreamProcessor creates a new SSE stream processor writing to stdout
func NewStreamProcessor() StreamProcessor {
	return &sseStreamProcessor{writer: os.Stdout}
}

// NewStreamProcessorWithWriter creates a stream processor with custom writer
// (for testing). quiet suppresses per-node rendering.
func NewStreamProcessorWithWriter(w io.Writer, quiet bool) StreamProcessor {
	return &sseStreamProcessor{writer: w, quiet: quiet}
}

// Process reads and processes a streaming response
func (p *sseStreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)
	// Node payloads can exceed the default 64KB token size
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// Skip blank separators and SSE comments (keepalive pings)
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
			continue
		}

		// Only "data: {...}" lines carry events; "event:" lines duplicate
		// the type field inside the payload.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		line = strings.TrimPrefix(line, "data: ")

		var event StreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("malformed stream event: %w", err)
		}
		p.result.Events = append(p.result.Events, event)

		switch event.Type {
		case StreamEventExistingNodes:
			if err := p.handleExistingNodes(event); err != nil {
				return nil, err
			}
		case StreamEventPhaseChanged:
			p.handlePhaseChanged(event)
		case StreamEventNodeCreated:
			if err := p.handleNodeCreated(event); err != nil {
				return nil, err
			}
		case StreamEventComplete:
			p.result.SessionPhase = event.Phase
			p.render("\n✓ %s\n", event.Message)
			result := p.result
			return &result, nil
		case StreamEventError:
			return nil, fmt.Errorf("%s", event.Message)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Stream ended without a terminal event (server dropped mid-run)
	result := p.result
	return &result, nil
}

func (p *sseStreamProcessor) handleExistingNodes(event StreamEvent) error {
	var nodes []NodeView
	if err := json.Unmarshal(event.Nodes, &nodes); err != nil {
		return fmt.Errorf("decode existing nodes: %w", err)
	}
	p.result.Nodes = append(p.result.Nodes, nodes...)
	p.result.Replayed = true
	p.render("↻ Replaying %d existing nodes\n", len(nodes))
	for _, node := range nodes {
		p.renderNode(node)
	}
	return nil
}

func (p *sseStreamProcessor) handlePhaseChanged(event StreamEvent) {
	p.result.SessionPhase = event.Phase
	p.render("\n── %s ──\n", event.Message)
}

func (p *sseStreamProcessor) handleNodeCreated(event StreamEvent) error {
	var node NodeView
	if err := json.Unmarshal(event.Node, &node); err != nil {
		return fmt.Errorf("decode node: %w", err)
	}
	p.result.Nodes = append(p.result.Nodes, node)
	p.renderNode(node)
	return nil
}

func (p *sseStreamProcessor) renderNode(node NodeView) {
	p.render("%s %s\n", agentGlyph(node.AgentType), ContentTitle(node.Content))
}

func (p *sseStreamProcessor) render(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.writer, format, args...)
}

func agentGlyph(agentType string) string {
	switch agentType {
	case "creator":
		return "💡"
	case "skeptic":
		return "⚠"
	case "lateral":
		return "🔀"
	default:
		return "•"
	}
}

// ContentTitle extracts a display title from a node content blob. Agent
// nodes store JSON {title, description}; root nodes store the raw prompt.
func ContentTitle(content string) string {
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		if payload.Title != "" {
			return firstLine(payload.Title)
		}
		if payload.Description != "" {
			return firstLine(payload.Description)
		}
	}
	return firstLine(content)
}

// firstLine returns the first line of content, truncated for terminal width.
func firstLine(content string) string {
	line := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		line = content[:idx]
	}
	const maxWidth = 96
	runes := []rune(line)
	if len(runes) > maxWidth {
		return string(runes[:maxWidth]) + "…"
	}
	return line
}
