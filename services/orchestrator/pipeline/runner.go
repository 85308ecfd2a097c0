// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/thinkbox/services/llm"
	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
	"github.com/AleutianAI/thinkbox/services/orchestrator/observability"
	"github.com/AleutianAI/thinkbox/services/orchestrator/safety"
	"github.com/AleutianAI/thinkbox/services/orchestrator/store"
)

// ErrRunInProgress is returned when a second stream tries to drive the
// same session's pipeline while a run is active.
var ErrRunInProgress = errors.New("brainstorm already running for this session")

// ErrRateLimited is returned by node actions when the session's rate gate
// refuses the call.
var ErrRateLimited = errors.New("session rate limit reached")

// EventSink receives pipeline progress events in order. The SSE writer is
// the production sink; tests collect into a slice.
type EventSink interface {
	Send(event *datatypes.StreamEvent)
}

// Rejection records one generated item that was dropped instead of
// persisted, with the stage that dropped it.
type Rejection struct {
	Stage  string `json:"stage"`  // "creator", "lateral", "expansion"
	Reason string `json:"reason"` // "unsafe_content"
	Title  string `json:"title"`
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	Replayed     bool
	NodesCreated int
	Rejections   []Rejection
}

const (
	defaultCreatorStagger = 150 * time.Millisecond
	defaultSkepticStagger = 200 * time.Millisecond
	defaultLateralStagger = 150 * time.Millisecond

	maxIdeasPerRun      = 6
	maxLateralBranches  = 3
	maxExpansionsPerRun = 3
)

// Runner drives the scripted Creator/Skeptic/Lateral pipeline for a
// session and exposes the on-demand node actions. One Runner is shared by
// all requests; per-session serialization happens inside Run.
type Runner struct {
	store  store.Store
	agents *Agents
	gate   safety.RateGate

	// Stagger delays between node_created events, tunable so tests run
	// without sleeping.
	CreatorStagger time.Duration
	SkepticStagger time.Duration
	LateralStagger time.Duration

	mu      sync.Mutex
	running map[string]struct{}
}

// NewRunner builds a Runner over the store, agent set and rate gate.
func NewRunner(st store.Store, agents *Agents, gate safety.RateGate) *Runner {
	return &Runner{
		store:          st,
		agents:         agents,
		gate:           gate,
		CreatorStagger: defaultCreatorStagger,
		SkepticStagger: defaultSkepticStagger,
		LateralStagger: defaultLateralStagger,
		running:        make(map[string]struct{}),
	}
}

// Gate exposes the runner's rate gate so session deletion can reset it.
func (r *Runner) Gate() safety.RateGate { return r.gate }

// acquire marks the session as running, or fails if it already is.
func (r *Runner) acquire(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[sessionID]; ok {
		return ErrRunInProgress
	}
	r.running[sessionID] = struct{}{}
	return nil
}

func (r *Runner) release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, sessionID)
}

// Run executes the pipeline for a session, emitting progress to sink.
//
// # Description
//
//	A session whose tree already holds more than the root node is
//	replayed: the full node set goes out as one existing_nodes event and
//	no model calls are made. Otherwise the three phases run in order,
//	each phase persisting its nodes before the next starts. Each
//	generation call passes the rate gate first; a mid-phase denial stops
//	that phase quietly rather than failing the run.
//
// # Limitations
//
//	Run holds an in-process per-session lock. Concurrent streams for the
//	same session on different replicas are not serialized.
func (r *Runner) Run(ctx context.Context, sessionID string, sink EventSink) (*RunReport, error) {
	if err := r.acquire(sessionID); err != nil {
		sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventError, Message: err.Error()})
		return nil, err
	}
	defer r.release(sessionID)

	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventError, Message: "Session not found"})
		return nil, err
	}

	nodes, err := r.store.ListSessionNodes(ctx, sessionID)
	if err != nil {
		sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventError, Message: "Internal error"})
		return nil, err
	}

	// A tree beyond the bare root means this session already ran.
	if len(nodes) > 1 {
		sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventExistingNodes, Nodes: nodes})
		observability.RunsTotal.WithLabelValues("replayed").Inc()
		return &RunReport{Replayed: true}, nil
	}

	var root *datatypes.Node
	for i := range nodes {
		if nodes[i].AgentType == datatypes.AgentRoot {
			root = &nodes[i]
			break
		}
	}
	if root == nil {
		sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventError, Message: "Root node not found"})
		return nil, fmt.Errorf("session %s has no root node", sessionID)
	}

	report := &RunReport{}
	if err := r.runPhases(ctx, session, root, sink, report); err != nil {
		observability.RunsTotal.WithLabelValues("error").Inc()
		sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventError, Message: clientMessage(err)})
		return report, err
	}

	observability.RunsTotal.WithLabelValues("complete").Inc()
	sink.Send(&datatypes.StreamEvent{
		Type:    datatypes.StreamEventComplete,
		Phase:   datatypes.PhaseComplete,
		Message: "Brainstorming complete",
	})
	return report, nil
}

func (r *Runner) runPhases(ctx context.Context, session *datatypes.Session, root *datatypes.Node, sink EventSink, report *RunReport) error {
	// Phase 1: Creator.
	if err := r.advancePhase(ctx, session.ID, datatypes.PhaseGenerating, "Creator agent generating ideas...", sink); err != nil {
		return err
	}
	if !r.allow(session.ID) {
		return ErrRateLimited
	}

	creatorResult, err := r.agents.RunCreator(ctx, session.OriginalPrompt)
	if err != nil {
		return err
	}

	var creatorNodes []*datatypes.Node
	ideas := creatorResult.Ideas
	if len(ideas) > maxIdeasPerRun {
		ideas = ideas[:maxIdeasPerRun]
	}
	for _, idea := range ideas {
		if !safety.IsSafeContent(idea.Title + " " + idea.Description) {
			r.reject(report, "creator", idea.Title)
			continue
		}
		metadata, _ := json.Marshal(map[string]any{
			"tags":             idea.Tags,
			"confidence_score": idea.Score(),
		})
		node, err := r.createChild(ctx, session.ID, root.ID, datatypes.AgentCreator,
			datatypes.EncodeContent(idea.Title, idea.Description), string(metadata))
		if err != nil {
			return err
		}
		creatorNodes = append(creatorNodes, node)
		report.NodesCreated++
		sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventNodeCreated, Node: node})
		r.sleep(ctx, r.CreatorStagger)
	}

	// Phase 2: Skeptic. Critique text is agent output over already
	// gated ideas, so it skips the content gate.
	if err := r.advancePhase(ctx, session.ID, datatypes.PhaseCritiquing, "Skeptic agent analyzing ideas...", sink); err != nil {
		return err
	}

	var skepticNodes []*datatypes.Node
	for _, creatorNode := range creatorNodes {
		if !r.allow(session.ID) {
			break
		}
		ideaData := datatypes.ParseContent(creatorNode.Content)
		critiqueResult, err := r.agents.RunSkeptic(ctx,
			firstNonEmpty(ideaData.Description, ideaData.Title, creatorNode.Content),
			session.OriginalPrompt)
		if err != nil {
			return err
		}

		node, err := r.createChild(ctx, session.ID, creatorNode.ID, datatypes.AgentSkeptic,
			skepticContent(critiqueResult), skepticMetadata(critiqueResult))
		if err != nil {
			return err
		}
		skepticNodes = append(skepticNodes, node)
		report.NodesCreated++
		sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventNodeCreated, Node: node})
		r.sleep(ctx, r.SkepticStagger)
	}

	// Phase 3: Lateral Thinker over the first few idea/critique pairs.
	if err := r.advancePhase(ctx, session.ID, datatypes.PhaseEvolving, "Lateral Thinker evolving ideas...", sink); err != nil {
		return err
	}

	branches := len(creatorNodes)
	if branches > maxLateralBranches {
		branches = maxLateralBranches
	}
	for i := 0; i < branches; i++ {
		if !r.allow(session.ID) {
			break
		}
		if i >= len(skepticNodes) {
			continue
		}
		creatorNode, skepticNode := creatorNodes[i], skepticNodes[i]
		ideaData := datatypes.ParseContent(creatorNode.Content)
		critiqueData := datatypes.ParseContent(skepticNode.Content)

		lateralResult, err := r.agents.RunLateral(ctx,
			firstNonEmpty(ideaData.Description, ideaData.Title),
			strings.TrimPrefix(critiqueData.Title, "⚠ "),
			session.OriginalPrompt)
		if err != nil {
			return err
		}

		for _, alt := range lateralResult.Alternatives {
			if !safety.IsSafeContent(alt.Title + " " + alt.Description) {
				r.reject(report, "lateral", alt.Title)
				continue
			}
			metadata, _ := json.Marshal(map[string]any{
				"tags":             []string{alt.Inspiration},
				"inspiration":      alt.Inspiration,
				"confidence_score": alt.Score(),
			})
			node, err := r.createChild(ctx, session.ID, skepticNode.ID, datatypes.AgentLateral,
				datatypes.EncodeContent(alt.Title, alt.Description), string(metadata))
			if err != nil {
				return err
			}
			report.NodesCreated++
			sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventNodeCreated, Node: node})
			r.sleep(ctx, r.LateralStagger)
		}
	}

	return r.advancePhase(ctx, session.ID, datatypes.PhaseComplete, "Brainstorming complete!", sink)
}

func (r *Runner) advancePhase(ctx context.Context, sessionID string, phase datatypes.Phase, message string, sink EventSink) error {
	if err := r.store.UpdateSessionPhase(ctx, sessionID, phase); err != nil {
		return err
	}
	sink.Send(&datatypes.StreamEvent{Type: datatypes.StreamEventPhaseChanged, Phase: phase, Message: message})
	return nil
}

func (r *Runner) createChild(ctx context.Context, sessionID, parentID string, agentType datatypes.AgentType, content, metadata string) (*datatypes.Node, error) {
	node, err := r.store.CreateChildNode(ctx, &datatypes.Node{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ParentID:  &parentID,
		AgentType: agentType,
		Content:   content,
		Metadata:  metadata,
		Status:    datatypes.StatusComplete,
	})
	if err != nil {
		return nil, err
	}
	observability.NodesCreatedTotal.WithLabelValues(string(agentType)).Inc()
	return node, nil
}

func (r *Runner) allow(sessionID string) bool {
	if r.gate.Allow(sessionID) {
		return true
	}
	observability.RateGateDenialsTotal.Inc()
	slog.Warn("Rate gate denied generation call", "session_id", sessionID)
	return false
}

func (r *Runner) reject(report *RunReport, stage, title string) {
	observability.SafetyRejectionsTotal.WithLabelValues(stage).Inc()
	slog.Warn("Content gate dropped generated item", "stage", stage, "title", title)
	report.Rejections = append(report.Rejections, Rejection{Stage: stage, Reason: "unsafe_content", Title: title})
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// skepticContent folds a critique set into node content: the lead concern
// becomes the title, every concern becomes one severity-tagged line.
func skepticContent(result *CritiqueResult) string {
	title := "⚠ Potential Risk"
	if len(result.Critiques) > 0 && result.Critiques[0].Concern != "" {
		title = "⚠ " + result.Critiques[0].Concern
	}
	lines := make([]string, 0, len(result.Critiques))
	for _, c := range result.Critiques {
		lines = append(lines, fmt.Sprintf("[%s] %s", strings.ToUpper(c.Severity), c.Concern))
	}
	return datatypes.EncodeContent(title, strings.Join(lines, "\n"))
}

func skepticMetadata(result *CritiqueResult) string {
	metadata, _ := json.Marshal(map[string]any{
		"confidence_score": result.ConfidenceScore,
		"critiques":        result.Critiques,
	})
	return string(metadata)
}

// clientMessage maps an internal error to a message safe to show the
// client. Provider details never cross the stream.
func clientMessage(err error) string {
	var authErr *llm.AuthError
	var rateErr *llm.RateLimitError
	var timeoutErr *llm.TimeoutError
	switch {
	case errors.Is(err, ErrRateLimited):
		return "Rate limit reached. Please wait."
	case errors.As(err, &authErr):
		return "AI service authentication failed."
	case errors.As(err, &rateErr):
		return "AI service rate limit reached. Please wait a moment and try again."
	case errors.As(err, &timeoutErr):
		return "AI service timed out. Please try again."
	default:
		return "Internal server error. Please try again."
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
