// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs the scripted three-agent brainstorm over a
// session tree and the on-demand node actions (expand, deep dive,
// ignore).
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/thinkbox/services/llm"
	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
	"github.com/AleutianAI/thinkbox/services/orchestrator/observability"
)

// =============================================================================
// Agent result types
// =============================================================================

// Idea is one Creator output.
type Idea struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	PotentialScore *int     `json:"potential_score"`
}

// Score returns the potential score, defaulting when the model omitted it.
func (i Idea) Score() int {
	if i.PotentialScore == nil {
		return 70
	}
	return *i.PotentialScore
}

// IdeaResult is the parsed Creator payload.
type IdeaResult struct {
	Ideas []Idea `json:"ideas"`
}

// Critique is one Skeptic concern.
type Critique struct {
	Concern      string `json:"concern"`
	Severity     string `json:"severity"`
	Counterpoint string `json:"counterpoint,omitempty"`
}

// CritiqueResult is the parsed Skeptic payload.
type CritiqueResult struct {
	Critiques       []Critique `json:"critiques"`
	ConfidenceScore int        `json:"confidence_score"`
}

// Alternative is one Lateral Thinker output.
type Alternative struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Inspiration      string `json:"inspiration"`
	OriginalityScore *int   `json:"originality_score"`
}

// Score returns the originality score, defaulting when the model omitted it.
func (a Alternative) Score() int {
	if a.OriginalityScore == nil {
		return 75
	}
	return *a.OriginalityScore
}

// LateralResult is the parsed Lateral Thinker payload.
type LateralResult struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Expansion is one sub-idea from the on-demand Expansion agent.
type Expansion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ExpansionResult is the parsed Expansion payload.
type ExpansionResult struct {
	Expansions []Expansion `json:"expansions"`
}

// =============================================================================
// Agents
// =============================================================================

// Agents wraps an LLM client with the fixed prompt templates, sampling
// parameters and fallback payloads of each brainstorm persona. A
// malformed model response never fails a run; each agent degrades to a
// minimal fixed payload instead.
type Agents struct {
	client llm.LLMClient
}

// NewAgents builds the agent set on top of client.
func NewAgents(client llm.LLMClient) *Agents {
	return &Agents{client: client}
}

const creatorSystemPrompt = `You are the Creator Agent in a brainstorming system. Your role is to generate diverse, creative, and actionable ideas.

Rules:
- Generate exactly 6 distinct ideas
- Each idea must be practical and grounded
- Cover different approaches (technology, social, economic, biological, etc.)
- Return ONLY valid JSON, no markdown
- Keep descriptions concise (2-3 sentences)
- Assign a potential_score (0-100) reflecting how promising and feasible each idea is - vary scores meaningfully based on each idea's strengths`

// RunCreator asks the Creator for six seed ideas for the problem prompt.
func (a *Agents) RunCreator(ctx context.Context, prompt string) (*IdeaResult, error) {
	userPrompt := fmt.Sprintf(`Generate 6 creative ideas for this problem: %q

Return JSON in this exact format:
{
  "ideas": [
    {
      "title": "Short descriptive title",
      "description": "2-3 sentence description of the approach",
      "tags": ["tag1", "tag2"],
      "potential_score": <integer 0-100, your honest assessment for this specific idea>
    }
  ]
}`, prompt)

	raw, err := a.complete(ctx, "creator", []llm.Message{
		{Role: "system", Content: creatorSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, llm.GenerationParams{Temperature: llm.Float32(0.9), MaxTokens: llm.Int(1500)})
	if err != nil {
		return nil, err
	}

	var result IdeaResult
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &result); err != nil || len(result.Ideas) == 0 {
		a.fallback("creator", raw)
		return &IdeaResult{Ideas: []Idea{{
			Title:       "Creative Approach",
			Description: truncate(raw, 200),
			Tags:        []string{"general"},
		}}}, nil
	}
	return &result, nil
}

const skepticSystemPrompt = `You are the Skeptic Agent in a brainstorming system. Your role is to critically analyze ideas, identify weaknesses, and provide reality checks.

Rules:
- Identify 2-3 concrete concerns or risks
- Be constructive, not purely negative
- Consider technical feasibility, cost, social impact, and scalability
- Assign severity: low/medium/high
- Provide a confidence score 0-100 for the idea's viability
- Return ONLY valid JSON, no markdown`

// RunSkeptic asks the Skeptic to critique one idea in the context of the
// session's problem statement.
func (a *Agents) RunSkeptic(ctx context.Context, idea, parentTitle string) (*CritiqueResult, error) {
	userPrompt := fmt.Sprintf(`Critically analyze this idea for: %q

Idea: %q

Return JSON:
{
  "critiques": [
    {
      "concern": "Specific concern or risk",
      "severity": "low|medium|high",
      "counterpoint": "Optional: how this might be addressed"
    }
  ],
  "confidence_score": <integer 0-100 based on your analysis of viability>
}`, parentTitle, idea)

	raw, err := a.complete(ctx, "skeptic", []llm.Message{
		{Role: "system", Content: skepticSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, llm.GenerationParams{Temperature: llm.Float32(0.6), MaxTokens: llm.Int(800)})
	if err != nil {
		return nil, err
	}

	var result CritiqueResult
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &result); err != nil || len(result.Critiques) == 0 {
		a.fallback("skeptic", raw)
		return &CritiqueResult{
			Critiques:       []Critique{{Concern: "Requires further validation", Severity: "medium"}},
			ConfidenceScore: 50,
		}, nil
	}
	return &result, nil
}

const lateralSystemPrompt = `You are the Lateral Thinker Agent in a brainstorming system. You see the critique of an idea and reimagine it from completely different angles.

Rules:
- Generate 2 alternative approaches inspired by the critique
- Think cross-domain: borrow from biology, art, gaming, nature, ancient history, etc.
- Each alternative should directly address the critique's concerns
- Return ONLY valid JSON, no markdown`

// RunLateral asks the Lateral Thinker for alternatives that address a
// critique of the original idea.
func (a *Agents) RunLateral(ctx context.Context, originalIdea, critique, originalPrompt string) (*LateralResult, error) {
	userPrompt := fmt.Sprintf(`Original problem: %q
Original idea: %q
Critique concern: %q

Generate 2 lateral alternatives that address the critique:
{
  "alternatives": [
    {
      "title": "Alternative title",
      "description": "How this lateral approach works",
      "inspiration": "What field/concept this borrows from",
      "originality_score": <integer 0-100, how novel and creative this approach is>
    }
  ]
}`, originalPrompt, originalIdea, critique)

	raw, err := a.complete(ctx, "lateral", []llm.Message{
		{Role: "system", Content: lateralSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, llm.GenerationParams{Temperature: llm.Float32(0.95), MaxTokens: llm.Int(800)})
	if err != nil {
		return nil, err
	}

	var result LateralResult
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &result); err != nil || len(result.Alternatives) == 0 {
		a.fallback("lateral", raw)
		return &LateralResult{Alternatives: []Alternative{{
			Title:       "Alternative Approach",
			Description: truncate(raw, 200),
			Inspiration: "Cross-domain thinking",
		}}}, nil
	}
	return &result, nil
}

// RunExpansion asks for three sub-ideas under an existing node. The
// persona tracks the parent's agent type so skeptic branches stay
// critical and lateral branches stay exploratory.
func (a *Agents) RunExpansion(ctx context.Context, nodeContent string, agentType datatypes.AgentType, originalPrompt string) (*ExpansionResult, error) {
	var persona string
	switch agentType {
	case datatypes.AgentSkeptic:
		persona = "critical analyst identifying deeper risks"
	case datatypes.AgentLateral:
		persona = "creative thinker exploring unexpected angles"
	default:
		persona = "innovative problem-solver detailing implementation"
	}

	userPrompt := fmt.Sprintf(`As a %s, expand on this idea in depth for: %q

Idea: %q

Generate 3 more specific sub-ideas or implementation steps. Return JSON:
{
  "expansions": [
    { "title": "Sub-idea title", "description": "2-3 sentences" }
  ]
}`, persona, originalPrompt, nodeContent)

	raw, err := a.complete(ctx, "expansion", []llm.Message{
		{Role: "user", Content: userPrompt},
	}, llm.GenerationParams{Temperature: llm.Float32(0.85), MaxTokens: llm.Int(900)})
	if err != nil {
		return nil, err
	}

	var result ExpansionResult
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &result); err != nil || len(result.Expansions) == 0 {
		a.fallback("expansion", raw)
		return &ExpansionResult{Expansions: []Expansion{{
			Title:       "Deep Dive",
			Description: truncate(raw, 200),
		}}}, nil
	}
	return &result, nil
}

// RunDeepDive asks for a long-form markdown report on one node. The raw
// model output is the report; no JSON parsing is involved.
func (a *Agents) RunDeepDive(ctx context.Context, nodeContent, nodeTitle, originalPrompt string) (string, error) {
	userPrompt := fmt.Sprintf(`Write a comprehensive deep-dive report on this idea.

Original Problem: %q
Idea to Analyze: %q
Details: %q

Write a ~600 word report covering:
# %s: Deep Dive Analysis

## Executive Summary
## How It Works (Technical/Practical Details)
## Key Advantages
## Challenges & Risks
## Implementation Roadmap (3 phases)
## Success Metrics
## Conclusion

Use markdown headers, bullet points, and bold text appropriately.`, originalPrompt, nodeTitle, nodeContent, nodeTitle)

	return a.complete(ctx, "deep_dive", []llm.Message{
		{Role: "system", Content: "You are a research analyst writing a detailed strategic report. Write in markdown format."},
		{Role: "user", Content: userPrompt},
	}, llm.GenerationParams{Temperature: llm.Float32(0.7), MaxTokens: llm.Int(2000)})
}

// complete runs one model call with latency and error-class metrics.
func (a *Agents) complete(ctx context.Context, agent string, messages []llm.Message, params llm.GenerationParams) (string, error) {
	start := time.Now()
	raw, err := a.client.Complete(ctx, messages, params)
	observability.GenerationDuration.WithLabelValues(agent).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.GenerationErrorsTotal.WithLabelValues(llm.ErrorClass(err)).Inc()
		return "", err
	}
	return raw, nil
}

func (a *Agents) fallback(agent, raw string) {
	observability.FallbacksTotal.WithLabelValues(agent).Inc()
	slog.Warn("Agent returned unparseable payload, using fallback",
		"agent", agent, "raw_prefix", truncate(raw, 80))
}

// =============================================================================
// JSON extraction
// =============================================================================

var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls a JSON document out of a model response: a fenced
// code block wins, then the widest brace span, then the raw text.
func ExtractJSON(text string) string {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last != -1 && last > first {
		return text[first : last+1]
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
