// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability defines the Prometheus metrics exported by the
// brainstorm orchestrator.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "thinkbox"

	subsystemHTTP     = "http"
	subsystemPipeline = "pipeline"
	subsystemLLM      = "llm"
	subsystemSafety   = "safety"
)

// =============================================================================
// HTTP
// =============================================================================

var (
	// RequestsTotal counts API requests by route and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemHTTP,
			Name:      "requests_total",
			Help:      "API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	// ActiveStreams gauges currently open SSE connections.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemHTTP,
			Name:      "active_streams",
			Help:      "Currently open brainstorm SSE connections.",
		},
	)
)

// =============================================================================
// Pipeline
// =============================================================================

var (
	// NodesCreatedTotal counts persisted nodes by agent type.
	NodesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPipeline,
			Name:      "nodes_created_total",
			Help:      "Nodes persisted, labeled by producing agent type.",
		},
		[]string{"agent_type"},
	)

	// RunsTotal counts pipeline runs by outcome (complete, replayed, error).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPipeline,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
)

// =============================================================================
// LLM
// =============================================================================

var (
	// GenerationDuration observes wall time of individual model calls.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemLLM,
			Name:      "generation_duration_seconds",
			Help:      "Latency of model calls by agent.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	// GenerationErrorsTotal counts failed model calls by error class.
	GenerationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLLM,
			Name:      "generation_errors_total",
			Help:      "Failed model calls by error class (auth, rate_limit, timeout, provider).",
		},
		[]string{"class"},
	)

	// FallbacksTotal counts malformed model outputs replaced by an agent's
	// fixed fallback payload.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLLM,
			Name:      "fallbacks_total",
			Help:      "Model outputs that failed to parse and used the agent fallback.",
		},
		[]string{"agent"},
	)
)

// =============================================================================
// Safety
// =============================================================================

var (
	// SafetyRejectionsTotal counts generated items dropped by the content gate.
	SafetyRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSafety,
			Name:      "rejections_total",
			Help:      "Generated items dropped by the content gate, by stage.",
		},
		[]string{"stage"},
	)

	// RateGateDenialsTotal counts generation calls refused by the
	// per-session rate gate.
	RateGateDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSafety,
			Name:      "rate_gate_denials_total",
			Help:      "Generation calls refused by the per-session rate gate.",
		},
	)
)
