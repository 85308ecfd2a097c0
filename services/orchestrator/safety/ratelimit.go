// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"sync"
	"time"
)

// Default generation budget per session.
const (
	DefaultRateLimit  = 15
	DefaultRateWindow = 60 * time.Second
)

// Clock abstracts time for the rate gate so tests can drive the window
// deterministically.
//
// # Description
//
//	Provides the current time to the sliding-window bookkeeping. The
//	production implementation delegates to time.Now; tests substitute a
//	manually advanced clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RateGate admits or rejects generation calls for a session.
//
// # Description
//
//	Allow is consulted once per model call, before the call is made. A
//	rejected call must not reach the provider. Reset discards all state
//	for a session and is invoked when the session is deleted.
//
// # Limitations
//
//	State is process local. A multi-replica deployment needs a shared
//	backend behind this interface.
type RateGate interface {
	// Allow records an admitted call and returns true, or returns false
	// without recording when the session is over budget.
	Allow(sessionID string) bool

	// Reset forgets all recorded calls for the session.
	Reset(sessionID string)
}

// SlidingWindowGate is the in-memory RateGate: a per-session log of call
// timestamps pruned to the trailing window on every check.
type SlidingWindowGate struct {
	mu     sync.Mutex
	calls  map[string][]time.Time
	limit  int
	window time.Duration
	clock  Clock
}

var _ RateGate = (*SlidingWindowGate)(nil)

// NewSlidingWindowGate builds a gate admitting at most limit calls per
// session within the trailing window. A nil clock falls back to the
// system clock.
func NewSlidingWindowGate(limit int, window time.Duration, clock Clock) *SlidingWindowGate {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SlidingWindowGate{
		calls:  make(map[string][]time.Time),
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

// NewDefaultGate builds a gate with the stock budget of 15 calls per 60s.
func NewDefaultGate() *SlidingWindowGate {
	return NewSlidingWindowGate(DefaultRateLimit, DefaultRateWindow, SystemClock{})
}

func (g *SlidingWindowGate) Allow(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	cutoff := now.Add(-g.window)

	recent := g.calls[sessionID][:0:0]
	for _, t := range g.calls[sessionID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= g.limit {
		g.calls[sessionID] = recent
		return false
	}
	g.calls[sessionID] = append(recent, now)
	return true
}

func (g *SlidingWindowGate) Reset(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.calls, sessionID)
}
