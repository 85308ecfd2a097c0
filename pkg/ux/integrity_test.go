// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildChain creates a valid hash chain of n events.
func buildChain(n int) []StreamEvent {
	events := make([]StreamEvent, 0, n)
	prevHash := ""
	for i := 0; i < n; i++ {
		event := StreamEvent{
			Type:      StreamEventNodeCreated,
			Id:        fmt.Sprintf("event-%d", i),
			CreatedAt: int64(1735657200000 + i),
			PrevHash:  prevHash,
			Node:      json.RawMessage(fmt.Sprintf(`{"id":"node-%d","content":"Idea %d"}`, i, i)),
		}
		event.Hash = ComputeEventHash(event)
		prevHash = event.Hash
		events = append(events, event)
	}
	return events
}

func TestVerify_ValidChain(t *testing.T) {
	events := buildChain(5)

	result := NewFullChainVerifier().Verify(events)

	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.ChainLength)
	assert.Equal(t, -1, result.InvalidEventIndex)
	assert.Equal(t, events[4].Hash, result.FinalHash)
}

func TestVerify_EmptyChain(t *testing.T) {
	result := NewFullChainVerifier().Verify(nil)

	assert.True(t, result.Valid)
	assert.Zero(t, result.ChainLength)
}

func TestVerify_TamperedContent(t *testing.T) {
	events := buildChain(4)
	events[2].Node = json.RawMessage(`{"id":"node-2","content":"Swapped idea"}`)

	result := NewFullChainVerifier().Verify(events)

	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.InvalidEventIndex)
	assert.Contains(t, result.ErrorMessage, "hash mismatch at event 2")
}

func TestVerify_BrokenLink(t *testing.T) {
	events := buildChain(4)
	// Drop an event from the middle: the next PrevHash no longer links
	events = append(events[:1], events[2:]...)

	result := NewFullChainVerifier().Verify(events)

	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.InvalidEventIndex)
	assert.Contains(t, result.ErrorMessage, "chain broken at event 1")
}

func TestVerify_FirstEventMustHaveEmptyPrevHash(t *testing.T) {
	events := buildChain(3)[1:]

	result := NewFullChainVerifier().Verify(events)

	assert.False(t, result.Valid)
	assert.Equal(t, 0, result.InvalidEventIndex)
	assert.Contains(t, result.ErrorMessage, "empty PrevHash")
}

func TestVerify_TamperedEnvelope(t *testing.T) {
	events := buildChain(3)
	events[1].Message = "injected"

	result := NewFullChainVerifier().Verify(events)

	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.InvalidEventIndex)
}

func TestFormatForDisplay(t *testing.T) {
	events := buildChain(13)
	result := NewFullChainVerifier().Verify(events)

	display := result.FormatForDisplay()
	assert.Contains(t, display, "✓ Verified")
	assert.Contains(t, display, "Chain: 13 events")
	assert.Contains(t, display, events[12].Hash[:8])

	result.Valid = false
	assert.Contains(t, result.FormatForDisplay(), "✗ FAILED")
}
