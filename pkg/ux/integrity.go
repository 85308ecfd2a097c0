// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides user experience components for the thinkbox CLI.
//
// This file defines integrity verification for the brainstorm hash chain.
// The hash chain provides a tamper-evident record of a streamed run.
//
// Hash Chain Design:
//
//	Each StreamEvent has a Hash computed from its content and a PrevHash
//	linking to the previous event:
//
//	Event[0] → Event[1] → Event[2] → ... → Event[N]
//	  Hash₀     Hash₁     Hash₂           HashN
//	    ↑         ↑         ↑               ↑
//	    └─────────┴─────────┴───────────────┘
//	           Each PrevHash links to previous Hash
//
// If any event is modified, its hash changes, breaking the chain.
package ux

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// secureHashEqual performs constant-time comparison of two hash strings.
func secureHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// =============================================================================
// Interface Definition
// =============================================================================

// ChainVerifier verifies the integrity of a hash chain.
//
// # Description
//
// Abstracts the verification of event chains, allowing different
// verification strategies (quick PrevHash walk vs full recompute).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Assumptions
//
//   - Events are in chronological order
//   - First event has empty PrevHash
type ChainVerifier interface {
	// Verify checks the integrity of a sequence of stream events and
	// reports where the chain broke, if anywhere.
	Verify(events []StreamEvent) *ChainVerificationResult
}

// ChainVerificationResult contains detailed results from chain verification.
//
// # Fields
//
//   - Valid: Whether the entire chain is valid
//   - ChainLength: Number of events verified
//   - FinalHash: The hash of the last event in the chain
//   - InvalidEventIndex: Index of first invalid event (-1 if all valid)
//   - ExpectedHash: What the hash should have been (if invalid)
//   - ActualHash: What the hash actually was (if invalid)
//   - ErrorMessage: Human-readable error description
//
// # Thread Safety
//
// Immutable after creation. Safe for concurrent read access.
type ChainVerificationResult struct {
	Valid             bool   `json:"valid"`
	ChainLength       int    `json:"chain_length"`
	FinalHash         string `json:"final_hash,omitempty"`
	InvalidEventIndex int    `json:"invalid_event_index"`
	ExpectedHash      string `json:"expected_hash,omitempty"`
	ActualHash        string `json:"actual_hash,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// FormatForDisplay returns a one-line summary suitable for the session
// footer, e.g. "✓ Verified | Chain: 13 events | Hash: a3f2c8d9...a9b0".
func (r *ChainVerificationResult) FormatForDisplay() string {
	status := "✓ Verified"
	if !r.Valid {
		status = "✗ FAILED"
	}

	hashDisplay := truncateHash(r.FinalHash)
	if r.FinalHash == "" {
		hashDisplay = "N/A"
	}

	return fmt.Sprintf("%s | Chain: %d events | Hash: %s",
		status, r.ChainLength, hashDisplay)
}

// =============================================================================
// Implementation
// =============================================================================

// fullChainVerifier recomputes each event's hash from its content and
// verifies both hash correctness and chain links.
type fullChainVerifier struct{}

// NewFullChainVerifier creates a verifier that recomputes all hashes.
func NewFullChainVerifier() ChainVerifier {
	return &fullChainVerifier{}
}

// Verify fully verifies the chain by recomputing all hashes.
//
// # Description
//
// Performs complete verification by:
//  1. Checking the first event has an empty PrevHash
//  2. Verifying each event's PrevHash matches the previous event's Hash
//  3. Recomputing each event's hash from content
//  4. Verifying the computed hash matches the stored Hash
//
// # Limitations
//
//   - Requires the raw node payloads exactly as the server sent them;
//     re-formatted JSON will not verify
func (v *fullChainVerifier) Verify(events []StreamEvent) *ChainVerificationResult {
	result := &ChainVerificationResult{
		Valid:             true,
		ChainLength:       len(events),
		InvalidEventIndex: -1,
	}

	if len(events) == 0 {
		return result
	}

	if events[0].PrevHash != "" {
		result.Valid = false
		result.InvalidEventIndex = 0
		result.ActualHash = events[0].PrevHash
		result.ErrorMessage = "first event should have empty PrevHash"
		return result
	}

	prevHash := ""
	for i, event := range events {
		if !secureHashEqual(event.PrevHash, prevHash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ExpectedHash = prevHash
			result.ActualHash = event.PrevHash
			result.ErrorMessage = fmt.Sprintf(
				"chain broken at event %d: expected PrevHash %s, got %s",
				i, truncateHash(prevHash), truncateHash(event.PrevHash),
			)
			return result
		}

		computedHash := ComputeEventHash(event)
		if !secureHashEqual(computedHash, event.Hash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ExpectedHash = computedHash
			result.ActualHash = event.Hash
			result.ErrorMessage = fmt.Sprintf(
				"hash mismatch at event %d: computed %s, stored %s (content may have been modified)",
				i, truncateHash(computedHash), truncateHash(event.Hash),
			)
			return result
		}

		prevHash = event.Hash
	}

	result.FinalHash = events[len(events)-1].Hash
	return result
}

// ComputeEventHash computes the SHA-256 hash for a stream event. The
// format must match the server-side computation exactly: a pipe-delimited
// concatenation of the envelope fields and the raw node payload bytes.
func ComputeEventHash(event StreamEvent) string {
	nodeJSON := ""
	if len(event.Node) > 0 {
		nodeJSON = string(event.Node)
	}
	nodesJSON := ""
	if len(event.Nodes) > 0 {
		nodesJSON = string(event.Nodes)
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Phase,
		event.Message,
		nodeJSON,
		nodesJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// truncateHash shows the first 8 and last 4 characters of a hash.
// Full 64-char hashes are unwieldy in error messages.
func truncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-4:]
}
