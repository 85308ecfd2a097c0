// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the durable record of sessions, idea nodes and
// deep-dive reports. It treats node content and metadata as opaque blobs;
// interpretation belongs to whoever wrote them.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
)

// Capacity limits enforced inside the store so that a capacity check and
// the write it guards happen in one transaction.
const (
	// MaxNodesPerSession caps live nodes per session, root included.
	MaxNodesPerSession = 50

	// MaxChildrenPerNode caps direct children of a non-root node.
	MaxChildrenPerNode = 4
)

// ErrNotFound is returned when a session, node or deep dive does not exist.
var ErrNotFound = errors.New("not found")

// ErrConstraint is returned when a write violates a schema constraint,
// e.g. an invalid agent_type or a dangling parent reference.
var ErrConstraint = errors.New("constraint violation")

// CapacityError reports a capacity limit that blocked a write. It maps to
// HTTP 429 at the API surface for the session cap and 400 for the child
// cap, matching the UI's expectations.
type CapacityError struct {
	Kind  string // "session_nodes" or "node_children"
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity limit reached: %s (max %d)", e.Kind, e.Limit)
}

// Store is the Tree Store contract consumed by the pipeline and the node
// action handlers. All operations are synchronous; no partial writes are
// observable by callers.
type Store interface {
	CreateSession(ctx context.Context, id, userID, prompt string) (*datatypes.Session, error)
	GetSession(ctx context.Context, id string) (*datatypes.Session, error)
	// UpdateSessionPhase advances the session phase. Backward transitions
	// are rejected with ErrConstraint; the phase machine is forward-only.
	UpdateSessionPhase(ctx context.Context, id string, phase datatypes.Phase) error
	ListSessions(ctx context.Context, userID string, limit int) ([]datatypes.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error

	// CreateNode inserts a node without capacity checks. Used only for
	// root nodes, which are created together with their session.
	CreateNode(ctx context.Context, node *datatypes.Node) (*datatypes.Node, error)
	// CreateChildNode inserts a node under an existing parent, enforcing
	// the session node cap and, for non-root parents, the child cap
	// inside a single immediate transaction.
	CreateChildNode(ctx context.Context, node *datatypes.Node) (*datatypes.Node, error)
	GetNode(ctx context.Context, id string) (*datatypes.Node, error)
	ListSessionNodes(ctx context.Context, sessionID string) ([]datatypes.Node, error)
	// UpdateNode applies a whitelist-only partial update (grade, status,
	// x_pos, y_pos). Content and metadata are write-once.
	UpdateNode(ctx context.Context, id string, patch *datatypes.PatchNodeRequest) error
	CountDirectChildren(ctx context.Context, nodeID string) (int, error)
	CountSessionNodes(ctx context.Context, sessionID string) (int, error)

	CreateDeepDive(ctx context.Context, id, nodeID, markdown string) (*datatypes.DeepDive, error)
	// GetLatestDeepDive returns the most recent report for a node, or
	// ErrNotFound when none exists.
	GetLatestDeepDive(ctx context.Context, nodeID string) (*datatypes.DeepDive, error)

	Close() error
}
