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
	"errors"

	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
	"github.com/AleutianAI/thinkbox/services/orchestrator/observability"
	"github.com/AleutianAI/thinkbox/services/orchestrator/safety"
	"github.com/AleutianAI/thinkbox/services/orchestrator/store"
	"github.com/google/uuid"
)

// ExpandNode grows up to three sub-ideas under an existing node. The
// child agent type follows the parent: skeptic branches stay skeptic,
// lateral branches stay lateral, everything else spawns creators.
// Capacity is checked up front so an over-cap request fails before the
// model is called; the store re-checks transactionally on insert.
func (r *Runner) ExpandNode(ctx context.Context, nodeID string) ([]datatypes.Node, error) {
	node, err := r.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	session, err := r.store.GetSession(ctx, node.SessionID)
	if err != nil {
		return nil, err
	}

	total, err := r.store.CountSessionNodes(ctx, node.SessionID)
	if err != nil {
		return nil, err
	}
	if total >= store.MaxNodesPerSession {
		return nil, &store.CapacityError{Kind: "session_nodes", Limit: store.MaxNodesPerSession}
	}
	children, err := r.store.CountDirectChildren(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if children >= store.MaxChildrenPerNode {
		return nil, &store.CapacityError{Kind: "node_children", Limit: store.MaxChildrenPerNode}
	}

	if !r.allow(node.SessionID) {
		return nil, ErrRateLimited
	}

	nodeData := datatypes.ParseContent(node.Content)
	result, err := r.agents.RunExpansion(ctx,
		firstNonEmpty(nodeData.Description, nodeData.Title, node.Content),
		node.AgentType, session.OriginalPrompt)
	if err != nil {
		return nil, err
	}

	expansions := result.Expansions
	if len(expansions) > maxExpansionsPerRun {
		expansions = expansions[:maxExpansionsPerRun]
	}

	childType := node.AgentType.ChildType()
	created := []datatypes.Node{}
	for _, exp := range expansions {
		if !safety.IsSafeContent(exp.Title + " " + exp.Description) {
			observability.SafetyRejectionsTotal.WithLabelValues("expansion").Inc()
			continue
		}
		child, err := r.createChild(ctx, node.SessionID, nodeID, childType,
			datatypes.EncodeContent(exp.Title, exp.Description), "{}")
		if err != nil {
			return nil, err
		}
		created = append(created, *child)
	}
	return created, nil
}

// DeepDiveNode returns the node's deep-dive report, generating it on
// first request. Repeat requests return the stored report without a
// model call or a rate-gate charge.
func (r *Runner) DeepDiveNode(ctx context.Context, nodeID string) (*datatypes.DeepDive, error) {
	node, err := r.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	session, err := r.store.GetSession(ctx, node.SessionID)
	if err != nil {
		return nil, err
	}

	if existing, err := r.store.GetLatestDeepDive(ctx, nodeID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if !r.allow(node.SessionID) {
		return nil, ErrRateLimited
	}

	nodeData := datatypes.ParseContent(node.Content)
	title := nodeData.Title
	if title == "" {
		title = "Idea"
	}
	description := firstNonEmpty(nodeData.Description, node.Content)

	markdown, err := r.agents.RunDeepDive(ctx, description, title, session.OriginalPrompt)
	if err != nil {
		return nil, err
	}
	return r.store.CreateDeepDive(ctx, uuid.NewString(), nodeID, markdown)
}

// IgnoreNode marks a node ignored. The node and its subtree stay in the
// store; ignoring is presentation state, not deletion.
func (r *Runner) IgnoreNode(ctx context.Context, nodeID string) error {
	ignored := datatypes.StatusIgnored
	return r.store.UpdateNode(ctx, nodeID, &datatypes.PatchNodeRequest{Status: &ignored})
}
