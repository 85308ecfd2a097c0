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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
	"github.com/AleutianAI/thinkbox/services/orchestrator/store"
)

const expansionThree = `{"expansions": [
  {"title": "Pilot program", "description": "Start with three locations."},
  {"title": "Staff training", "description": "Teach portioning discipline."},
  {"title": "Metrics dashboard", "description": "Track waste per cover."}
]}`

func seedChild(t *testing.T, st *store.SQLiteStore, sessionID, parentID string, agentType datatypes.AgentType) *datatypes.Node {
	t.Helper()
	node, err := st.CreateChildNode(context.Background(), &datatypes.Node{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ParentID:  &parentID,
		AgentType: agentType,
		Content:   datatypes.EncodeContent("Idea", "Route scraps to urban farms."),
		Metadata:  "{}",
		Status:    datatypes.StatusComplete,
	})
	require.NoError(t, err)
	return node
}

func TestExpandNode_CreatesChildrenOfInheritedType(t *testing.T) {
	client := &scriptedLLM{}
	client.queue(expansionThree)
	runner, st := newTestRunner(t, client, 100)
	sess := seedSessionWithRoot(t, st)
	nodes, err := st.ListSessionNodes(context.Background(), sess.ID)
	require.NoError(t, err)
	root := nodes[0]
	skeptic := seedChild(t, st, sess.ID, root.ID, datatypes.AgentSkeptic)

	created, err := runner.ExpandNode(context.Background(), skeptic.ID)
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, n := range created {
		assert.Equal(t, datatypes.AgentSkeptic, n.AgentType, "skeptic branches stay skeptic")
		require.NotNil(t, n.ParentID)
		assert.Equal(t, skeptic.ID, *n.ParentID)
	}
}

func TestExpandNode_LateralAndCreatorChildTypes(t *testing.T) {
	client := &scriptedLLM{}
	client.queue(expansionThree, expansionThree)
	runner, st := newTestRunner(t, client, 100)
	sess := seedSessionWithRoot(t, st)
	nodes, err := st.ListSessionNodes(context.Background(), sess.ID)
	require.NoError(t, err)
	root := nodes[0]
	lateral := seedChild(t, st, sess.ID, root.ID, datatypes.AgentLateral)
	creator := seedChild(t, st, sess.ID, root.ID, datatypes.AgentCreator)

	fromLateral, err := runner.ExpandNode(context.Background(), lateral.ID)
	require.NoError(t, err)
	for _, n := range fromLateral {
		assert.Equal(t, datatypes.AgentLateral, n.AgentType)
	}

	fromCreator, err := runner.ExpandNode(context.Background(), creator.ID)
	require.NoError(t, err)
	for _, n := range fromCreator {
		assert.Equal(t, datatypes.AgentCreator, n.AgentType)
	}
}

func TestExpandNode_ChildCapBeforeModelCall(t *testing.T) {
	client := &scriptedLLM{}
	runner, st := newTestRunner(t, client, 100)
	sess := seedSessionWithRoot(t, st)
	nodes, err := st.ListSessionNodes(context.Background(), sess.ID)
	require.NoError(t, err)
	root := nodes[0]
	idea := seedChild(t, st, sess.ID, root.ID, datatypes.AgentCreator)
	for i := 0; i < store.MaxChildrenPerNode; i++ {
		seedChild(t, st, sess.ID, idea.ID, datatypes.AgentCreator)
	}

	_, err = runner.ExpandNode(context.Background(), idea.ID)
	var capErr *store.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "node_children", capErr.Kind)
	assert.Equal(t, 0, client.callCount(), "cap check must precede the model call")
}

func TestExpandNode_SessionCapBeforeModelCall(t *testing.T) {
	client := &scriptedLLM{}
	runner, st := newTestRunner(t, client, 100)
	sess := seedSessionWithRoot(t, st)
	nodes, err := st.ListSessionNodes(context.Background(), sess.ID)
	require.NoError(t, err)
	root := nodes[0]
	for i := 1; i < store.MaxNodesPerSession; i++ {
		seedChild(t, st, sess.ID, root.ID, datatypes.AgentCreator)
	}

	_, err = runner.ExpandNode(context.Background(), root.ID)
	var capErr *store.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "session_nodes", capErr.Kind)
	assert.Equal(t, 0, client.callCount())
}

func TestExpandNode_RateLimited(t *testing.T) {
	client := &scriptedLLM{}
	runner, st := newTestRunner(t, client, 1)
	sess := seedSessionWithRoot(t, st)
	nodes, err := st.ListSessionNodes(context.Background(), sess.ID)
	require.NoError(t, err)
	root := nodes[0]
	idea := seedChild(t, st, sess.ID, root.ID, datatypes.AgentCreator)

	runner.Gate().Allow(sess.ID)

	_, err = runner.ExpandNode(context.Background(), idea.ID)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 0, client.callCount())
}

func TestExpandNode_UnsafeExpansionsDropped(t *testing.T) {
	client := &scriptedLLM{}
	client.queue(`{"expansions": [
  {"title": "Pilot program", "description": "Start with three locations."},
  {"title": "Weapon of choice", "description": "A weapon based approach."}
]}`)
	runner, st := newTestRunner(t, client, 100)
	sess := seedSessionWithRoot(t, st)
	nodes, err := st.ListSessionNodes(context.Background(), sess.ID)
	require.NoError(t, err)
	idea := seedChild(t, st, sess.ID, nodes[0].ID, datatypes.AgentCreator)

	created, err := runner.ExpandNode(context.Background(), idea.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Pilot program", datatypes.ParseContent(created[0].Content).Title)
}

func TestExpandNode_MissingNode(t *testing.T) {
	client := &scriptedLLM{}
	runner, _ := newTestRunner(t, client, 100)
	_, err := runner.ExpandNode(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeepDiveNode_GeneratesOnceThenReuses(t *testing.T) {
	client := &scriptedLLM{}
	client.queue("# Compost partnerships: Deep Dive Analysis\n\n## Executive Summary\nGood idea.")
	runner, st := newTestRunner(t, client, 100)
	sess := seedSessionWithRoot(t, st)
	nodes, err := st.ListSessionNodes(context.Background(), sess.ID)
	require.NoError(t, err)
	idea := seedChild(t, st, sess.ID, nodes[0].ID, datatypes.AgentCreator)

	first, err := runner.DeepDiveNode(context.Background(), idea.ID)
	require.NoError(t, err)
	assert.Contains(t, first.FullMarkdownContent, "Executive Summary")
	assert.Equal(t, 1, client.callCount())

	second, err := runner.DeepDiveNode(context.Background(), idea.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, client.callCount(), "repeat request must not call the model")
}

func TestIgnoreNode(t *testing.T) {
	client := &scriptedLLM{}
	runner, st := newTestRunner(t, client, 100)
	sess := seedSessionWithRoot(t, st)
	nodes, err := st.ListSessionNodes(context.Background(), sess.ID)
	require.NoError(t, err)
	idea := seedChild(t, st, sess.ID, nodes[0].ID, datatypes.AgentCreator)

	require.NoError(t, runner.IgnoreNode(context.Background(), idea.ID))

	got, err := st.GetNode(context.Background(), idea.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusIgnored, got.Status)

	assert.ErrorIs(t, runner.IgnoreNode(context.Background(), uuid.NewString()), store.ErrNotFound)
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"code fence", "Here you go:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"brace span", "Sure! {\"a\": 1} Hope that helps.", `{"a": 1}`},
		{"raw", "  plain text  ", "plain text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSON(tc.in))
		})
	}
}

func TestIdeaScoreDefaults(t *testing.T) {
	var withScore IdeaResult
	require.NoError(t, json.Unmarshal([]byte(`{"ideas":[{"title":"a","description":"b","potential_score":42}]}`), &withScore))
	assert.Equal(t, 42, withScore.Ideas[0].Score())

	var withoutScore IdeaResult
	require.NoError(t, json.Unmarshal([]byte(`{"ideas":[{"title":"a","description":"b"}]}`), &withoutScore))
	assert.Equal(t, 70, withoutScore.Ideas[0].Score())

	var alt LateralResult
	require.NoError(t, json.Unmarshal([]byte(`{"alternatives":[{"title":"a","description":"b","inspiration":"c"}]}`), &alt))
	assert.Equal(t, 75, alt.Alternatives[0].Score())
}
