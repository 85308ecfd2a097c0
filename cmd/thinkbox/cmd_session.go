// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/thinkbox/pkg/ux"
)

func runListSessions(cmd *cobra.Command, args []string) {
	client := newClient()
	sessions, err := client.listSessions(context.Background())
	if err != nil {
		log.Fatalf("Error listing sessions: %v", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, session := range sessions {
		fmt.Printf("%s  [%s]  %d nodes  %s\n",
			session.ID, session.Phase, session.NodeCount, truncatePrompt(session.OriginalPrompt))
	}
}

func runShowSession(cmd *cobra.Command, args []string) {
	client := newClient()
	session, nodes, err := client.getSession(context.Background(), args[0])
	if err != nil {
		log.Fatalf("Error fetching session: %v", err)
	}

	fmt.Printf("Session %s [%s]\n", session.ID, session.Phase)
	fmt.Printf("Prompt: %s\n\n", session.OriginalPrompt)
	printTree(nodes)
}

func runDeleteSession(cmd *cobra.Command, args []string) {
	client := newClient()
	if err := client.deleteSession(context.Background(), args[0]); err != nil {
		log.Fatalf("Error deleting session: %v", err)
	}
	fmt.Printf("Deleted session %s\n", args[0])
}

// printTree renders the node list as an indented tree. Nodes arrive in
// creation order, so every parent precedes its children.
func printTree(nodes []nodeInfo) {
	depths := make(map[string]int, len(nodes))
	for _, node := range nodes {
		depth := 0
		if node.ParentID != nil {
			depth = depths[*node.ParentID] + 1
		}
		depths[node.ID] = depth

		marker := ""
		if node.Status == "ignored" {
			marker = " (ignored)"
		}
		grade := ""
		if node.Grade != nil {
			grade = fmt.Sprintf(" ★%d", *node.Grade)
		}
		fmt.Printf("%s[%s] %s%s%s\n",
			strings.Repeat("  ", depth), node.AgentType,
			ux.ContentTitle(node.Content), grade, marker)
	}
}

func truncatePrompt(prompt string) string {
	const maxLen = 60
	runes := []rune(prompt)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "…"
	}
	return prompt
}
