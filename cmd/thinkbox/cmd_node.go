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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/thinkbox/pkg/ux"
)

func runExpand(cmd *cobra.Command, args []string) {
	client := newClient()
	nodes, err := client.expandNode(context.Background(), args[0])
	if err != nil {
		log.Fatalf("Error expanding node: %v", err)
	}

	fmt.Printf("Created %d sub-ideas:\n", len(nodes))
	for _, node := range nodes {
		fmt.Printf("  [%s] %s\n", node.AgentType, ux.ContentTitle(node.Content))
	}
}

func runDeepDive(cmd *cobra.Command, args []string) {
	client := newClient()
	dive, err := client.deepDiveNode(context.Background(), args[0])
	if err != nil {
		log.Fatalf("Error generating deep dive: %v", err)
	}
	fmt.Println(dive.FullMarkdownContent)
}

func runIgnore(cmd *cobra.Command, args []string) {
	client := newClient()
	if err := client.ignoreNode(context.Background(), args[0]); err != nil {
		log.Fatalf("Error ignoring node: %v", err)
	}
	fmt.Printf("Node %s ignored\n", args[0])
}

func runGrade(cmd *cobra.Command, args []string) {
	client := newClient()

	if clearGrade {
		// An explicit JSON null clears the stored grade.
		if err := client.patchNode(context.Background(), args[0], map[string]any{"grade": nil}); err != nil {
			log.Fatalf("Error clearing grade: %v", err)
		}
		fmt.Printf("Cleared grade on node %s\n", args[0])
		return
	}

	if len(args) < 2 {
		log.Fatal("Provide a grade from 1 to 5, or use --clear")
	}
	grade, err := strconv.Atoi(args[1])
	if err != nil || grade < 1 || grade > 5 {
		log.Fatalf("Invalid grade %q: must be an integer from 1 to 5", args[1])
	}

	if err := client.patchNode(context.Background(), args[0], map[string]any{"grade": grade}); err != nil {
		log.Fatalf("Error grading node: %v", err)
	}
	fmt.Printf("Graded node %s: %d\n", args[0], grade)
}
