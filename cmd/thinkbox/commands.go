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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL   string
	authToken   string
	quietOutput bool
	resumeID    string
	skipVerify  bool
	clearGrade  bool

	rootCmd = &cobra.Command{
		Use:   "thinkbox",
		Short: "A cli for the thinkbox multi-agent brainstorming service",
		Long: `Thinkbox runs a problem statement through creator, skeptic and
				lateral-thinking agents and streams the resulting idea tree.`,
	}

	// --- Brainstorm ---
	brainstormCmd = &cobra.Command{
		Use:   "brainstorm [problem statement]",
		Short: "Create a session and stream the three-phase brainstorm pipeline",
		Run:   runBrainstorm, // Defined in cmd_brainstorm.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage brainstorm sessions",
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "List your brainstorm sessions",
		Run:   runListSessions, // Defined in cmd_session.go
	}
	showSessionCmd = &cobra.Command{
		Use:   "show [session_id]",
		Short: "Show a session and its full idea tree",
		Args:  cobra.ExactArgs(1),
		Run:   runShowSession, // Defined in cmd_session.go
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a session and its idea tree",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_session.go
	}

	// --- Node actions ---
	nodeCmd = &cobra.Command{
		Use:   "node",
		Short: "Act on individual idea nodes",
	}
	expandCmd = &cobra.Command{
		Use:   "expand [node_id]",
		Short: "Generate sub-ideas under a node",
		Args:  cobra.ExactArgs(1),
		Run:   runExpand, // Defined in cmd_node.go
	}
	deepDiveCmd = &cobra.Command{
		Use:   "deep-dive [node_id]",
		Short: "Generate (or fetch) the node's deep dive report",
		Args:  cobra.ExactArgs(1),
		Run:   runDeepDive, // Defined in cmd_node.go
	}
	ignoreCmd = &cobra.Command{
		Use:   "ignore [node_id]",
		Short: "Mark a node ignored",
		Args:  cobra.ExactArgs(1),
		Run:   runIgnore, // Defined in cmd_node.go
	}
	gradeCmd = &cobra.Command{
		Use:   "grade [node_id] [1-5]",
		Short: "Grade a node from 1 to 5, or clear its grade",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runGrade, // Defined in cmd_node.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080",
		"Base URL of the thinkbox orchestrator")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "",
		"Bearer token identifying the session owner (default: anonymous)")
	rootCmd.PersistentFlags().BoolVarP(&quietOutput, "quiet", "q", false,
		"Suppress per-node rendering (scripting)")

	rootCmd.AddCommand(brainstormCmd)
	brainstormCmd.Flags().StringVar(&resumeID, "resume", "",
		"Stream an existing session instead of creating a new one")
	brainstormCmd.Flags().BoolVar(&skipVerify, "no-verify", false,
		"Skip hash chain verification of the stream")

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(listSessionsCmd)
	sessionCmd.AddCommand(showSessionCmd)
	sessionCmd.AddCommand(deleteSessionCmd)

	rootCmd.AddCommand(nodeCmd)
	nodeCmd.AddCommand(expandCmd)
	nodeCmd.AddCommand(deepDiveCmd)
	nodeCmd.AddCommand(ignoreCmd)
	gradeCmd.Flags().BoolVar(&clearGrade, "clear", false, "Clear the node's grade")
	nodeCmd.AddCommand(gradeCmd)
}
