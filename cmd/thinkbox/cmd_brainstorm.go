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
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/thinkbox/pkg/ux"
)

func runBrainstorm(cmd *cobra.Command, args []string) {
	client := newClient()

	// Ctrl-C closes the stream; the server keeps persisting the tree, so
	// a later --resume replays whatever was generated.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sessionID := resumeID
	if sessionID == "" {
		prompt := strings.TrimSpace(strings.Join(args, " "))
		if prompt == "" {
			log.Fatal("Provide a problem statement or --resume a session ID")
		}
		session, err := client.createSession(ctx, prompt)
		if err != nil {
			log.Fatalf("Error creating session: %v", err)
		}
		sessionID = session.ID
		fmt.Printf("Session %s\n", sessionID)
	}

	body, err := client.openStream(ctx, sessionID)
	if err != nil {
		log.Fatalf("Error opening stream: %v", err)
	}
	defer body.Close()

	result, err := ux.NewStreamProcessorWithWriter(os.Stdout, quietOutput).Process(body)
	if err != nil {
		log.Fatalf("Brainstorm failed: %v", err)
	}

	fmt.Printf("\n%d nodes | session %s\n", len(result.Nodes), sessionID)
	if skipVerify {
		return
	}

	verification := ux.NewFullChainVerifier().Verify(result.Events)
	fmt.Println(verification.FormatForDisplay())
	if !verification.Valid {
		os.Exit(1)
	}
}
