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
	"os"
	"os/user"
	"time"

	"github.com/AleutianAI/strait/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL   string // Governor base URL
	actorName   string // Identity sent in the actor header
	plainOutput bool   // Disable color and box drawing

	rootCmd = &cobra.Command{
		Use:   "strait",
		Short: "A cli to govern schema changes across services",
		Long: `Strait tracks schema changes, detects breaking changes, maps
				downstream impact, and coordinates the reviews and approvals
				your governance policy requires.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if plainOutput {
				ux.SetPlain(true)
			}
		},
	}

	// --- Changes ---
	changeCmd = &cobra.Command{
		Use:   "change",
		Short: "Track schema changes and inspect their governance outcome",
	}

	// --- Reviews ---
	reviewCmd = &cobra.Command{
		Use:   "review",
		Short: "Approve, reject, and inspect schema change reviews",
	}

	// --- Dependencies ---
	depsCmd = &cobra.Command{
		Use:   "deps",
		Short: "Register and inspect schema consumer dependencies",
	}

	// --- Policies ---
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Dry-run governance policies against a proposed change",
	}

	// --- Approvals ---
	approvalCmd = &cobra.Command{
		Use:   "approval",
		Short: "Record and list pre-approvals for breaking changes",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("STRAIT_SERVER", "http://localhost:12260"),
		"Base URL of the governor service")
	rootCmd.PersistentFlags().StringVar(&actorName, "actor",
		envOr("STRAIT_ACTOR", defaultActor()),
		"Identity used for approvals and audit attribution")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Disable color and box drawing in output")

	// Change commands
	rootCmd.AddCommand(changeCmd)
	changeCmd.AddCommand(trackChangeCmd)
	changeCmd.AddCommand(getChangeCmd)
	changeCmd.AddCommand(listChangesCmd)
	changeCmd.AddCommand(changePlanCmd)

	// Review commands
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(approveReviewCmd)
	reviewCmd.AddCommand(rejectReviewCmd)
	reviewCmd.AddCommand(cancelReviewCmd)
	reviewCmd.AddCommand(commentReviewCmd)
	reviewCmd.AddCommand(reviewStatusCmd)
	reviewCmd.AddCommand(reviewInboxCmd)

	// Dependency commands
	rootCmd.AddCommand(depsCmd)
	depsCmd.AddCommand(registerDepCmd)
	depsCmd.AddCommand(depsGraphCmd)
	depsCmd.AddCommand(depsMatrixCmd)

	// Impact
	rootCmd.AddCommand(impactCmd)

	// Policy commands
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCheckCmd)

	// Breaking-change approvals
	rootCmd.AddCommand(approvalCmd)
	approvalCmd.AddCommand(approveBreakingCmd)
	approvalCmd.AddCommand(listApprovalsCmd)

	// Audit
	rootCmd.AddCommand(auditCmd)
}

// governor returns the API client configured from the global flags.
func governor() *governorClient {
	return newGovernorClient(serverURL, actorName)
}

// cliContext returns the context used for one command invocation.
func cliContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// defaultActor falls back to the OS user when no actor is configured.
func defaultActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "anonymous"
}
