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
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/strait/pkg/ux"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	impactJSONOutput bool // Output as JSON
	impactVerbose    bool // Show per-service detail
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// impactCmd assesses who is affected when a schema changes.
//
// # Description
//
// Asks the governor for the impact assessment of the target schema:
// overall level, affected services grouped by team, and the contact
// priority for each team.
//
// # Examples
//
//	strait impact orders.v1.Order
//	strait impact orders.v1.Order --json
//	strait impact orders.v1.Order --verbose
var impactCmd = &cobra.Command{
	Use:   "impact [target]",
	Short: "Assess the blast radius of changing a schema",
	Long: `Computes the impact of changing the target schema from the
registered dependency graph.

The assessment ranks every consuming service by coupling strength and
distance, rolls services up into per-team impact, and assigns each team
a contact priority so you know who to call first.

Examples:
  strait impact orders.v1.Order
  strait impact orders.v1.Order --json      # For scripting
  strait impact orders.v1.Order --verbose   # Per-service detail`,
	Args: cobra.ExactArgs(1),
	Run:  runImpact,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	impactCmd.Flags().BoolVar(&impactJSONOutput, "json", false,
		"Output as JSON for scripting")
	impactCmd.Flags().BoolVarP(&impactVerbose, "verbose", "v", false,
		"Show detailed per-service information")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runImpact(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	as, err := governor().Impact(ctx, args[0])
	if err != nil {
		ux.Error(fmt.Sprintf("Impact assessment failed: %v", err))
		os.Exit(1)
	}

	if impactJSONOutput {
		outputJSON(as)
		return
	}
	outputImpactAssessment(as)
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputImpactAssessment(as *impact.Assessment) {
	ux.Title(fmt.Sprintf("Impact: %s", as.Target))
	ux.KeyValue("Level", ux.ImpactBadge(string(as.Level)))
	ux.KeyValue("Affected Services", fmt.Sprintf("%d", len(as.AffectedServices)))
	ux.KeyValue("Affected Teams", strings.Join(as.AffectedTeams, ", "))

	if len(as.TeamImpacts) > 0 {
		fmt.Println()
		ux.Info("Team impact:")
		for _, team := range as.TeamImpacts {
			fmt.Printf("  %s  %-16s contact: %-10s services: %s\n",
				ux.ImpactBadge(string(team.Level)),
				team.Team,
				team.ContactPriority,
				strings.Join(team.Services, ", "),
			)
			if impactVerbose {
				for _, action := range team.RequiredActions {
					ux.Muted("      - " + action)
				}
			}
		}
	}

	if impactVerbose && len(as.AffectedServices) > 0 {
		fmt.Println()
		ux.Info("Services:")
		for _, svc := range as.AffectedServices {
			fmt.Printf("  %s  %-24s %-10s %-8s team=%s\n",
				ux.ImpactBadge(string(svc.Level)),
				svc.Service, svc.Strength, svc.Kind, svc.Team)
		}
	}
}
