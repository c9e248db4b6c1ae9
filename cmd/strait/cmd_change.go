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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/strait/pkg/ux"
	"github.com/AleutianAI/strait/pkg/validation"
	"github.com/AleutianAI/strait/services/governor/datatypes"
	"github.com/AleutianAI/strait/services/governor/tracker"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	trackKind          string   // Change kind (addition/modification/removal)
	trackRepository    string   // Repository owning the schema
	trackTeam          string   // Owning team
	trackAffectedTeams []string // Teams declared as affected
	trackBreaking      bool     // Mark the change breaking up front
	trackDescription   string   // Human description
	trackCurrentPath   string   // Path to the proposed schema file
	trackBaselinePath  string   // Path to the baseline schema file
	trackDiffPath      string   // Path to a unified diff of the change
	trackJSONOutput    bool     // Output as JSON

	listChangesRepository string // Filter by repository
	listChangesAuthor     string // Filter by author
	listChangesStatus     string // Filter by review status or "blocked"
	listChangesJSONOutput bool   // Output as JSON

	getChangeJSONOutput  bool // Output as JSON
	changePlanJSONOutput bool // Output as JSON
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// trackChangeCmd submits a schema change through the governance pipeline.
//
// # Description
//
// Sends the change to the governor, which runs breaking-change detection
// (when schema payloads are supplied), impact analysis, and policy
// evaluation, then reports the resulting review requirements.
//
// # Examples
//
//	strait change track orders.v1.Order --kind addition --repository github.com/acme/orders --team payments
//	strait change track orders.v1.Order --kind modification \
//	    --repository github.com/acme/orders --team payments \
//	    --current orders.proto --baseline orders.baseline.proto
var trackChangeCmd = &cobra.Command{
	Use:   "track [target[@version]]",
	Short: "Submit a schema change for governance tracking",
	Long: `Submits a schema change to the governor and prints the tracked record.

The target may carry the proposed schema version ("orders@v2.0.0",
semver with the leading v).

When --current and --baseline point at schema files, the governor runs its
breaking-change detector on the pair and folds any findings into policy
evaluation. A change that a policy blocks is still recorded; the record
shows why it was blocked. With --diff, findings are annotated with the
before/after lines from the hunk covering their location.

Examples:
  strait change track orders.v1.Order --kind addition \
      --repository github.com/acme/orders --team payments
  strait change track orders.v1.Order --kind modification \
      --repository github.com/acme/orders --team payments \
      --current orders.proto --baseline orders.baseline.proto \
      --affected web --affected mobile`,
	Args: cobra.ExactArgs(1),
	Run:  runTrackChange,
}

var getChangeCmd = &cobra.Command{
	Use:   "get [change-id]",
	Short: "Fetch a tracked change record by ID",
	Args:  cobra.ExactArgs(1),
	Run:   runGetChange,
}

var listChangesCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked changes, newest first",
	Run:   runListChanges,
}

var changePlanCmd = &cobra.Command{
	Use:   "plan [change-id]",
	Short: "Generate a migration plan for a tracked change",
	Args:  cobra.ExactArgs(1),
	Run:   runChangePlan,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	trackChangeCmd.Flags().StringVar(&trackKind, "kind", "modification",
		"Change kind: addition, modification, or removal")
	trackChangeCmd.Flags().StringVar(&trackRepository, "repository", "",
		"Repository that owns the schema (required)")
	trackChangeCmd.Flags().StringVar(&trackTeam, "team", "",
		"Team that owns the schema (required)")
	trackChangeCmd.Flags().StringArrayVar(&trackAffectedTeams, "affected", nil,
		"Team known to be affected (repeatable)")
	trackChangeCmd.Flags().BoolVar(&trackBreaking, "breaking", false,
		"Mark the change as breaking without running detection")
	trackChangeCmd.Flags().StringVarP(&trackDescription, "description", "d", "",
		"Description of the change")
	trackChangeCmd.Flags().StringVar(&trackCurrentPath, "current", "",
		"Path to the proposed schema file")
	trackChangeCmd.Flags().StringVar(&trackBaselinePath, "baseline", "",
		"Path to the baseline schema file")
	trackChangeCmd.Flags().StringVar(&trackDiffPath, "diff", "",
		"Path to a unified diff of the change, for snippet annotation")
	trackChangeCmd.Flags().BoolVar(&trackJSONOutput, "json", false,
		"Output as JSON for scripting")
	_ = trackChangeCmd.MarkFlagRequired("repository")
	_ = trackChangeCmd.MarkFlagRequired("team")

	getChangeCmd.Flags().BoolVar(&getChangeJSONOutput, "json", false,
		"Output as JSON for scripting")

	listChangesCmd.Flags().StringVar(&listChangesRepository, "repository", "",
		"Only list changes in this repository")
	listChangesCmd.Flags().StringVar(&listChangesAuthor, "author", "",
		"Only list changes by this author")
	listChangesCmd.Flags().StringVar(&listChangesStatus, "status", "",
		"Only list changes with this review status, or \"blocked\"")
	listChangesCmd.Flags().BoolVar(&listChangesJSONOutput, "json", false,
		"Output as JSON for scripting")

	changePlanCmd.Flags().BoolVar(&changePlanJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runTrackChange(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	target, version := splitTargetVersion(args[0])
	if version != "" {
		if err := validation.ValidateVersion(version); err != nil {
			ux.Error(fmt.Sprintf("Invalid target version: %v", err))
			os.Exit(1)
		}
	}

	req := &datatypes.TrackChangeRequest{
		Target:        target,
		Version:       version,
		Kind:          trackKind,
		Repository:    trackRepository,
		OwningTeam:    trackTeam,
		AffectedTeams: trackAffectedTeams,
		Breaking:      trackBreaking,
		Description:   trackDescription,
	}
	if trackCurrentPath != "" {
		req.CurrentSchema = readSchemaFile(trackCurrentPath)
	}
	if trackBaselinePath != "" {
		req.BaselineSchema = readSchemaFile(trackBaselinePath)
	}
	if trackDiffPath != "" {
		req.Diff = readSchemaFile(trackDiffPath)
	}

	spin := ux.NewSpinner("Tracking change...")
	spin.Start()
	rec, err := governor().TrackChange(ctx, req)
	spin.Stop()
	if err != nil {
		ux.Error(fmt.Sprintf("Track failed: %v", err))
		os.Exit(1)
	}

	if trackJSONOutput {
		outputJSON(rec)
		return
	}
	outputChangeRecord(rec)
	if rec.Blocked() {
		os.Exit(2)
	}
}

func runGetChange(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	rec, err := governor().GetChange(ctx, args[0])
	if err != nil {
		ux.Error(fmt.Sprintf("Lookup failed: %v", err))
		os.Exit(1)
	}

	if getChangeJSONOutput {
		outputJSON(rec)
		return
	}
	outputChangeRecord(rec)
}

func runListChanges(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	records, err := governor().ListChanges(ctx, listChangesRepository, listChangesAuthor, listChangesStatus)
	if err != nil {
		ux.Error(fmt.Sprintf("List failed: %v", err))
		os.Exit(1)
	}

	if listChangesJSONOutput {
		outputJSON(records)
		return
	}
	if len(records) == 0 {
		ux.Muted("No tracked changes.")
		return
	}
	ux.Title("Tracked Changes")
	for _, rec := range records {
		fmt.Printf("  %s  %-12s %-32s %s  %s\n",
			rec.Change.ID,
			rec.Change.Kind,
			rec.Change.Target,
			ux.ImpactBadge(string(rec.ImpactLevel)),
			rec.TrackedAt.Format("2006-01-02 15:04"),
		)
	}
}

func runChangePlan(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	spin := ux.NewSpinner("Generating migration plan...")
	spin.Start()
	plan, err := governor().MigrationPlan(ctx, args[0])
	spin.Stop()
	if err != nil {
		ux.Error(fmt.Sprintf("Plan generation failed: %v", err))
		os.Exit(1)
	}

	if changePlanJSONOutput {
		outputJSON(plan)
		return
	}

	ux.Title(fmt.Sprintf("Migration Plan: %s", plan.Target))
	ux.KeyValue("Strategy", string(plan.Strategy))
	ux.KeyValue("Timeline", plan.Timeline)
	ux.KeyValue("Risk", fmt.Sprintf("%s (%.1f)", ux.ImpactBadge(string(plan.Risk.Level)), plan.Risk.Score))
	for i, phase := range plan.Phases {
		fmt.Printf("\n  Phase %d: %s\n", i+1, phase.Name)
		ux.Muted("    " + phase.Description)
		if len(phase.Services) > 0 {
			ux.Muted("    services: " + strings.Join(phase.Services, ", "))
		}
	}
	if len(plan.RollbackPlan) > 0 {
		fmt.Println()
		ux.Info("Rollback:")
		for _, step := range plan.RollbackPlan {
			ux.Muted("  - " + step)
		}
	}
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

// outputJSON prints any value as indented JSON.
func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// outputChangeRecord renders a tracked change for humans.
func outputChangeRecord(rec *tracker.ChangeRecord) {
	ux.Title(fmt.Sprintf("Change %s", rec.Change.ID))
	ux.KeyValue("Target", rec.Change.Target)
	if rec.Change.Version != "" {
		ux.KeyValue("Version", rec.Change.Version)
	}
	ux.KeyValue("Kind", string(rec.Change.Kind))
	ux.KeyValue("Repository", rec.Change.Repository)
	ux.KeyValue("Owning Team", rec.Change.OwningTeam)
	ux.KeyValue("Author", rec.Change.Author)
	ux.KeyValue("Impact", ux.ImpactBadge(string(rec.ImpactLevel)))
	if len(rec.AffectedTeams) > 0 {
		ux.KeyValue("Affected Teams", strings.Join(rec.AffectedTeams, ", "))
	}

	if len(rec.BreakingChanges) > 0 {
		fmt.Println()
		ux.Warning(fmt.Sprintf("%d breaking change(s) detected:", len(rec.BreakingChanges)))
		for _, bc := range rec.BreakingChanges {
			fmt.Printf("  %s  %s  %s\n", ux.ImpactBadge(string(bc.Impact)), bc.Type, bc.Location)
			if bc.Description != "" {
				ux.Muted("    " + bc.Description)
			}
			if bc.Before != "" || bc.After != "" {
				ux.Muted("    - " + bc.Before)
				ux.Muted("    + " + bc.After)
			}
		}
	}

	if rec.Policy != nil && len(rec.Policy.Violations) > 0 {
		fmt.Println()
		if rec.Blocked() {
			ux.Error("Blocked by policy:")
		} else {
			ux.Warning("Policy violations:")
		}
		for _, v := range rec.Policy.Violations {
			ux.Muted("  - " + v)
		}
	}

	fmt.Println()
	if rec.ReviewRequired {
		if rec.ReviewID != "" {
			ux.KeyValue("Review", fmt.Sprintf("%s (%s)", rec.ReviewID, ux.StatusBadge(string(rec.ReviewStatus))))
		} else {
			ux.Warning("Review required but not created (change blocked)")
		}
	} else {
		ux.Success("No review required")
	}
	if rec.MigrationRequired {
		ux.Info(fmt.Sprintf("Migration required; run: strait change plan %s", rec.Change.ID))
	}
}

// splitTargetVersion splits "orders@v2.0.0" into ref and version. A
// target without "@" has no version.
func splitTargetVersion(arg string) (string, string) {
	if idx := strings.LastIndex(arg, "@"); idx >= 0 {
		return arg[:idx], arg[idx+1:]
	}
	return arg, ""
}

// readSchemaFile loads a schema payload from disk, exiting on failure.
func readSchemaFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot read schema file %s: %v\n", path, err)
		os.Exit(1)
	}
	return string(data)
}
