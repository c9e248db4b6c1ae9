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
	"github.com/AleutianAI/strait/services/governor/datatypes"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	checkRepository   string   // Repository owning the schema
	checkTeam         string   // Owning team
	checkKind         string   // Change kind
	checkBreaking     bool     // Treat the change as breaking
	checkApprovers    []string // Approvals already collected
	checkFindingsPath string   // JSON file of breaking findings
	checkJSONOutput   bool     // Output as JSON

	approveBreakingLocation string // Schema location being pre-approved
	approveBreakingNote     string // Note stored with the approval

	listApprovalsJSONOutput bool // Output as JSON
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// policyCheckCmd evaluates governance policies without recording anything.
//
// # Description
//
// Dry-runs the review and breaking-change policies for a hypothetical
// change so CI pipelines can gate merges before a change is tracked.
// The exit code is 0 when the change would pass and 2 when a policy
// would block it.
//
// # Examples
//
//	strait policy check orders.v1.Order --repository github.com/acme/orders --team payments
//	strait policy check orders.v1.Order --repository github.com/acme/orders \
//	    --team payments --breaking --findings findings.json
var policyCheckCmd = &cobra.Command{
	Use:   "check [target]",
	Short: "Dry-run governance policies for a proposed change",
	Long: `Evaluates governance policies for a proposed change without
tracking it.

Findings produced by an external breaking-change detector can be passed
as a JSON array via --findings; each entry needs type, location, and
impact (low/medium/high/critical). The command exits 2 when a policy
would block the change, so it slots directly into CI.

Examples:
  strait policy check orders.v1.Order \
      --repository github.com/acme/orders --team payments
  strait policy check orders.v1.Order \
      --repository github.com/acme/orders --team payments \
      --breaking --findings findings.json --approver alice`,
	Args: cobra.ExactArgs(1),
	Run:  runPolicyCheck,
}

var approveBreakingCmd = &cobra.Command{
	Use:   "breaking [repository]",
	Short: "Record a pre-approval for a breaking change location",
	Long: `Records that the configured actor approves a breaking change at a
specific schema location. Policies that require approval for breaking
changes consult these records during evaluation.

Examples:
  strait approval breaking github.com/acme/orders --location orders.proto:42
  strait approval breaking github.com/acme/orders \
      --location orders.proto:42 --note "Coordinated with web team"`,
	Args: cobra.ExactArgs(1),
	Run:  runApproveBreaking,
}

var listApprovalsCmd = &cobra.Command{
	Use:   "list [repository]",
	Short: "List recorded breaking-change approvals for a repository",
	Args:  cobra.ExactArgs(1),
	Run:   runListApprovals,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	policyCheckCmd.Flags().StringVar(&checkRepository, "repository", "",
		"Repository that owns the schema (required)")
	policyCheckCmd.Flags().StringVar(&checkTeam, "team", "",
		"Team that owns the schema (required)")
	policyCheckCmd.Flags().StringVar(&checkKind, "kind", "modification",
		"Change kind: addition, modification, or removal")
	policyCheckCmd.Flags().BoolVar(&checkBreaking, "breaking", false,
		"Treat the change as breaking")
	policyCheckCmd.Flags().StringArrayVar(&checkApprovers, "approver", nil,
		"Approval already collected (repeatable)")
	policyCheckCmd.Flags().StringVar(&checkFindingsPath, "findings", "",
		"Path to a JSON array of breaking findings")
	policyCheckCmd.Flags().BoolVar(&checkJSONOutput, "json", false,
		"Output as JSON for scripting")
	_ = policyCheckCmd.MarkFlagRequired("repository")
	_ = policyCheckCmd.MarkFlagRequired("team")

	approveBreakingCmd.Flags().StringVar(&approveBreakingLocation, "location", "",
		"Schema location, e.g. orders.proto:42 (required)")
	approveBreakingCmd.Flags().StringVar(&approveBreakingNote, "note", "",
		"Note stored with the approval")
	_ = approveBreakingCmd.MarkFlagRequired("location")

	listApprovalsCmd.Flags().BoolVar(&listApprovalsJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runPolicyCheck(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	req := &datatypes.PolicyCheckRequest{
		Repository: checkRepository,
		OwningTeam: checkTeam,
		Target:     args[0],
		Kind:       checkKind,
		Breaking:   checkBreaking,
		Approvers:  checkApprovers,
	}
	if checkFindingsPath != "" {
		req.Findings = readFindings(checkFindingsPath)
	}

	resp, err := governor().CheckPolicy(ctx, req)
	if err != nil {
		ux.Error(fmt.Sprintf("Policy check failed: %v", err))
		os.Exit(1)
	}

	if checkJSONOutput {
		outputJSON(resp)
	} else {
		outputPolicyCheck(resp)
	}
	if resp.ReviewPolicy.Action.Blocking() ||
		(resp.BreakingPolicy != nil && resp.BreakingPolicy.Action.Blocking()) {
		os.Exit(2)
	}
}

func runApproveBreaking(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	req := &datatypes.RecordBreakingApprovalRequest{
		Repository: args[0],
		Location:   approveBreakingLocation,
		Note:       approveBreakingNote,
	}
	if err := governor().ApproveBreaking(ctx, req); err != nil {
		ux.Error(fmt.Sprintf("Approval failed: %v", err))
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Breaking change at %s approved by %s", approveBreakingLocation, actorName))
}

func runListApprovals(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	approvals, err := governor().ListBreakingApprovals(ctx, args[0])
	if err != nil {
		ux.Error(fmt.Sprintf("List failed: %v", err))
		os.Exit(1)
	}

	if listApprovalsJSONOutput {
		outputJSON(approvals)
		return
	}
	if len(approvals) == 0 {
		ux.Muted("No breaking-change approvals recorded.")
		return
	}
	ux.Title(fmt.Sprintf("Breaking-Change Approvals: %s", args[0]))
	for _, a := range approvals {
		line := fmt.Sprintf("  %-32s %-16s %s", a.Location, a.Approver, a.GrantedAt.Format("2006-01-02 15:04"))
		if a.Note != "" {
			line += "  " + a.Note
		}
		fmt.Println(line)
	}
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputPolicyCheck(resp *datatypes.PolicyCheckResponse) {
	ux.Title("Policy Check")
	outputPolicyResult("Review policy", resp.ReviewPolicy)
	if resp.BreakingPolicy != nil {
		fmt.Println()
		outputPolicyResult("Breaking policy", resp.BreakingPolicy)
	}
}

func outputPolicyResult(name string, result *policy.PolicyResult) {
	ux.KeyValue(name, string(result.Action))
	if result.Reason != "" {
		ux.Muted("  " + result.Reason)
	}
	if len(result.Outstanding) > 0 {
		ux.Warning("  waiting on: " + strings.Join(result.Outstanding, ", "))
	}
}

// readFindings loads a JSON findings file, exiting on failure.
func readFindings(path string) []datatypes.BreakingFinding {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot read findings file %s: %v\n", path, err)
		os.Exit(1)
	}
	var findings []datatypes.BreakingFinding
	if err := json.Unmarshal(data, &findings); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid findings file %s: %v\n", path, err)
		os.Exit(1)
	}
	return findings
}
