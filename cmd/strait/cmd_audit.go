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

	"github.com/AleutianAI/strait/pkg/ux"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	auditEventType    string // Filter by event type
	auditActor        string // Filter by actor
	auditResourceType string // Filter by resource type
	auditResourceID   string // Filter by resource ID
	auditOutcome      string // Filter by outcome
	auditStart        string // RFC3339 lower bound
	auditEnd          string // RFC3339 upper bound
	auditLimit        int    // Max records
	auditJSONOutput   bool   // Output as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// auditCmd queries the governance audit trail.
//
// # Examples
//
//	strait audit --actor alice --limit 20
//	strait audit --event-type change.tracked --outcome blocked
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the governance audit trail",
	Long: `Queries audit records written by the governor.

Every tracked change, policy decision, approval, and review resolution
produces a record attributing the action to an actor. Filters combine
with AND.

Examples:
  strait audit --actor alice --limit 20
  strait audit --event-type change.tracked --outcome blocked
  strait audit --resource-type review --resource-id rev-1a2b3c
  strait audit --start 2026-08-01T00:00:00Z --end 2026-09-01T00:00:00Z`,
	Run: runAudit,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	auditCmd.Flags().StringVar(&auditEventType, "event-type", "",
		"Filter by event type, e.g. change.tracked")
	auditCmd.Flags().StringVar(&auditActor, "actor-filter", "",
		"Filter by actor")
	auditCmd.Flags().StringVar(&auditResourceType, "resource-type", "",
		"Filter by resource type, e.g. change or review")
	auditCmd.Flags().StringVar(&auditResourceID, "resource-id", "",
		"Filter by resource ID")
	auditCmd.Flags().StringVar(&auditOutcome, "outcome", "",
		"Filter by outcome: success, failure, or blocked")
	auditCmd.Flags().StringVar(&auditStart, "start", "",
		"Only records at or after this RFC3339 timestamp")
	auditCmd.Flags().StringVar(&auditEnd, "end", "",
		"Only records before this RFC3339 timestamp")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50,
		"Maximum number of records")
	auditCmd.Flags().BoolVar(&auditJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAudit(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	records, err := governor().QueryAudit(ctx, auditQuery{
		EventType:    auditEventType,
		Actor:        auditActor,
		ResourceType: auditResourceType,
		ResourceID:   auditResourceID,
		Outcome:      auditOutcome,
		Start:        auditStart,
		End:          auditEnd,
		Limit:        auditLimit,
	})
	if err != nil {
		ux.Error(fmt.Sprintf("Audit query failed: %v", err))
		os.Exit(1)
	}

	if auditJSONOutput {
		outputJSON(records)
		return
	}
	if len(records) == 0 {
		ux.Muted("No matching audit records.")
		return
	}
	ux.Title("Audit Trail")
	for _, rec := range records {
		fmt.Printf("  %s  %-20s %-12s %-10s %s/%s\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.EventType,
			rec.Actor,
			rec.Outcome,
			rec.ResourceType,
			rec.ResourceID,
		)
	}
}
