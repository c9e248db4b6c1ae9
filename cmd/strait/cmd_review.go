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
	"github.com/AleutianAI/strait/services/governor/review"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	approveComment string // Optional approval comment
	rejectReason   string // Rejection reason (prompted when empty)
	cancelReason   string // Cancellation reason
	commentBody    string // Comment text
	reviewYes      bool   // Skip confirmation prompts

	reviewStatusJSONOutput bool // Output as JSON
	inboxStatusFilter      string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var approveReviewCmd = &cobra.Command{
	Use:   "approve [review-id]",
	Short: "Record your approval on a review",
	Long: `Records an approval on the review as the configured actor.

The governor enforces reviewer eligibility: only users in the review's
reviewer snapshot may approve, and authors cannot approve their own
changes. When the approval threshold is met the review resolves and the
linked change record is updated.

Examples:
  strait review approve rev-1a2b3c
  strait review approve rev-1a2b3c --comment "Migration plan looks safe"`,
	Args: cobra.ExactArgs(1),
	Run:  runApproveReview,
}

var rejectReviewCmd = &cobra.Command{
	Use:   "reject [review-id]",
	Short: "Reject a review with a reason",
	Args:  cobra.ExactArgs(1),
	Run:   runRejectReview,
}

var cancelReviewCmd = &cobra.Command{
	Use:   "cancel [review-id]",
	Short: "Cancel a review you requested",
	Args:  cobra.ExactArgs(1),
	Run:   runCancelReview,
}

var commentReviewCmd = &cobra.Command{
	Use:   "comment [review-id]",
	Short: "Add a comment to a review",
	Args:  cobra.ExactArgs(1),
	Run:   runCommentReview,
}

var reviewStatusCmd = &cobra.Command{
	Use:   "status [review-id]",
	Short: "Show a review's approval progress",
	Args:  cobra.ExactArgs(1),
	Run:   runReviewStatus,
}

// reviewInboxCmd opens the interactive inbox.
//
// # Description
//
// Lists reviews where the configured actor is a pending reviewer and
// lets them approve or reject each one from an interactive list. Falls
// back to a static listing when stdout is not a terminal.
var reviewInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Interactively work through reviews waiting on you",
	Run:   runReviewInbox,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	approveReviewCmd.Flags().StringVarP(&approveComment, "comment", "c", "",
		"Comment recorded with the approval")

	rejectReviewCmd.Flags().StringVarP(&rejectReason, "reason", "r", "",
		"Reason for rejecting (prompted when omitted)")
	rejectReviewCmd.Flags().BoolVarP(&reviewYes, "yes", "y", false,
		"Skip the confirmation prompt")

	cancelReviewCmd.Flags().StringVarP(&cancelReason, "reason", "r", "",
		"Reason for cancelling")
	cancelReviewCmd.Flags().BoolVarP(&reviewYes, "yes", "y", false,
		"Skip the confirmation prompt")

	commentReviewCmd.Flags().StringVarP(&commentBody, "message", "m", "",
		"Comment text (required)")
	_ = commentReviewCmd.MarkFlagRequired("message")

	reviewStatusCmd.Flags().BoolVar(&reviewStatusJSONOutput, "json", false,
		"Output as JSON for scripting")

	reviewInboxCmd.Flags().StringVar(&inboxStatusFilter, "status", "pending",
		"Review status to list")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runApproveReview(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	rev, err := governor().ApproveReview(ctx, args[0], approveComment)
	if err != nil {
		ux.Error(fmt.Sprintf("Approve failed: %v", err))
		os.Exit(1)
	}

	ux.Success(fmt.Sprintf("Approval recorded on %s", rev.ID))
	ux.ReviewSummary(len(rev.Approvals), rev.ApprovalCount, string(rev.Status))
}

func runRejectReview(cmd *cobra.Command, args []string) {
	reason := rejectReason
	if reason == "" {
		if err := promptForReason("Reject review "+args[0], &reason); err != nil {
			ux.Error(fmt.Sprintf("Aborted: %v", err))
			os.Exit(1)
		}
	}
	if reason == "" {
		ux.Error("A rejection reason is required")
		os.Exit(1)
	}
	if !reviewYes && !confirmAction(fmt.Sprintf("Reject review %s?", args[0])) {
		ux.Muted("Aborted.")
		return
	}

	ctx, cancel := cliContext()
	defer cancel()

	rev, err := governor().RejectReview(ctx, args[0], reason)
	if err != nil {
		ux.Error(fmt.Sprintf("Reject failed: %v", err))
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Review %s rejected", rev.ID))
}

func runCancelReview(cmd *cobra.Command, args []string) {
	if !reviewYes && !confirmAction(fmt.Sprintf("Cancel review %s?", args[0])) {
		ux.Muted("Aborted.")
		return
	}

	ctx, cancel := cliContext()
	defer cancel()

	rev, err := governor().CancelReview(ctx, args[0], cancelReason)
	if err != nil {
		ux.Error(fmt.Sprintf("Cancel failed: %v", err))
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Review %s cancelled", rev.ID))
}

func runCommentReview(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	rev, err := governor().CommentReview(ctx, args[0], commentBody)
	if err != nil {
		ux.Error(fmt.Sprintf("Comment failed: %v", err))
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Comment added to %s", rev.ID))
}

func runReviewStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	detail, err := governor().GetReview(ctx, args[0])
	if err != nil {
		ux.Error(fmt.Sprintf("Lookup failed: %v", err))
		os.Exit(1)
	}

	if reviewStatusJSONOutput {
		outputJSON(detail)
		return
	}
	outputReviewDetail(detail.Review, detail.Status)
}

func runReviewInbox(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	reviews, err := governor().ListReviews(ctx, actorName, "")
	if err != nil {
		ux.Error(fmt.Sprintf("Inbox fetch failed: %v", err))
		os.Exit(1)
	}

	pending := make([]*review.Request, 0, len(reviews))
	for _, rev := range reviews {
		if string(rev.Status) == inboxStatusFilter {
			pending = append(pending, rev)
		}
	}
	if len(pending) == 0 {
		ux.Success("Inbox empty. Nothing waiting on you.")
		return
	}

	if ux.Plain() {
		// Non-interactive fallback for pipes and CI.
		ux.Title(fmt.Sprintf("Reviews waiting on %s", actorName))
		for _, rev := range pending {
			outputReviewLine(rev)
		}
		return
	}

	model := newInboxModel(pending, governor())
	program := tea.NewProgram(model, tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		ux.Error(fmt.Sprintf("Inbox failed: %v", err))
		os.Exit(1)
	}
	if m, ok := final.(inboxModel); ok {
		m.printSummary()
	}
}

// =============================================================================
// PROMPTS
// =============================================================================

// promptForReason opens an input form for the given action.
func promptForReason(title string, out *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description("Why? This is recorded on the review.").
				Value(out),
		),
	)
	return form.Run()
}

// confirmAction asks for a yes/no confirmation before a destructive call.
func confirmAction(title string) bool {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return confirmed
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputReviewLine(rev *review.Request) {
	fmt.Printf("  %s  %-32s %s  %d/%d approvals\n",
		rev.ID, rev.Target, ux.StatusBadge(string(rev.Status)),
		len(rev.Approvals), rev.ApprovalCount)
}

func outputReviewDetail(rev *review.Request, status *review.ApprovalStatus) {
	ux.Title(fmt.Sprintf("Review %s", rev.ID))
	ux.KeyValue("Change", rev.ChangeID)
	ux.KeyValue("Target", rev.Target)
	ux.KeyValue("Owning Team", rev.OwningTeam)
	ux.KeyValue("Requester", rev.Requester)
	ux.KeyValue("Reviewers", strings.Join(rev.Reviewers, ", "))
	if len(status.Approvers) > 0 {
		ux.KeyValue("Approved By", strings.Join(status.Approvers, ", "))
	}
	if len(status.PendingReviewers) > 0 {
		ux.KeyValue("Waiting On", strings.Join(status.PendingReviewers, ", "))
	}
	if rev.Resolution != nil {
		ux.KeyValue("Resolved By", rev.Resolution.By)
		if rev.Resolution.Reason != "" {
			ux.KeyValue("Reason", rev.Resolution.Reason)
		}
	}
	for _, comment := range rev.Comments {
		ux.Muted(fmt.Sprintf("  %s: %s", comment.Author, comment.Body))
	}
	ux.ReviewSummary(len(rev.Approvals), rev.ApprovalCount, string(rev.Status))
}
