// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"fmt"
	"time"

	"github.com/AleutianAI/strait/services/governor/teams"
)

// Status is the review lifecycle state.
type Status string

const (
	// StatusPending accepts approvals, rejections, cancellation, and
	// comments.
	StatusPending Status = "pending"

	// StatusApproved is terminal: the approval threshold was reached.
	StatusApproved Status = "approved"

	// StatusRejected is terminal: a reviewer rejected the change.
	StatusRejected Status = "rejected"

	// StatusCancelled is terminal: the review was withdrawn.
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a wire-level status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown review status %q (expected pending, approved, rejected, or cancelled)", s)
	}
}

// Terminal reports whether the status permits no further mutation.
// Comments included: a closed review is immutable.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// Approval is one reviewer's recorded approval.
type Approval struct {
	Reviewer   string    `json:"reviewer"`
	Comment    string    `json:"comment,omitempty"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Comment is a discussion entry on a review.
type Comment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Resolution records how a review reached its terminal status.
type Resolution struct {
	// Action is the terminal status the review moved to.
	Action Status `json:"action"`

	// By is the actor whose approval, rejection, or cancellation closed
	// the review.
	By string `json:"by"`

	// Reason is the rejection reason or cancellation note; empty for
	// approvals.
	Reason string `json:"reason,omitempty"`

	At time.Time `json:"at"`
}

// Request is one review request tracked by the engine.
//
// Reviewers holds the usernames resolved at creation time; ReviewerRefs
// keeps the original references (including "@team" entries) so that team
// membership is re-resolved live on every authorization check. A user
// added to a referenced team after the review was created is authorized;
// a user removed from it is not, unless they were named individually.
type Request struct {
	// ID is the engine-assigned review identifier (UUID).
	ID string `json:"id"`

	// ChangeID links back to the schema change under review.
	ChangeID string `json:"change_id"`

	// Target is the schema ref the change touches.
	Target string `json:"target"`

	// OwningTeam owns the target schema.
	OwningTeam string `json:"owning_team"`

	// Requester opened the review.
	Requester string `json:"requester"`

	Description string `json:"description,omitempty"`

	// Reviewers is the username snapshot resolved at creation.
	Reviewers []string `json:"reviewers"`

	// ReviewerRefs preserves the original reviewer references.
	ReviewerRefs []teams.Reviewer `json:"reviewer_refs"`

	// ApprovalCount is how many distinct approvals close the review.
	ApprovalCount int `json:"approval_count"`

	Status    Status     `json:"status"`
	Approvals []Approval `json:"approvals,omitempty"`
	Comments  []Comment  `json:"comments,omitempty"`

	// Resolution is set exactly once, when Status turns terminal.
	Resolution *Resolution `json:"resolution,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasApproval reports whether the reviewer already approved. Approvals
// are idempotent per reviewer; this is the dedupe check.
func (r *Request) HasApproval(reviewer string) bool {
	for _, a := range r.Approvals {
		if a.Reviewer == reviewer {
			return true
		}
	}
	return false
}

// ApprovalStatus summarizes where a review stands.
type ApprovalStatus struct {
	ReviewID string `json:"review_id"`
	Status   Status `json:"status"`

	// IsApproved is true once the review closed as approved.
	IsApproved bool `json:"is_approved"`

	// Approvers lists reviewers who approved, in approval order.
	Approvers []string `json:"approvers,omitempty"`

	// PendingReviewers lists authorized reviewers who have not approved
	// yet, with team references expanded against current membership.
	PendingReviewers []string `json:"pending_reviewers,omitempty"`

	// ApprovalsNeeded is how many more approvals would close the review;
	// zero once the threshold is met or the review is closed.
	ApprovalsNeeded int `json:"approvals_needed"`
}
