// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracker

import (
	"time"

	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/schema"
)

// Submission is the input for tracking one schema change.
type Submission struct {
	// Change is the proposed change. ID and CreatedAt are assigned by
	// the tracker.
	Change schema.Change `json:"change"`

	// Current is the proposed schema payload. Required for
	// modifications, where it feeds breaking-change detection.
	Current string `json:"current,omitempty"`

	// Baseline is the schema payload being replaced. Required for
	// modifications.
	Baseline string `json:"baseline,omitempty"`

	// Diff is an optional unified diff of the change. When present,
	// detector findings are annotated with before/after snippets from
	// the hunks covering their locations.
	Diff string `json:"diff,omitempty"`
}

// PolicyOutcome summarizes the policy evaluations made at tracking time.
type PolicyOutcome struct {
	// ReviewAction is the review policy decision: allow means the
	// change auto-approved, require_approval means a review gates it.
	ReviewAction policy.PolicyAction `json:"review_action,omitempty"`

	// BreakingAction is the breaking-change policy decision; empty when
	// no breaking changes were detected.
	BreakingAction policy.PolicyAction `json:"breaking_action,omitempty"`

	// Violations lists blocking policy violations, one per breaking
	// change when the policy action is error.
	Violations []string `json:"violations,omitempty"`
}

// NotificationEntry is one delivery attempt in the record's
// notification log.
type NotificationEntry struct {
	Team      string    `json:"team"`
	Type      string    `json:"type"`
	Delivered bool      `json:"delivered"`
	SentAt    time.Time `json:"sent_at"`
	Error     string    `json:"error,omitempty"`
}

// ChangeRecord ties a schema change to everything the engine decided
// about it: detected breaking changes, impact, policy outcome, linked
// review, and the notification log. Created once by TrackSchemaChange
// and updated only by the tracker as the linked review resolves.
type ChangeRecord struct {
	Change schema.Change `json:"change"`

	// BreakingChanges are the detector findings; empty for compatible
	// modifications and for additions.
	BreakingChanges []breaking.BreakingChange `json:"breaking_changes,omitempty"`

	// MigrationRequired is forced true when breaking changes exist.
	MigrationRequired bool `json:"migration_required"`

	// ReviewRequired is forced true when breaking changes exist, and
	// also set by impact level or team settings.
	ReviewRequired bool `json:"review_required"`

	// ImpactLevel is the analyzer's overall assessment.
	ImpactLevel impact.ImpactLevel `json:"impact_level"`

	// AffectedTeams merges the submitter's declared teams with the
	// analyzer's discoveries.
	AffectedTeams []string `json:"affected_teams,omitempty"`

	// Policy summarizes policy evaluation; nil when tracking was blocked
	// before evaluation could run.
	Policy *PolicyOutcome `json:"policy,omitempty"`

	// ReviewID links the review gating this change, when one exists.
	ReviewID string `json:"review_id,omitempty"`

	// ReviewStatus mirrors the linked review's status as of the last
	// ResolveReview call.
	ReviewStatus review.Status `json:"review_status,omitempty"`

	// Notifications logs the per-team delivery attempts.
	Notifications []NotificationEntry `json:"notifications,omitempty"`

	TrackedAt time.Time `json:"tracked_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blocked reports whether the breaking-change policy rejected the
// change outright. Blocked changes are not reviewable; they must be
// resubmitted with the violations fixed.
func (r *ChangeRecord) Blocked() bool {
	return r.Policy != nil && r.Policy.BreakingAction == policy.ActionError
}
