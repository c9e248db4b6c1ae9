// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit records governance decisions for compliance review.
//
// # Description
//
// Every decision the engine makes (tracking a change, enforcing a
// policy, recording a breaking-change approval, resolving a review)
// leaves an append-only Record. The audit log is a compliance artifact:
// writes are synchronous and their failures propagate to the caller, so
// a decision whose audit record cannot be persisted fails closed rather
// than shipping ungoverned.
package audit

import (
	"time"
)

// Event types, in "category.action" form for filtering and alerting.
const (
	// EventChangeTracked records a schema change entering the engine.
	EventChangeTracked = "change.tracked"

	// EventPolicyDecision records a review or breaking-change policy
	// evaluation.
	EventPolicyDecision = "policy.decision"

	// EventApprovalRecorded records a breaking-change approval grant.
	EventApprovalRecorded = "approval.recorded"

	// EventReviewResolved records a review reaching a terminal status.
	EventReviewResolved = "review.resolved"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
)

// Record is one audit log entry.
//
// For compliance reporting, always populate Actor (who made or
// triggered the decision) and ResourceType/ResourceID (what the
// decision concerned); Timestamp defaults to the write time.
type Record struct {
	// ID is the engine-assigned record identifier (UUID).
	ID string `json:"id"`

	// EventType categorizes the record ("category.action").
	EventType string `json:"event_type"`

	// Timestamp is when the event occurred (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Actor is who performed the action. Use "system" for automated
	// decisions.
	Actor string `json:"actor"`

	// Action is the operation attempted ("track", "enforce", "approve",
	// "reject").
	Action string `json:"action"`

	// ResourceType is the entity category ("change", "review",
	// "approval", "policy").
	ResourceType string `json:"resource_type"`

	// ResourceID is the specific entity instance.
	ResourceID string `json:"resource_id,omitempty"`

	// Outcome is the result: success, failure, or blocked.
	Outcome string `json:"outcome"`

	// Metadata holds event-specific detail (policy action taken,
	// violation counts, impact level).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filter selects audit records. Zero fields match everything; set
// fields combine with AND.
type Filter struct {
	// EventTypes limits results to the listed event types.
	EventTypes []string

	// Actor limits results to one actor.
	Actor string

	// ResourceType limits results to one entity category.
	ResourceType string

	// ResourceID limits results to one entity instance.
	ResourceID string

	// Outcome limits results to one outcome value.
	Outcome string

	// Start is the earliest timestamp to include (inclusive).
	Start time.Time

	// End is the latest timestamp to include (exclusive).
	End time.Time

	// Limit caps the number of records returned; zero means no cap.
	Limit int

	// Offset skips records for pagination.
	Offset int
}

// matches reports whether the record passes the filter.
func (f Filter) matches(rec Record) bool {
	if len(f.EventTypes) > 0 {
		ok := false
		for _, t := range f.EventTypes {
			if rec.EventType == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Actor != "" && rec.Actor != f.Actor {
		return false
	}
	if f.ResourceType != "" && rec.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && rec.ResourceID != f.ResourceID {
		return false
	}
	if f.Outcome != "" && rec.Outcome != f.Outcome {
		return false
	}
	if !f.Start.IsZero() && rec.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !rec.Timestamp.Before(f.End) {
		return false
	}
	return true
}
