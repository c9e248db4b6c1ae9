// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import "fmt"

// PolicyAction is the outcome class of a policy decision.
type PolicyAction string

const (
	// ActionAllow permits the change to proceed.
	ActionAllow PolicyAction = "allow"

	// ActionWarn permits the change but flags it; non-blocking.
	ActionWarn PolicyAction = "warn"

	// ActionError blocks the change with one violation per finding.
	ActionError PolicyAction = "error"

	// ActionRequireApproval blocks the change until approvals exist.
	// This is an expected outcome, not an error.
	ActionRequireApproval PolicyAction = "require_approval"
)

// ParsePolicyAction validates a policy action value. Unknown values
// wrap ErrUnknownPolicyAction.
func ParsePolicyAction(s string) (PolicyAction, error) {
	switch PolicyAction(s) {
	case ActionAllow, ActionWarn, ActionError, ActionRequireApproval:
		return PolicyAction(s), nil
	default:
		return "", fmt.Errorf("%w: %q (expected allow, warn, error, or require_approval)", ErrUnknownPolicyAction, s)
	}
}

// Blocking reports whether the action stops the change from proceeding.
func (a PolicyAction) Blocking() bool {
	return a == ActionError || a == ActionRequireApproval
}

// PolicyResult is the outcome of one policy enforcement. It is pure
// function output: never mutated after return, and it carries no side
// effects of its own. Audit recording belongs to the caller.
type PolicyResult struct {
	// Action is the decision.
	Action PolicyAction `json:"action"`

	// Reason explains the decision in human-readable form.
	Reason string `json:"reason"`

	// HasApproval is true when an explicit approval backed the decision.
	HasApproval bool `json:"has_approval"`

	// RequiredApprovers is the policy's reviewer list ("alice",
	// "@payments") when approvals were evaluated.
	RequiredApprovers []string `json:"required_approvers,omitempty"`

	// ActualApprovers lists the approvers that validated against the
	// required-reviewer list.
	ActualApprovers []string `json:"actual_approvers,omitempty"`

	// Outstanding lists required-reviewer entries not yet satisfied.
	Outstanding []string `json:"outstanding_reviewers,omitempty"`

	// Violations lists blocking findings, one entry per violation.
	Violations []string `json:"violations,omitempty"`
}
