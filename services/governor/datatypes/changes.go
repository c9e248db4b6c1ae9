// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the governor
// service API.
//
// This file contains the change-tracking side: tracking submissions,
// dependency registration, policy dry runs, and breaking-change
// approvals. Review action types live in reviews.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/schema"
	"github.com/AleutianAI/strait/services/governor/tracker"
)

// =============================================================================
// Input Bounds
// =============================================================================

const (
	// MaxSchemaPayloadBytes is the maximum size of an inline schema
	// payload on a tracking request. Larger schemas must be diffed by the
	// submitting pipeline, not shipped through the API.
	MaxSchemaPayloadBytes = 1 << 20 // 1MB

	// MaxDescriptionLen is the maximum change description length.
	MaxDescriptionLen = 4096

	// MaxAffectedTeams is the maximum number of submitter-declared
	// affected teams per change.
	MaxAffectedTeams = 64

	// MaxBreakingFindings is the maximum number of findings accepted on a
	// policy dry run.
	MaxBreakingFindings = 256
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// changeValidate is the validator instance for change datatypes.
// Initialized in init() with the schema payload size validator.
var changeValidate *validator.Validate

func init() {
	changeValidate = validator.New()
	_ = changeValidate.RegisterValidation("schemabytes", validateSchemaBytes)
}

// validateSchemaBytes checks byte length (not rune count) so oversized
// payloads are rejected before they are copied around.
func validateSchemaBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxSchemaPayloadBytes
}

// =============================================================================
// Change Tracking
// =============================================================================

// TrackChangeRequest is the body of POST /v1/changes.
//
// # Description
//
// Submits one proposed schema change to the governance pipeline. For
// modifications, CurrentSchema and BaselineSchema carry the two schema
// payloads the breaking-change detector diffs; other kinds leave them
// empty.
//
// # Fields
//
//   - Target: Required. The schema ref being changed, either a
//     "host/owner/name" module-style path or a service-style short name.
//   - Version: Optional. The schema version being proposed, semver with
//     the leading "v".
//   - Kind: Required. "addition", "modification", or "removal".
//   - Author: Optional. Defaults to the request actor (X-Strait-Actor).
//   - Repository: Required. The repository the change originates from.
//   - OwningTeam: Required. The team that owns the target schema.
//   - AffectedTeams: Optional. Teams the submitter already knows are
//     affected; impact analysis extends this with discovered teams.
//   - Breaking: Optional. The submitter's declaration. Detection can raise
//     it; it is never lowered.
//   - Description: Optional. Free-form summary, at most 4096 characters.
//   - CurrentSchema: The proposed schema payload, at most 1MB.
//   - BaselineSchema: The schema payload currently in effect, at most 1MB.
//   - Diff: Optional. A unified diff of the change, at most 1MB. When
//     present, detector findings gain before/after snippets from the
//     hunks covering their locations.
//
// # Validation
//
// Uses go-playground/validator plus the schemabytes custom rule for the
// payload fields. Identifier shape (ref charset, team names) is validated
// again by the domain layer before anything persists.
type TrackChangeRequest struct {
	Target         string   `json:"target" validate:"required"`
	Version        string   `json:"version,omitempty"`
	Kind           string   `json:"kind" validate:"required,oneof=addition modification removal"`
	Author         string   `json:"author,omitempty"`
	Repository     string   `json:"repository" validate:"required"`
	OwningTeam     string   `json:"owning_team" validate:"required"`
	AffectedTeams  []string `json:"affected_teams,omitempty" validate:"max=64,dive,required"`
	Breaking       bool     `json:"breaking"`
	Description    string   `json:"description,omitempty" validate:"max=4096"`
	CurrentSchema  string   `json:"current_schema,omitempty" validate:"schemabytes"`
	BaselineSchema string   `json:"baseline_schema,omitempty" validate:"schemabytes"`
	Diff           string   `json:"diff,omitempty" validate:"schemabytes"`
}

// Validate validates the TrackChangeRequest fields.
func (r *TrackChangeRequest) Validate() error {
	return changeValidate.Struct(r)
}

// Submission converts the request into a tracker submission. The actor is
// used as the author when the request does not name one; the tracker
// assigns the change ID and timestamp.
func (r *TrackChangeRequest) Submission(actor string) tracker.Submission {
	author := r.Author
	if author == "" {
		author = actor
	}
	return tracker.Submission{
		Change: schema.Change{
			Target:        r.Target,
			Version:       r.Version,
			Kind:          schema.ChangeKind(r.Kind),
			Author:        author,
			Repository:    r.Repository,
			OwningTeam:    r.OwningTeam,
			AffectedTeams: r.AffectedTeams,
			Breaking:      r.Breaking,
			Description:   r.Description,
		},
		Current:  r.CurrentSchema,
		Baseline: r.BaselineSchema,
		Diff:     r.Diff,
	}
}

// =============================================================================
// Dependency Registration
// =============================================================================

// RegisterDependencyRequest is the body of POST /v1/dependencies.
//
// # Fields
//
//   - Target: Required. The schema ref being consumed.
//   - Service: Required. The consuming service name.
//   - Repository: Required. The consuming service's source repository.
//   - Kind: Required. "direct" or "optional"; transitive edges are derived
//     during graph computation and cannot be registered.
//   - Usage: Optional. Free-form consumption note ("serialization").
//   - Strength: Required. "weak", "medium", "strong", or "critical".
//   - Team: Required. The team owning the consuming service.
type RegisterDependencyRequest struct {
	Target     string `json:"target" validate:"required"`
	Service    string `json:"service" validate:"required"`
	Repository string `json:"repository" validate:"required"`
	Kind       string `json:"kind" validate:"required,oneof=direct optional"`
	Usage      string `json:"usage,omitempty" validate:"max=256"`
	Strength   string `json:"strength" validate:"required,oneof=weak medium strong critical"`
	Team       string `json:"team" validate:"required"`
}

// Validate validates the RegisterDependencyRequest fields.
func (r *RegisterDependencyRequest) Validate() error {
	return changeValidate.Struct(r)
}

// Edge converts the request into a registry edge.
func (r *RegisterDependencyRequest) Edge() depgraph.ServiceDependency {
	return depgraph.ServiceDependency{
		Service:    r.Service,
		Repository: r.Repository,
		Kind:       depgraph.DependencyKind(r.Kind),
		Usage:      r.Usage,
		Strength:   depgraph.DependencyStrength(r.Strength),
		Team:       r.Team,
	}
}

// =============================================================================
// Policy Dry Run
// =============================================================================

// BreakingFinding is one hypothetical detector finding supplied on a
// policy dry run.
type BreakingFinding struct {
	Type        string `json:"type" validate:"required"`
	Description string `json:"description,omitempty" validate:"max=1024"`
	Location    string `json:"location" validate:"required"`
	Impact      string `json:"impact" validate:"required,oneof=low medium high critical"`
}

// PolicyCheckRequest is the body of POST /v1/policies/check.
//
// # Description
//
// Evaluates the review policy (and, when findings are supplied, the
// breaking-change policy) for a hypothetical change without tracking
// anything. CI pipelines use this to predict whether a pull request will
// clear governance before it merges.
//
// # Fields
//
//   - Repository: Required. Resolves the policy (exact key, then the
//     owning team's override, then "default").
//   - OwningTeam: Required. The team that owns the target schema.
//   - Target: Required. The schema ref under change.
//   - Kind: Required. "addition", "modification", or "removal".
//   - Breaking: Whether the change is declared breaking.
//   - Approvers: Usernames that have approved so far; validated against
//     the policy's required-reviewer list.
//   - Findings: Optional detector findings to dry-run the repository's
//     breaking-change policy against.
type PolicyCheckRequest struct {
	Repository string            `json:"repository" validate:"required"`
	OwningTeam string            `json:"owning_team" validate:"required"`
	Target     string            `json:"target" validate:"required"`
	Kind       string            `json:"kind" validate:"required,oneof=addition modification removal"`
	Breaking   bool              `json:"breaking"`
	Approvers  []string          `json:"approvers,omitempty" validate:"max=64,dive,required"`
	Findings   []BreakingFinding `json:"findings,omitempty" validate:"max=256,dive"`
}

// Validate validates the PolicyCheckRequest fields.
func (r *PolicyCheckRequest) Validate() error {
	return changeValidate.Struct(r)
}

// Change builds the hypothetical change the enforcer evaluates. The ID
// marks the change as a dry run in enforcer debug logs.
func (r *PolicyCheckRequest) Change() *schema.Change {
	return &schema.Change{
		ID:         "dry-run",
		Target:     r.Target,
		Kind:       schema.ChangeKind(r.Kind),
		Repository: r.Repository,
		OwningTeam: r.OwningTeam,
		Breaking:   r.Breaking,
	}
}

// BreakingChanges converts the supplied findings for the breaking-change
// policy evaluation.
func (r *PolicyCheckRequest) BreakingChanges() []breaking.BreakingChange {
	if len(r.Findings) == 0 {
		return nil
	}
	changes := make([]breaking.BreakingChange, 0, len(r.Findings))
	for _, f := range r.Findings {
		changes = append(changes, breaking.BreakingChange{
			Type:        f.Type,
			Description: f.Description,
			Location:    f.Location,
			Impact:      breaking.ImpactTier(f.Impact),
			Repository:  r.Repository,
		})
	}
	return changes
}

// PolicyCheckResponse is the result of a policy dry run. BreakingPolicy
// is nil when the request carried no findings.
type PolicyCheckResponse struct {
	ReviewPolicy   *policy.PolicyResult `json:"review_policy"`
	BreakingPolicy *policy.PolicyResult `json:"breaking_policy,omitempty"`
}

// =============================================================================
// Breaking-Change Approvals
// =============================================================================

// RecordBreakingApprovalRequest is the body of POST /v1/approvals/breaking.
// The approver is the request actor, never a request field, so approvals
// cannot be granted on someone else's behalf.
type RecordBreakingApprovalRequest struct {
	Repository string `json:"repository" validate:"required"`
	Location   string `json:"location" validate:"required"`
	Note       string `json:"note,omitempty" validate:"max=1024"`
}

// Validate validates the RecordBreakingApprovalRequest fields.
func (r *RecordBreakingApprovalRequest) Validate() error {
	return changeValidate.Struct(r)
}

// Approval converts the request into the stored approval record.
func (r *RecordBreakingApprovalRequest) Approval(approver string) policy.BreakingApproval {
	return policy.BreakingApproval{
		Repository: r.Repository,
		Location:   r.Location,
		Approver:   approver,
		Note:       r.Note,
	}
}
