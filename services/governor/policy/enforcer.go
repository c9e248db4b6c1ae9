// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy resolves governance configuration and enforces review
// and breaking-change policies.
//
// Enforcement is pure decision logic: results report what must happen
// (allow, warn, error, require_approval) and the callers perform the
// side effects (audit writes, review creation, notification). The only
// I/O on the enforcement path is reading team membership and recorded
// breaking-change approvals.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/schema"
	"github.com/AleutianAI/strait/services/governor/teams"
)

// Enforcer applies the governance configuration to proposed changes.
//
// # Thread Safety
//
// Safe for concurrent use. Config snapshots come from the provider per
// call, so a hot reload between calls is picked up automatically.
type Enforcer struct {
	provider  ConfigProvider
	directory teams.Directory
	approvals ApprovalLookup
	log       *logging.Logger
}

// NewEnforcer wires the enforcer to its collaborators. A nil logger
// falls back to the process default.
func NewEnforcer(provider ConfigProvider, directory teams.Directory, approvals ApprovalLookup, log *logging.Logger) *Enforcer {
	if log == nil {
		log = logging.Default()
	}
	return &Enforcer{
		provider:  provider,
		directory: directory,
		approvals: approvals,
		log:       log,
	}
}

// EnforceReviewPolicy decides whether a change may proceed under the
// applicable review policy.
//
// # Description
//
// The policy resolves by priority: exact repository key, then the
// owning team's override, then the "default" key. A missing policy is a
// *ConfigurationError wrapping ErrPolicyNotFound.
//
// If the policy auto-approves minor changes and the change is not
// breaking, the result is allow. Otherwise each approver is validated
// against the policy's required-reviewer list. An individual entry is
// satisfied by that user; a team entry ("@payments") is satisfied by
// any current member with the maintainer or admin role, resolved live
// through the team directory. The change is allowed once the valid
// approver count meets the policy's approval count; otherwise the
// result is require_approval with the outstanding reviewer entries.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - change: The proposed change.
//   - approvers: Usernames that have approved the change so far.
//
// # Outputs
//
//   - *PolicyResult: The decision. Never nil on nil error.
//   - error: *ConfigurationError if no policy resolves; directory
//     failures propagate unchanged.
func (e *Enforcer) EnforceReviewPolicy(ctx context.Context, change *schema.Change, approvers []string) (*PolicyResult, error) {
	if change == nil {
		return nil, fmt.Errorf("change is nil")
	}
	cfg := e.provider.Current()

	pol, ref, err := resolveReviewPolicy(cfg, change.Repository, change.OwningTeam)
	if err != nil {
		return nil, err
	}

	if pol.AutoApproveMinor && !change.Breaking {
		e.log.Debug("review policy auto-approved non-breaking change",
			"change_id", change.ID,
			"policy", ref)
		return &PolicyResult{
			Action: ActionAllow,
			Reason: fmt.Sprintf("auto-approved: non-breaking change under policy %q", ref),
		}, nil
	}

	required, err := teams.ParseReviewers(pol.RequiredReviewers)
	if err != nil {
		return nil, &ConfigurationError{Reference: ref, Err: err}
	}

	valid, outstanding, err := e.matchApprovers(ctx, required, approvers)
	if err != nil {
		return nil, err
	}

	result := &PolicyResult{
		RequiredApprovers: pol.RequiredReviewers,
		ActualApprovers:   valid,
	}
	if len(valid) >= pol.ApprovalCount {
		result.Action = ActionAllow
		result.HasApproval = pol.ApprovalCount > 0
		result.Reason = fmt.Sprintf("approval requirement met under policy %q (%d of %d)", ref, len(valid), pol.ApprovalCount)
	} else {
		result.Action = ActionRequireApproval
		result.Outstanding = outstanding
		result.Reason = fmt.Sprintf("policy %q requires %d approval(s), have %d", ref, pol.ApprovalCount, len(valid))
	}

	e.log.Debug("review policy enforced",
		"change_id", change.ID,
		"policy", ref,
		"action", string(result.Action),
		"valid_approvers", len(valid))
	return result, nil
}

// EnforceBreakingChangePolicy decides what happens to detected breaking
// changes under a repository's breaking-change policy.
//
// # Description
//
// No breaking changes is always allow. Otherwise the policy value
// dispatches the result: allow passes with a note for the audit trail,
// warn passes but flags, error blocks with one violation per finding,
// and require_approval consults the approval store keyed by
// (repository, location) and blocks until every finding's location has
// a recorded approval.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - repository: The repository the changes belong to.
//   - changes: Detected breaking changes.
//   - policyValue: Explicit policy action; empty resolves from the
//     configuration (repository entry, then the global default).
//
// # Outputs
//
//   - *PolicyResult: The decision. Never nil on nil error.
//   - error: *GovernanceError wrapping ErrUnknownPolicyAction for an
//     unrecognized policy value; approval store failures propagate.
func (e *Enforcer) EnforceBreakingChangePolicy(ctx context.Context, repository string, changes []breaking.BreakingChange, policyValue string) (*PolicyResult, error) {
	if len(changes) == 0 {
		return &PolicyResult{
			Action: ActionAllow,
			Reason: "no breaking changes detected",
		}, nil
	}

	if policyValue == "" {
		cfg := e.provider.Current()
		if v, ok := cfg.BreakingChangePolicies[repository]; ok {
			policyValue = v
		} else {
			policyValue = cfg.GlobalSettings.DefaultBreakingChangePolicy
		}
	}

	action, err := ParsePolicyAction(policyValue)
	if err != nil {
		return nil, &GovernanceError{Action: policyValue, Err: err}
	}

	result, err := e.applyBreakingAction(ctx, action, repository, changes)
	if err != nil {
		return nil, err
	}

	e.log.Debug("breaking-change policy enforced",
		"repository", repository,
		"policy", string(action),
		"action", string(result.Action),
		"findings", len(changes))
	return result, nil
}

func (e *Enforcer) applyBreakingAction(ctx context.Context, action PolicyAction, repository string, changes []breaking.BreakingChange) (*PolicyResult, error) {
	switch action {
	case ActionAllow:
		return &PolicyResult{
			Action: ActionAllow,
			Reason: fmt.Sprintf("repository policy allows breaking changes; %d finding(s) recorded for audit", len(changes)),
		}, nil

	case ActionWarn:
		return &PolicyResult{
			Action: ActionWarn,
			Reason: fmt.Sprintf("repository policy warns on breaking changes; %d finding(s) flagged", len(changes)),
		}, nil

	case ActionError:
		violations := make([]string, 0, len(changes))
		for _, c := range changes {
			violations = append(violations, fmt.Sprintf("%s at %s: %s", c.Type, c.Location, c.Description))
		}
		return &PolicyResult{
			Action:     ActionError,
			Reason:     "repository policy forbids breaking changes",
			Violations: violations,
		}, nil

	case ActionRequireApproval:
		if e.approvals == nil {
			return nil, fmt.Errorf("approval store not configured")
		}
		var missing []string
		checked := make(map[string]bool, len(changes))
		for _, c := range changes {
			if checked[c.Location] {
				continue
			}
			checked[c.Location] = true
			has, err := e.approvals.HasBreakingApproval(ctx, repository, c.Location)
			if err != nil {
				return nil, err
			}
			if !has {
				missing = append(missing, c.Location)
			}
		}
		if len(missing) == 0 {
			return &PolicyResult{
				Action:      ActionAllow,
				HasApproval: true,
				Reason:      "all breaking changes have recorded approvals",
			}, nil
		}
		violations := make([]string, 0, len(missing))
		for _, loc := range missing {
			violations = append(violations, fmt.Sprintf("no approval recorded for %s", loc))
		}
		return &PolicyResult{
			Action:     ActionRequireApproval,
			Reason:     fmt.Sprintf("%d of %d breaking-change location(s) lack approval", len(missing), len(checked)),
			Violations: violations,
		}, nil
	}
	return nil, &GovernanceError{Action: string(action), Err: ErrUnknownPolicyAction}
}

// resolveReviewPolicy picks the applicable review policy by priority:
// exact repository, owning team override, then "default".
func resolveReviewPolicy(cfg *Config, repository, owningTeam string) (ReviewPolicy, string, error) {
	if pol, ok := cfg.ReviewPolicies[repository]; ok {
		return pol, repository, nil
	}
	if override, ok := cfg.TeamOverrides[owningTeam]; ok {
		return override.ReviewPolicy, "team:" + owningTeam, nil
	}
	if pol, ok := cfg.ReviewPolicies[DefaultPolicyKey]; ok {
		return pol, DefaultPolicyKey, nil
	}
	return ReviewPolicy{}, "", &ConfigurationError{Reference: repository, Err: ErrPolicyNotFound}
}

// matchApprovers validates approvers against the required-reviewer
// entries and reports which entries remain unsatisfied.
//
// Team membership resolves live: a user added to a referenced team
// after the change was proposed still validates. A team reference that
// no longer resolves is logged and left outstanding rather than failing
// the whole decision.
func (e *Enforcer) matchApprovers(ctx context.Context, required []teams.Reviewer, approvers []string) (valid []string, outstanding []string, err error) {
	qualified := make(map[string]map[string]bool)
	for _, r := range required {
		if r.Kind != teams.ReviewerTeam {
			continue
		}
		if _, done := qualified[r.Name]; done {
			continue
		}
		members, err := e.directory.ResolveTeam(ctx, r.Name)
		if err != nil {
			if errors.Is(err, teams.ErrTeamNotFound) {
				e.log.Warn("review policy references unknown team",
					"team", r.Name)
				qualified[r.Name] = map[string]bool{}
				continue
			}
			return nil, nil, err
		}
		set := make(map[string]bool)
		for _, name := range teams.QualifiedReviewers(members) {
			set[name] = true
		}
		qualified[r.Name] = set
	}

	matches := func(approver string) bool {
		for _, r := range required {
			switch r.Kind {
			case teams.ReviewerIndividual:
				if approver == r.Name {
					return true
				}
			case teams.ReviewerTeam:
				if qualified[r.Name][approver] {
					return true
				}
			}
		}
		return false
	}

	seen := make(map[string]bool, len(approvers))
	for _, approver := range approvers {
		if seen[approver] {
			continue
		}
		seen[approver] = true
		if matches(approver) {
			valid = append(valid, approver)
		}
	}

	for _, r := range required {
		satisfied := false
		for _, v := range valid {
			if r.Kind == teams.ReviewerIndividual && v == r.Name {
				satisfied = true
				break
			}
			if r.Kind == teams.ReviewerTeam && qualified[r.Name][v] {
				satisfied = true
				break
			}
		}
		if !satisfied {
			outstanding = append(outstanding, r.String())
		}
	}
	return valid, outstanding, nil
}
