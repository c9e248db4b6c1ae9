// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package teams resolves team references to current members.
//
// # Description
//
// The governance engine never hardcodes team membership: reviewer policies
// name teams ("@platform"), and this package answers who is currently in
// a team and which members qualify as reviewers. Membership is resolved
// live wherever authorization matters, so people added to a team after a
// review was created can still approve it.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package teams

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/strait/pkg/validation"
)

// Role is a member's role within a team.
type Role string

const (
	// RoleMember is a regular team member without approval rights.
	RoleMember Role = "member"

	// RoleMaintainer can approve reviews on behalf of the team.
	RoleMaintainer Role = "maintainer"

	// RoleAdmin can approve reviews and administer the team.
	RoleAdmin Role = "admin"
)

// ParseRole validates a wire-level role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMember, RoleMaintainer, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q (expected member, maintainer, or admin)", s)
	}
}

// Member is one user's membership in a team.
type Member struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// CanApprove reports whether the member's role carries approval rights.
func (m Member) CanApprove() bool {
	return m.Role == RoleMaintainer || m.Role == RoleAdmin
}

// Directory resolves team names to current members.
type Directory interface {
	// ResolveTeam returns the team's current members, or ErrTeamNotFound.
	ResolveTeam(ctx context.Context, name string) ([]Member, error)
}

// QualifiedReviewers filters members down to usernames with approval
// rights (maintainer or admin).
func QualifiedReviewers(members []Member) []string {
	var names []string
	for _, m := range members {
		if m.CanApprove() {
			names = append(names, m.Username)
		}
	}
	return names
}

// ReviewerKind discriminates the Reviewer variant.
type ReviewerKind string

const (
	// ReviewerIndividual names a single user.
	ReviewerIndividual ReviewerKind = "individual"

	// ReviewerTeam references a team whose qualifying members may review.
	ReviewerTeam ReviewerKind = "team"
)

// Reviewer is a tagged reference to either an individual or a team.
//
// The "@" prefix convention ("@platform" means the platform team) exists
// only at the edges: ParseReviewer converts wire strings to typed values,
// and String converts back for display.
type Reviewer struct {
	Kind ReviewerKind `json:"kind"`
	Name string       `json:"name"`
}

// Individual builds an individual reviewer reference.
func Individual(username string) Reviewer {
	return Reviewer{Kind: ReviewerIndividual, Name: username}
}

// TeamRef builds a team reviewer reference.
func TeamRef(team string) Reviewer {
	return Reviewer{Kind: ReviewerTeam, Name: team}
}

// ParseReviewer converts a wire string to a typed Reviewer. Strings with
// a leading "@" are team references; everything else is an individual.
func ParseReviewer(s string) (Reviewer, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reviewer{}, fmt.Errorf("reviewer cannot be empty")
	}
	if name, ok := strings.CutPrefix(s, "@"); ok {
		if err := validation.ValidateName(name); err != nil {
			return Reviewer{}, fmt.Errorf("team reviewer: %w", err)
		}
		return TeamRef(name), nil
	}
	return Individual(s), nil
}

// ParseReviewers converts a list of wire strings, failing on the first
// invalid entry.
func ParseReviewers(raw []string) ([]Reviewer, error) {
	reviewers := make([]Reviewer, 0, len(raw))
	for _, s := range raw {
		r, err := ParseReviewer(s)
		if err != nil {
			return nil, err
		}
		reviewers = append(reviewers, r)
	}
	return reviewers, nil
}

// String renders the wire form: "@name" for teams, "name" for individuals.
func (r Reviewer) String() string {
	if r.Kind == ReviewerTeam {
		return "@" + r.Name
	}
	return r.Name
}
