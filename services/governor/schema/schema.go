// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package schema defines the core schema change entity shared by the
// governance engine packages.
package schema

import (
	"fmt"
	"time"

	"github.com/AleutianAI/strait/pkg/validation"
)

// ChangeKind classifies how a schema is being altered.
type ChangeKind string

const (
	// KindAddition introduces a new schema or new fields.
	KindAddition ChangeKind = "addition"

	// KindModification alters an existing schema and is the only kind
	// routed through breaking-change detection.
	KindModification ChangeKind = "modification"

	// KindRemoval deletes a schema or fields from it.
	KindRemoval ChangeKind = "removal"
)

// ParseChangeKind validates a wire-level change kind string.
func ParseChangeKind(s string) (ChangeKind, error) {
	switch ChangeKind(s) {
	case KindAddition, KindModification, KindRemoval:
		return ChangeKind(s), nil
	default:
		return "", fmt.Errorf("unknown change kind %q (expected addition, modification, or removal)", s)
	}
}

// Change describes one proposed schema change. It is created once per
// submission and never mutated afterwards; downstream state lives on the
// tracker's change record.
type Change struct {
	// ID is the engine-assigned change identifier (UUID).
	ID string `json:"id"`

	// Target is the schema ref being changed ("host/owner/name" or a
	// service-style short name).
	Target string `json:"target"`

	// Version is the schema version being proposed, when the target is
	// versioned ("v2.0.0"). Semver with the leading "v".
	Version string `json:"version,omitempty"`

	// Kind is the change classification.
	Kind ChangeKind `json:"kind"`

	// Author is the user proposing the change.
	Author string `json:"author"`

	// Repository is the repo the change originates from.
	Repository string `json:"repository"`

	// OwningTeam owns the target schema.
	OwningTeam string `json:"owning_team"`

	// AffectedTeams lists teams the submitter already knows are affected.
	// The impact analyzer extends this with discovered teams.
	AffectedTeams []string `json:"affected_teams,omitempty"`

	// Breaking is the submitter's declaration. The detector can force it
	// to true; it is never lowered.
	Breaking bool `json:"breaking"`

	// Description is the free-form summary of the change.
	Description string `json:"description,omitempty"`

	// CreatedAt is when the change entered the engine (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the identifier fields against the shared validation
// rules. Wire-level shape validation happens at the API edge; this covers
// what must hold before a change is persisted or used as a store key.
func (c *Change) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("change id is required")
	}
	if err := validation.ValidateSchemaRef(c.Target); err != nil {
		return err
	}
	if c.Version != "" {
		if err := validation.ValidateVersion(c.Version); err != nil {
			return err
		}
	}
	if _, err := ParseChangeKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Author == "" {
		return fmt.Errorf("author is required")
	}
	if err := validation.ValidateSchemaRef(c.Repository); err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	if err := validation.ValidateName(c.OwningTeam); err != nil {
		return fmt.Errorf("owning team: %w", err)
	}
	for _, team := range c.AffectedTeams {
		if err := validation.ValidateName(team); err != nil {
			return fmt.Errorf("affected team: %w", err)
		}
	}
	return nil
}
