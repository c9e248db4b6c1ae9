// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package depgraph

import (
	"fmt"
	"time"

	"github.com/AleutianAI/strait/pkg/validation"
)

// DependencyKind classifies how a service consumes a schema.
type DependencyKind string

const (
	// KindDirect means the service consumes the schema itself.
	KindDirect DependencyKind = "direct"

	// KindTransitive means the dependency was discovered by walking one
	// level past a direct dependent. Never registered explicitly.
	KindTransitive DependencyKind = "transitive"

	// KindOptional means the service degrades gracefully without the
	// schema (feature-flagged or best-effort consumers).
	KindOptional DependencyKind = "optional"
)

// ParseDependencyKind validates a wire-level dependency kind string.
func ParseDependencyKind(s string) (DependencyKind, error) {
	switch DependencyKind(s) {
	case KindDirect, KindTransitive, KindOptional:
		return DependencyKind(s), nil
	default:
		return "", fmt.Errorf("unknown dependency kind %q (expected direct, transitive, or optional)", s)
	}
}

// DependencyStrength is the qualitative coupling tier between a consuming
// service and a schema.
type DependencyStrength string

const (
	StrengthWeak     DependencyStrength = "weak"
	StrengthMedium   DependencyStrength = "medium"
	StrengthStrong   DependencyStrength = "strong"
	StrengthCritical DependencyStrength = "critical"
)

// ParseDependencyStrength validates a wire-level strength string.
func ParseDependencyStrength(s string) (DependencyStrength, error) {
	switch DependencyStrength(s) {
	case StrengthWeak, StrengthMedium, StrengthStrong, StrengthCritical:
		return DependencyStrength(s), nil
	default:
		return "", fmt.Errorf("unknown dependency strength %q (expected weak, medium, strong, or critical)", s)
	}
}

// Rank returns the numeric ordering of the strength tier, weak=1 through
// critical=4. Unknown strengths rank 0 so they sort last in migration
// ordering.
func (s DependencyStrength) Rank() int {
	switch s {
	case StrengthWeak:
		return 1
	case StrengthMedium:
		return 2
	case StrengthStrong:
		return 3
	case StrengthCritical:
		return 4
	default:
		return 0
	}
}

// ServiceDependency is one registered edge: a consuming service depends
// on a schema target. Edges are registered explicitly by collaborators,
// never inferred.
type ServiceDependency struct {
	// Service is the consuming service name.
	Service string `json:"service"`

	// Repository is the consuming service's source repository.
	Repository string `json:"repository"`

	// Kind classifies the consumption (direct, transitive, optional).
	Kind DependencyKind `json:"kind"`

	// Usage describes how the schema is consumed ("serialization",
	// "validation", "storage"). Free-form.
	Usage string `json:"usage,omitempty"`

	// Strength is the coupling tier.
	Strength DependencyStrength `json:"strength"`

	// Team owns the consuming service.
	Team string `json:"team"`
}

// Validate checks the edge fields against the shared validation rules.
func (d ServiceDependency) Validate() error {
	if err := validation.ValidateName(d.Service); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if err := validation.ValidateSchemaRef(d.Repository); err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	if _, err := ParseDependencyKind(string(d.Kind)); err != nil {
		return err
	}
	if _, err := ParseDependencyStrength(string(d.Strength)); err != nil {
		return err
	}
	if err := validation.ValidateName(d.Team); err != nil {
		return fmt.Errorf("team: %w", err)
	}
	return nil
}

// GraphMetadata carries the derived counts and the complexity score for
// a computed dependency graph.
type GraphMetadata struct {
	// AffectedServices is the number of distinct services in the blast
	// radius (direct plus transitive).
	AffectedServices int `json:"affected_services"`

	// CriticalDirect is the number of direct dependents with critical
	// coupling strength.
	CriticalDirect int `json:"critical_direct"`

	// DistinctTeams is the number of distinct owning teams across the
	// blast radius.
	DistinctTeams int `json:"distinct_teams"`

	// ComplexityScore is the migration complexity estimate. See
	// ComplexityScore for the formula.
	ComplexityScore int `json:"complexity_score"`
}

// DependencyGraph is the computed blast radius for one schema target.
// Graphs are recomputed on demand from the registry and never persisted;
// the registry is the source of truth.
type DependencyGraph struct {
	// Target is the schema target the graph was computed for.
	Target string `json:"target"`

	// Direct lists registered direct dependents in registration order.
	Direct []ServiceDependency `json:"direct"`

	// Transitive lists dependents discovered one level past the direct
	// set, strength clamped to weak.
	Transitive []ServiceDependency `json:"transitive,omitempty"`

	// Reverse lists the schemas the target itself consumes, from the
	// backward index.
	Reverse []ServiceDependency `json:"reverse,omitempty"`

	// Matrix is the adjacency view for visualization: node name to the
	// consumer names one hop away.
	Matrix map[string][]string `json:"matrix"`

	// Metadata carries the derived counts and complexity score.
	Metadata GraphMetadata `json:"metadata"`

	// ComputedAt is when the graph was computed (UTC).
	ComputedAt time.Time `json:"computed_at"`
}

// ComplexityScore estimates migration complexity for a schema target.
//
// The formula is fixed for compatibility with downstream tooling that
// consumes the score:
//
//	direct + 0.5*transitive + 2*critical_direct + 0.5*distinct_teams
//
// truncated to an integer.
func ComplexityScore(direct, transitive, criticalDirect, distinctTeams int) int {
	score := float64(direct) +
		0.5*float64(transitive) +
		2*float64(criticalDirect) +
		0.5*float64(distinctTeams)
	return int(score)
}
