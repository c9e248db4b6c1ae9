// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import (
	"fmt"
	"time"

	"github.com/AleutianAI/strait/services/governor/depgraph"
)

// ImpactLevel rates how strongly a schema change affects a consumer.
type ImpactLevel string

const (
	LevelNone     ImpactLevel = "none"
	LevelLow      ImpactLevel = "low"
	LevelMedium   ImpactLevel = "medium"
	LevelHigh     ImpactLevel = "high"
	LevelCritical ImpactLevel = "critical"
)

// ParseImpactLevel validates a wire-level impact level string.
func ParseImpactLevel(s string) (ImpactLevel, error) {
	switch ImpactLevel(s) {
	case LevelNone, LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return ImpactLevel(s), nil
	default:
		return "", fmt.Errorf("unknown impact level %q (expected none, low, medium, high, or critical)", s)
	}
}

// Rank returns the numeric ordering of the level, none=0 through
// critical=4, for severity sorting and team-impact scoring.
func (l ImpactLevel) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

// ContactPriority tells the notification layer how quickly a team needs
// to hear about a change.
type ContactPriority string

const (
	ContactUrgent ContactPriority = "urgent"
	ContactNormal ContactPriority = "normal"
)

// AffectedService is one consumer with its computed impact level.
type AffectedService struct {
	// Service is the consuming service name.
	Service string `json:"service"`

	// Repository is the consumer's source repository.
	Repository string `json:"repository,omitempty"`

	// Team owns the consuming service.
	Team string `json:"team"`

	// Strength is the registered coupling tier of the dependency.
	Strength depgraph.DependencyStrength `json:"strength"`

	// Kind is the dependency kind (direct or transitive).
	Kind depgraph.DependencyKind `json:"kind"`

	// Level is the computed impact on this service.
	Level ImpactLevel `json:"level"`
}

// TeamImpact aggregates affected services by owning team. Level is the
// maximum severity observed across the team's services.
type TeamImpact struct {
	Team            string          `json:"team"`
	Level           ImpactLevel     `json:"level"`
	Services        []string        `json:"services"`
	RequiredActions []string        `json:"required_actions"`
	ContactPriority ContactPriority `json:"contact_priority"`
}

// Strategy is the migration approach chosen for a change.
type Strategy string

const (
	// StrategyImmediate migrates all consumers in one parallel window.
	StrategyImmediate Strategy = "immediate"

	// StrategyPhased migrates consumers in sequential impact tiers.
	StrategyPhased Strategy = "phased"

	// StrategyCoordinated schedules one migration window per owning
	// team, agreed with each team.
	StrategyCoordinated Strategy = "coordinated"
)

// MigrationPhase is one step of a migration plan.
type MigrationPhase struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Services    []string `json:"services"`

	// Parallel marks phases whose services can migrate concurrently.
	Parallel bool `json:"parallel,omitempty"`
}

// RiskAssessment is the weighted risk estimate for a change.
type RiskAssessment struct {
	// Score is the weighted risk in [0.0, 1.0].
	Score float64 `json:"score"`

	// Level maps the score to a severity tier.
	Level ImpactLevel `json:"level"`

	// Factors lists the score contributions in human-readable form.
	Factors []string `json:"factors,omitempty"`
}

// MigrationPlan is the generated rollout plan for one schema change.
// Plans are generated per change and stored for later reference.
type MigrationPlan struct {
	ChangeID string   `json:"change_id"`
	Target   string   `json:"target"`
	Strategy Strategy `json:"strategy"`

	// Phases are executed in order; services within a parallel phase
	// migrate concurrently.
	Phases []MigrationPhase `json:"phases"`

	// MigrationOrder lists consumer services in descending priority:
	// strength score plus team-impact score, ties in registration order.
	MigrationOrder []string `json:"migration_order"`

	RollbackPlan      []string `json:"rollback_plan"`
	TestingPlan       []string `json:"testing_plan"`
	CommunicationPlan []string `json:"communication_plan"`
	Timeline          string   `json:"timeline"`

	Risk RiskAssessment `json:"risk"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Assessment is the full impact analysis result for one schema change.
type Assessment struct {
	// Target is the schema target analyzed.
	Target string `json:"target"`

	// Level is the overall impact: the maximum level across affected
	// services, or none when the target has no consumers.
	Level ImpactLevel `json:"level"`

	// BreakingCount is the number of breaking changes analyzed against.
	BreakingCount int `json:"breaking_count"`

	// AffectedServices is sorted by descending severity.
	AffectedServices []AffectedService `json:"affected_services"`

	// TeamImpacts is sorted by descending severity, then team name.
	TeamImpacts []TeamImpact `json:"team_impacts"`

	// AffectedTeams lists distinct team names in TeamImpacts order.
	AffectedTeams []string `json:"affected_teams"`

	// Complexity is the graph's migration complexity score.
	Complexity int `json:"complexity_score"`

	// Risk is the weighted risk estimate.
	Risk RiskAssessment `json:"risk"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// RiskWeights defines the weights for risk score calculation.
type RiskWeights struct {
	Breaking    float64 // Weight for breaking changes (default 0.40)
	BlastRadius float64 // Weight for affected-service count (default 0.30)
	Coupling    float64 // Weight for critical-strength consumers (default 0.20)
	TeamSpread  float64 // Weight for cross-team coordination (default 0.10)
}

// DefaultRiskWeights returns the default risk calculation weights.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		Breaking:    0.40,
		BlastRadius: 0.30,
		Coupling:    0.20,
		TeamSpread:  0.10,
	}
}
