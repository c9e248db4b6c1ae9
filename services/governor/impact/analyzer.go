// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package impact rates the blast radius of a schema change and turns it
// into per-service levels, per-team aggregates, and a migration plan.
package impact

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/depgraph"
)

// Analyzer combines a dependency graph and detected breaking changes
// into an impact assessment.
//
// # Description
//
// Analyzer is pure computation over its inputs: it performs no I/O and
// holds no state beyond the risk weights. Side effects (persistence,
// notification) belong to the change tracker.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
//
// # Example
//
//	analyzer := impact.NewAnalyzer(nil)
//	assessment, err := analyzer.Analyze(ctx, graph, detected)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("impact: %s, risk %.2f\n", assessment.Level, assessment.Risk.Score)
type Analyzer struct {
	weights RiskWeights
	log     *logging.Logger
}

// NewAnalyzer creates an analyzer with default risk weights. A nil
// logger falls back to the process default.
func NewAnalyzer(log *logging.Logger) *Analyzer {
	if log == nil {
		log = logging.Default()
	}
	return &Analyzer{
		weights: DefaultRiskWeights(),
		log:     log,
	}
}

// WithRiskWeights sets custom risk calculation weights. Returns the
// analyzer for chaining.
func (a *Analyzer) WithRiskWeights(w RiskWeights) *Analyzer {
	a.weights = w
	return a
}

// Analyze computes the full impact assessment for a schema change.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - g: The dependency graph of the changed target.
//   - changes: Detected breaking changes; empty for compatible changes.
//
// # Outputs
//
//   - *Assessment: Affected services, team impacts, overall level, risk.
//   - error: ErrNilGraph, or the context error if canceled.
func (a *Analyzer) Analyze(ctx context.Context, g *depgraph.DependencyGraph, changes []breaking.BreakingChange) (*Assessment, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	services := a.IdentifyAffectedServices(g, changes)
	teamImpacts := a.AnalyzeTeamImpacts(services)

	level := LevelNone
	for _, svc := range services {
		if svc.Level.Rank() > level.Rank() {
			level = svc.Level
		}
	}

	teams := make([]string, 0, len(teamImpacts))
	for _, ti := range teamImpacts {
		teams = append(teams, ti.Team)
	}

	as := &Assessment{
		Target:           g.Target,
		Level:            level,
		BreakingCount:    len(changes),
		AffectedServices: services,
		TeamImpacts:      teamImpacts,
		AffectedTeams:    teams,
		Complexity:       g.Metadata.ComplexityScore,
		Risk:             a.calculateRisk(g, services, teamImpacts, len(changes)),
		AnalyzedAt:       time.Now().UTC(),
	}

	a.log.Debug("impact analyzed",
		"target", g.Target,
		"level", string(level),
		"services", len(services),
		"teams", len(teamImpacts),
		"risk", as.Risk.Score)
	return as, nil
}

// IdentifyAffectedServices maps every dependent of the target to an
// impact level.
//
// With breaking changes present, the level follows the coupling tier:
// critical and strong dependencies are rated critical, medium is rated
// high, and everything else medium. Without breaking changes every
// dependent is rated low. The result is sorted by descending severity;
// ties keep registration order.
func (a *Analyzer) IdentifyAffectedServices(g *depgraph.DependencyGraph, changes []breaking.BreakingChange) []AffectedService {
	if g == nil {
		return nil
	}

	deps := make([]depgraph.ServiceDependency, 0, len(g.Direct)+len(g.Transitive))
	deps = append(deps, g.Direct...)
	deps = append(deps, g.Transitive...)

	hasBreaking := len(changes) > 0
	services := make([]AffectedService, 0, len(deps))
	for _, d := range deps {
		level := LevelLow
		if hasBreaking {
			switch d.Strength {
			case depgraph.StrengthCritical, depgraph.StrengthStrong:
				level = LevelCritical
			case depgraph.StrengthMedium:
				level = LevelHigh
			default:
				level = LevelMedium
			}
		}
		services = append(services, AffectedService{
			Service:    d.Service,
			Repository: d.Repository,
			Team:       d.Team,
			Strength:   d.Strength,
			Kind:       d.Kind,
			Level:      level,
		})
	}

	sort.SliceStable(services, func(i, j int) bool {
		return services[i].Level.Rank() > services[j].Level.Rank()
	})
	return services
}

// AnalyzeTeamImpacts groups affected services by owning team.
//
// Each team is rated at the maximum severity observed across its
// services and given required actions plus a contact priority: urgent
// for critical or high impact, normal otherwise. The result is sorted
// by descending severity, then team name.
func (a *Analyzer) AnalyzeTeamImpacts(services []AffectedService) []TeamImpact {
	byTeam := make(map[string]*TeamImpact)
	order := make([]string, 0)

	for _, svc := range services {
		ti, ok := byTeam[svc.Team]
		if !ok {
			ti = &TeamImpact{Team: svc.Team, Level: LevelNone}
			byTeam[svc.Team] = ti
			order = append(order, svc.Team)
		}
		ti.Services = append(ti.Services, svc.Service)
		if svc.Level.Rank() > ti.Level.Rank() {
			ti.Level = svc.Level
		}
	}

	impacts := make([]TeamImpact, 0, len(byTeam))
	for _, team := range order {
		ti := byTeam[team]
		ti.RequiredActions = requiredActions(ti.Level)
		ti.ContactPriority = ContactNormal
		if ti.Level == LevelCritical || ti.Level == LevelHigh {
			ti.ContactPriority = ContactUrgent
		}
		impacts = append(impacts, *ti)
	}

	sort.SliceStable(impacts, func(i, j int) bool {
		if impacts[i].Level.Rank() != impacts[j].Level.Rank() {
			return impacts[i].Level.Rank() > impacts[j].Level.Rank()
		}
		return impacts[i].Team < impacts[j].Team
	})
	return impacts
}

// requiredActions derives the action list for a team impact level.
func requiredActions(level ImpactLevel) []string {
	switch level {
	case LevelCritical:
		return []string{
			"migrate consumers before the schema rolls out",
			"run contract tests against the new schema",
			"agree a rollout window with the schema owner",
		}
	case LevelHigh:
		return []string{
			"migrate consumers before the schema rolls out",
			"run contract tests against the new schema",
		}
	case LevelMedium:
		return []string{
			"review the change for consumer impact",
			"run contract tests against the new schema",
		}
	default:
		return []string{"no action required"}
	}
}

// calculateRisk computes the weighted risk score and level.
func (a *Analyzer) calculateRisk(g *depgraph.DependencyGraph, services []AffectedService, teamImpacts []TeamImpact, breakingCount int) RiskAssessment {
	var score float64
	factors := make([]string, 0, 4)

	// Breaking changes factor (0.0 - 1.0)
	if breakingCount > 0 {
		score += a.weights.Breaking * 1.0
		factors = append(factors, fmt.Sprintf("%d breaking change(s) detected", breakingCount))
	}

	// Blast radius factor (0.0 - 1.0)
	// Scale: 0 consumers = 0.0, 10+ consumers = 1.0
	blastFactor := float64(len(services)) / 10.0
	if blastFactor > 1.0 {
		blastFactor = 1.0
	}
	score += a.weights.BlastRadius * blastFactor
	if len(services) > 0 {
		factors = append(factors, fmt.Sprintf("%d affected service(s)", len(services)))
	}

	// Coupling factor (0.0 - 1.0)
	// Scale by critical-strength consumers: 1 = 0.5, 3+ = 1.0
	if g.Metadata.CriticalDirect > 0 {
		couplingFactor := 0.5 + float64(g.Metadata.CriticalDirect-1)*0.25
		if couplingFactor > 1.0 {
			couplingFactor = 1.0
		}
		score += a.weights.Coupling * couplingFactor
		factors = append(factors, fmt.Sprintf("%d critical-strength consumer(s)", g.Metadata.CriticalDirect))
	}

	// Team spread factor (0.0 - 1.0)
	// Scale: 1 team = 0.0, 4+ teams = 1.0
	if len(teamImpacts) > 1 {
		spreadFactor := float64(len(teamImpacts)-1) / 3.0
		if spreadFactor > 1.0 {
			spreadFactor = 1.0
		}
		score += a.weights.TeamSpread * spreadFactor
		factors = append(factors, fmt.Sprintf("%d teams require coordination", len(teamImpacts)))
	}

	var level ImpactLevel
	switch {
	case score >= 0.7:
		level = LevelCritical
	case score >= 0.5:
		level = LevelHigh
	case score >= 0.3:
		level = LevelMedium
	default:
		level = LevelLow
	}

	return RiskAssessment{Score: score, Level: level, Factors: factors}
}
