// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import (
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/strait/services/governor/depgraph"
)

// BuildMigrationPlan generates the rollout plan for an assessed change.
//
// # Description
//
// Strategy selection: coordinated when any critical-strength dependency
// exists, or when breaking changes meet a high or critical team impact;
// otherwise phased when the target has more than five direct dependents
// or more than two affected services; otherwise immediate.
//
// # Inputs
//
//   - changeID: The change the plan belongs to.
//   - g: The dependency graph the assessment was computed from.
//   - as: The impact assessment for the change.
//
// # Outputs
//
//   - *MigrationPlan: Phases, ordering, rollback, testing, communication.
//   - error: ErrNilGraph or ErrNilAssessment.
func (a *Analyzer) BuildMigrationPlan(changeID string, g *depgraph.DependencyGraph, as *Assessment) (*MigrationPlan, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if as == nil {
		return nil, ErrNilAssessment
	}

	strategy := selectStrategy(g, as)
	phases := buildPhases(strategy, as)

	plan := &MigrationPlan{
		ChangeID:          changeID,
		Target:            g.Target,
		Strategy:          strategy,
		Phases:            phases,
		MigrationOrder:    migrationOrder(g, as.TeamImpacts),
		RollbackPlan:      rollbackPlan(g.Target, as),
		TestingPlan:       testingPlan(phases),
		CommunicationPlan: communicationPlan(as.TeamImpacts),
		Timeline:          timeline(strategy, phases),
		Risk:              as.Risk,
		GeneratedAt:       time.Now().UTC(),
	}

	a.log.Debug("migration plan generated",
		"change_id", changeID,
		"target", g.Target,
		"strategy", string(strategy),
		"phases", len(phases))
	return plan, nil
}

func selectStrategy(g *depgraph.DependencyGraph, as *Assessment) Strategy {
	urgentTeam := false
	for _, ti := range as.TeamImpacts {
		if ti.Level == LevelCritical || ti.Level == LevelHigh {
			urgentTeam = true
			break
		}
	}

	switch {
	case g.Metadata.CriticalDirect > 0 || (as.BreakingCount > 0 && urgentTeam):
		return StrategyCoordinated
	case len(g.Direct) > 5 || len(as.AffectedServices) > 2:
		return StrategyPhased
	default:
		return StrategyImmediate
	}
}

// buildPhases constructs ordered phases for the chosen strategy. Phased
// plans tier consumers by impact level (critical, high, remaining);
// coordinated plans take one team at a time in team-impact order;
// immediate plans migrate everything in one parallel window.
func buildPhases(strategy Strategy, as *Assessment) []MigrationPhase {
	switch strategy {
	case StrategyImmediate:
		if len(as.AffectedServices) == 0 {
			return nil
		}
		all := make([]string, 0, len(as.AffectedServices))
		for _, svc := range as.AffectedServices {
			all = append(all, svc.Service)
		}
		return []MigrationPhase{{
			Name:        "migrate",
			Description: "migrate all consumers in one parallel window",
			Services:    all,
			Parallel:    true,
		}}

	case StrategyPhased:
		var crit, high, rest []string
		for _, svc := range as.AffectedServices {
			switch svc.Level {
			case LevelCritical:
				crit = append(crit, svc.Service)
			case LevelHigh:
				high = append(high, svc.Service)
			default:
				rest = append(rest, svc.Service)
			}
		}
		phases := make([]MigrationPhase, 0, 3)
		if len(crit) > 0 {
			phases = append(phases, MigrationPhase{
				Name:        "critical-consumers",
				Description: "migrate critical-impact consumers first",
				Services:    crit,
			})
		}
		if len(high) > 0 {
			phases = append(phases, MigrationPhase{
				Name:        "high-impact-consumers",
				Description: "migrate high-impact consumers",
				Services:    high,
			})
		}
		if len(rest) > 0 {
			phases = append(phases, MigrationPhase{
				Name:        "remaining-consumers",
				Description: "migrate remaining consumers",
				Services:    rest,
			})
		}
		return phases

	case StrategyCoordinated:
		byTeam := make(map[string][]string)
		for _, svc := range as.AffectedServices {
			byTeam[svc.Team] = append(byTeam[svc.Team], svc.Service)
		}
		phases := make([]MigrationPhase, 0, len(as.TeamImpacts))
		for _, ti := range as.TeamImpacts {
			services := byTeam[ti.Team]
			if len(services) == 0 {
				continue
			}
			phases = append(phases, MigrationPhase{
				Name:        "team-" + ti.Team,
				Description: fmt.Sprintf("coordinate migration with team %s (%s priority)", ti.Team, ti.ContactPriority),
				Services:    services,
			})
		}
		return phases
	}
	return nil
}

// migrationOrder sorts consumers by descending strength score plus
// team-impact score. The sort is stable so ties keep registration order.
func migrationOrder(g *depgraph.DependencyGraph, teamImpacts []TeamImpact) []string {
	teamRank := make(map[string]int, len(teamImpacts))
	for _, ti := range teamImpacts {
		teamRank[ti.Team] = ti.Level.Rank()
	}

	deps := make([]depgraph.ServiceDependency, 0, len(g.Direct)+len(g.Transitive))
	deps = append(deps, g.Direct...)
	deps = append(deps, g.Transitive...)

	sort.SliceStable(deps, func(i, j int) bool {
		si := deps[i].Strength.Rank() + teamRank[deps[i].Team]
		sj := deps[j].Strength.Rank() + teamRank[deps[j].Team]
		return si > sj
	})

	order := make([]string, len(deps))
	for i, d := range deps {
		order[i] = d.Service
	}
	return order
}

func rollbackPlan(target string, as *Assessment) []string {
	steps := []string{
		fmt.Sprintf("repoint %s to the last published baseline", target),
		"halt in-flight consumer migrations",
	}
	if as.BreakingCount > 0 {
		steps = append(steps, "re-run contract tests against the baseline before resuming traffic")
	}
	steps = append(steps, "notify affected teams that the rollout was reverted")
	return steps
}

func testingPlan(phases []MigrationPhase) []string {
	steps := make([]string, 0, len(phases)+1)
	steps = append(steps, "run schema contract tests before publishing")
	for _, p := range phases {
		steps = append(steps, fmt.Sprintf("verify consumers in phase %q against the new schema", p.Name))
	}
	return steps
}

func communicationPlan(teamImpacts []TeamImpact) []string {
	if len(teamImpacts) == 0 {
		return []string{"no consumer teams to notify"}
	}
	steps := make([]string, 0, len(teamImpacts))
	for _, ti := range teamImpacts {
		steps = append(steps, fmt.Sprintf("notify team %s (%s priority)", ti.Team, ti.ContactPriority))
	}
	return steps
}

func timeline(strategy Strategy, phases []MigrationPhase) string {
	switch strategy {
	case StrategyPhased:
		return fmt.Sprintf("%d sequential phases, one release window each", len(phases))
	case StrategyCoordinated:
		return fmt.Sprintf("%d team windows, scheduled with each owning team", len(phases))
	default:
		return "single release window"
	}
}
