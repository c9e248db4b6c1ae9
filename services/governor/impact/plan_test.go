// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package impact

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/strait/services/governor/depgraph"
)

// plan is a helper running the full analyze-then-plan pipeline.
func plan(t *testing.T, g *depgraph.DependencyGraph, breakingCount int) *MigrationPlan {
	t.Helper()
	a := NewAnalyzer(nil)

	changes := someBreaking()
	if breakingCount == 0 {
		changes = nil
	}
	as, err := a.Analyze(context.Background(), g, changes)
	require.NoError(t, err)

	p, err := a.BuildMigrationPlan("chg-1", g, as)
	require.NoError(t, err)
	return p
}

// TestBuildMigrationPlan_Immediate verifies small compatible changes get
// a single parallel window.
func TestBuildMigrationPlan_Immediate(t *testing.T) {
	g := graphOf("orders", []depgraph.ServiceDependency{
		dep("checkout", "web", depgraph.StrengthStrong),
		dep("billing", "finance", depgraph.StrengthWeak),
	}, nil)

	p := plan(t, g, 0)
	assert.Equal(t, StrategyImmediate, p.Strategy)
	require.Len(t, p.Phases, 1)
	assert.Equal(t, "migrate", p.Phases[0].Name)
	assert.True(t, p.Phases[0].Parallel)
	assert.ElementsMatch(t, []string{"checkout", "billing"}, p.Phases[0].Services)
	assert.Equal(t, "single release window", p.Timeline)
}

// TestBuildMigrationPlan_PhasedByAffectedCount verifies more than two
// affected services tips a compatible change into phased.
func TestBuildMigrationPlan_PhasedByAffectedCount(t *testing.T) {
	g := graphOf("orders", []depgraph.ServiceDependency{
		dep("checkout", "web", depgraph.StrengthStrong),
		dep("billing", "finance", depgraph.StrengthWeak),
		dep("analytics", "data", depgraph.StrengthWeak),
	}, nil)

	p := plan(t, g, 0)
	assert.Equal(t, StrategyPhased, p.Strategy)
	// All consumers rate low without breaking changes; one tier.
	require.Len(t, p.Phases, 1)
	assert.Equal(t, "remaining-consumers", p.Phases[0].Name)
}

// TestBuildMigrationPlan_PhasedTiers verifies phased plans tier by
// impact level in order.
func TestBuildMigrationPlan_PhasedTiers(t *testing.T) {
	// Six direct consumers forces phased over coordinated only when no
	// critical strength and no urgent team exists, so keep everything
	// weak and the change compatible.
	direct := make([]depgraph.ServiceDependency, 0, 6)
	for i := 0; i < 6; i++ {
		direct = append(direct, dep(fmt.Sprintf("svc-%d", i), "web", depgraph.StrengthWeak))
	}
	g := graphOf("orders", direct, nil)

	p := plan(t, g, 0)
	assert.Equal(t, StrategyPhased, p.Strategy)
	require.Len(t, p.Phases, 1)
	assert.Len(t, p.Phases[0].Services, 6)
	assert.Contains(t, p.Timeline, "1 sequential phases")
}

// TestBuildMigrationPlan_CoordinatedByCriticalStrength verifies any
// critical-strength dependency forces coordinated, with one phase per
// team in team-impact order.
func TestBuildMigrationPlan_CoordinatedByCriticalStrength(t *testing.T) {
	g := graphOf("orders", []depgraph.ServiceDependency{
		dep("checkout", "web", depgraph.StrengthCritical),
		dep("billing", "finance", depgraph.StrengthMedium),
	}, nil)

	p := plan(t, g, 0)
	assert.Equal(t, StrategyCoordinated, p.Strategy)
	require.Len(t, p.Phases, 2)
	assert.Equal(t, "team-web", p.Phases[0].Name)
	assert.Equal(t, []string{"checkout"}, p.Phases[0].Services)
	assert.Equal(t, "team-finance", p.Phases[1].Name)
}

// TestBuildMigrationPlan_CoordinatedByUrgentBreaking verifies breaking
// changes plus an urgent team impact force coordinated even without
// critical-strength dependencies.
func TestBuildMigrationPlan_CoordinatedByUrgentBreaking(t *testing.T) {
	g := graphOf("orders", []depgraph.ServiceDependency{
		dep("checkout", "web", depgraph.StrengthStrong),
	}, nil)

	p := plan(t, g, 1)
	assert.Equal(t, StrategyCoordinated, p.Strategy)
}

// TestMigrationOrder verifies consumers sort by strength plus
// team-impact score, critical coupling first, stable on ties.
func TestMigrationOrder(t *testing.T) {
	g := graphOf("orders", []depgraph.ServiceDependency{
		dep("analytics", "data", depgraph.StrengthWeak),
		dep("checkout", "web", depgraph.StrengthCritical),
		dep("billing", "finance", depgraph.StrengthStrong),
		dep("kiosk", "data", depgraph.StrengthWeak),
	}, nil)

	p := plan(t, g, 1)

	require.Len(t, p.MigrationOrder, 4)
	assert.Equal(t, "checkout", p.MigrationOrder[0])
	assert.Equal(t, "billing", p.MigrationOrder[1])
	// Equal scores keep registration order.
	assert.Equal(t, "analytics", p.MigrationOrder[2])
	assert.Equal(t, "kiosk", p.MigrationOrder[3])
}

// TestBuildMigrationPlan_SupportSections verifies rollback, testing,
// and communication content.
func TestBuildMigrationPlan_SupportSections(t *testing.T) {
	g := graphOf("orders", []depgraph.ServiceDependency{
		dep("checkout", "web", depgraph.StrengthCritical),
	}, nil)

	p := plan(t, g, 1)
	assert.Equal(t, "chg-1", p.ChangeID)
	assert.Equal(t, "orders", p.Target)

	assert.Contains(t, p.RollbackPlan[0], "orders")
	assert.Contains(t, p.RollbackPlan, "re-run contract tests against the baseline before resuming traffic")
	require.NotEmpty(t, p.TestingPlan)
	assert.Contains(t, p.TestingPlan[1], "team-web")
	assert.Contains(t, p.CommunicationPlan[0], "team web")
	assert.Contains(t, p.CommunicationPlan[0], "urgent")
}

// TestBuildMigrationPlan_NilInputs verifies the typed nil errors.
func TestBuildMigrationPlan_NilInputs(t *testing.T) {
	a := NewAnalyzer(nil)
	g := graphOf("orders", nil, nil)

	_, err := a.BuildMigrationPlan("chg-1", nil, &Assessment{})
	assert.ErrorIs(t, err, ErrNilGraph)

	_, err = a.BuildMigrationPlan("chg-1", g, nil)
	assert.ErrorIs(t, err, ErrNilAssessment)
}
