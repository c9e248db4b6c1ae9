// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package depgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func edge(service, team string, strength DependencyStrength) ServiceDependency {
	return ServiceDependency{
		Service:    service,
		Repository: "github.com/acme/" + service,
		Kind:       KindDirect,
		Strength:   strength,
		Team:       team,
	}
}

// TestRegister_Validation verifies target and edge validation plus the
// two structural rules: no transitive registration, no self-dependency.
func TestRegister_Validation(t *testing.T) {
	r := NewRegistry(nil)

	assert.Error(t, r.Register("", edge("checkout", "payments", StrengthStrong)))
	assert.Error(t, r.Register("orders", ServiceDependency{Service: "checkout"}))

	dep := edge("checkout", "payments", StrengthStrong)
	dep.Kind = KindTransitive
	assert.Error(t, r.Register("orders", dep))

	self := edge("orders", "payments", StrengthStrong)
	assert.Error(t, r.Register("orders", self))

	require.NoError(t, r.Register("orders", edge("checkout", "payments", StrengthStrong)))
	assert.Equal(t, 1, r.EdgeCount())
}

// TestRegister_ReplaceInPlace verifies re-registering a (target, service)
// pair updates the edge without changing its position or duplicating it.
func TestRegister_ReplaceInPlace(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("orders", edge("checkout", "payments", StrengthWeak)))
	require.NoError(t, r.Register("orders", edge("billing", "finance", StrengthMedium)))

	genBefore := r.Generation()
	require.NoError(t, r.Register("orders", edge("checkout", "payments", StrengthCritical)))

	g, err := r.Graph(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, g.Direct, 2)
	// checkout keeps first position with its new strength.
	assert.Equal(t, "checkout", g.Direct[0].Service)
	assert.Equal(t, StrengthCritical, g.Direct[0].Strength)
	assert.Equal(t, 2, r.EdgeCount())

	// Replacement still bumps the generation so cached graphs refresh.
	assert.Greater(t, r.Generation(), genBefore)
}

// TestGraph_UnknownTarget verifies the typed not-registered error.
func TestGraph_UnknownTarget(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Graph(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTargetNotRegistered)

	var analysisErr *AnalysisError
	require.ErrorAs(t, err, &analysisErr)
	assert.Equal(t, "ghost", analysisErr.Target)
}

// TestGraph_TransitiveWalk verifies the one-level walk: consumers of a
// direct dependent appear as transitive edges clamped to weak, and the
// walk does not continue past them.
func TestGraph_TransitiveWalk(t *testing.T) {
	r := NewRegistry(nil)
	// orders <- checkout <- storefront <- mobile-app
	require.NoError(t, r.Register("orders", edge("checkout", "payments", StrengthStrong)))
	require.NoError(t, r.Register("checkout", edge("storefront", "web", StrengthCritical)))
	require.NoError(t, r.Register("storefront", edge("mobile-app", "mobile", StrengthStrong)))

	g, err := r.Graph(context.Background(), "orders")
	require.NoError(t, err)

	require.Len(t, g.Direct, 1)
	assert.Equal(t, "checkout", g.Direct[0].Service)

	// storefront is one hop past checkout: transitive, clamped to weak.
	require.Len(t, g.Transitive, 1)
	assert.Equal(t, "storefront", g.Transitive[0].Service)
	assert.Equal(t, KindTransitive, g.Transitive[0].Kind)
	assert.Equal(t, StrengthWeak, g.Transitive[0].Strength)

	// mobile-app is two hops out and must not appear.
	for _, tr := range g.Transitive {
		assert.NotEqual(t, "mobile-app", tr.Service)
	}

	assert.Equal(t, 2, g.Metadata.AffectedServices)
	assert.Equal(t, 2, g.Metadata.DistinctTeams)
}

// TestGraph_DirectWinsOverTransitive verifies a service reachable both
// directly and via the walk is reported once, under its direct edge.
func TestGraph_DirectWinsOverTransitive(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("orders", edge("checkout", "payments", StrengthStrong)))
	require.NoError(t, r.Register("orders", edge("storefront", "web", StrengthCritical)))
	// storefront also consumes checkout, so the walk would rediscover it.
	require.NoError(t, r.Register("checkout", edge("storefront", "web", StrengthWeak)))

	g, err := r.Graph(context.Background(), "orders")
	require.NoError(t, err)

	require.Len(t, g.Direct, 2)
	assert.Empty(t, g.Transitive)
	assert.Equal(t, 1, g.Metadata.CriticalDirect)
}

// TestGraph_ReverseFromBackwardIndex verifies reverse dependencies come
// from the exact backward index, not name matching.
func TestGraph_ReverseFromBackwardIndex(t *testing.T) {
	r := NewRegistry(nil)
	// checkout consumes orders and inventory.
	require.NoError(t, r.Register("orders", edge("checkout", "payments", StrengthStrong)))
	require.NoError(t, r.Register("inventory", edge("checkout", "payments", StrengthMedium)))

	g, err := r.Graph(context.Background(), "checkout")
	require.NoError(t, err)

	assert.Empty(t, g.Direct)
	require.Len(t, g.Reverse, 2)
	upstream := []string{g.Reverse[0].Service, g.Reverse[1].Service}
	assert.ElementsMatch(t, []string{"orders", "inventory"}, upstream)
}

// TestGraph_ComplexityScenario checks the worked example: 4 direct (one
// critical), 3 transitive, 5 teams scores 10.
func TestGraph_ComplexityScenario(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("orders", edge("checkout", "web", StrengthCritical)))
	require.NoError(t, r.Register("orders", edge("billing", "finance", StrengthStrong)))
	require.NoError(t, r.Register("orders", edge("analytics", "data", StrengthWeak)))
	require.NoError(t, r.Register("orders", edge("audit-svc", "compliance", StrengthMedium)))

	// Three consumers one hop past checkout, all on a fifth team.
	require.NoError(t, r.Register("checkout", edge("storefront", "mobile", StrengthStrong)))
	require.NoError(t, r.Register("checkout", edge("kiosk", "mobile", StrengthWeak)))
	require.NoError(t, r.Register("checkout", edge("partner-api", "mobile", StrengthMedium)))

	g, err := r.Graph(context.Background(), "orders")
	require.NoError(t, err)

	assert.Equal(t, 7, g.Metadata.AffectedServices)
	assert.Equal(t, 1, g.Metadata.CriticalDirect)
	assert.Equal(t, 5, g.Metadata.DistinctTeams)
	// 4 + 0.5*3 + 2*1 + 0.5*5 = 10
	assert.Equal(t, 10, g.Metadata.ComplexityScore)
}

// TestComplexityScore_Truncation verifies fractional scores truncate.
func TestComplexityScore_Truncation(t *testing.T) {
	assert.Equal(t, 0, ComplexityScore(0, 0, 0, 0))
	assert.Equal(t, 0, ComplexityScore(0, 1, 0, 0))
	assert.Equal(t, 1, ComplexityScore(0, 1, 0, 1))
	assert.Equal(t, 3, ComplexityScore(1, 1, 0, 3))
}

// TestMatrixAndTargets verifies the registry-wide views.
func TestMatrixAndTargets(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("orders", edge("checkout", "payments", StrengthStrong)))
	require.NoError(t, r.Register("orders", edge("billing", "finance", StrengthMedium)))
	require.NoError(t, r.Register("inventory", edge("checkout", "payments", StrengthWeak)))

	assert.Equal(t, []string{"inventory", "orders"}, r.Targets())

	matrix := r.Matrix()
	assert.Equal(t, []string{"billing", "checkout"}, matrix["orders"])
	assert.Equal(t, []string{"checkout"}, matrix["inventory"])
}

// TestComplexityScore_Monotonic property-checks that adding load never
// lowers the score.
func TestComplexityScore_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		direct := rapid.IntRange(0, 50).Draw(t, "direct")
		transitive := rapid.IntRange(0, 50).Draw(t, "transitive")
		critical := rapid.IntRange(0, direct).Draw(t, "critical")
		teams := rapid.IntRange(0, 20).Draw(t, "teams")

		base := ComplexityScore(direct, transitive, critical, teams)

		assert.GreaterOrEqual(t, ComplexityScore(direct+1, transitive, critical, teams), base)
		assert.GreaterOrEqual(t, ComplexityScore(direct, transitive+2, critical, teams), base+1)
		assert.GreaterOrEqual(t, ComplexityScore(direct, transitive, critical+1, teams), base+2)
		assert.GreaterOrEqual(t, base, 0)
	})
}
