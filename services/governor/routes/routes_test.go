// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/audit"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/notify"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/storage"
	"github.com/AleutianAI/strait/services/governor/teams"
	"github.com/AleutianAI/strait/services/governor/tracker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestSetupRoutes verifies every endpoint registers, and that review
// creation deliberately has no route.
func TestSetupRoutes(t *testing.T) {
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	dir := teams.NewStaticDirectory(nil)
	cfg := policy.StaticConfig(&policy.Config{GlobalSettings: policy.GlobalSettings{DetectTimeoutSeconds: 5}})
	registry := depgraph.NewRegistry(nil)
	analyzer := impact.NewAnalyzer(nil)
	approvals := policy.NewApprovalStore(store)
	reviews := review.NewEngine(store, dir, notify.NopNotifier{}, nil)
	auditLog := audit.NewLog(store, nil)
	enforcer := policy.NewEnforcer(cfg, dir, approvals, nil)

	tr, err := tracker.NewTracker(tracker.Params{
		Store:    store,
		Registry: registry,
		Analyzer: analyzer,
		Enforcer: enforcer,
		Reviews:  reviews,
		Audit:    auditLog,
		Config:   cfg,
	})
	require.NoError(t, err)

	router := gin.New()
	SetupRoutes(router, Deps{
		Tracker:   tr,
		Registry:  registry,
		Analyzer:  analyzer,
		Enforcer:  enforcer,
		Approvals: approvals,
		Reviews:   reviews,
		Audit:     auditLog,
		Log:       logging.Default(),
	})

	registered := make(map[string]bool)
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		http.MethodGet + " /health",
		http.MethodGet + " /metrics",
		http.MethodPost + " /v1/changes",
		http.MethodGet + " /v1/changes",
		http.MethodGet + " /v1/changes/:id",
		http.MethodGet + " /v1/changes/:id/plan",
		http.MethodPost + " /v1/dependencies",
		http.MethodGet + " /v1/dependencies",
		http.MethodGet + " /v1/dependencies/*target",
		http.MethodGet + " /v1/impact/*target",
		http.MethodPost + " /v1/policies/check",
		http.MethodPost + " /v1/approvals/breaking",
		http.MethodGet + " /v1/approvals/breaking",
		http.MethodGet + " /v1/reviews",
		http.MethodGet + " /v1/reviews/:id",
		http.MethodGet + " /v1/reviews/:id/watch",
		http.MethodPost + " /v1/reviews/:id/approve",
		http.MethodPost + " /v1/reviews/:id/reject",
		http.MethodPost + " /v1/reviews/:id/cancel",
		http.MethodPost + " /v1/reviews/:id/comments",
		http.MethodGet + " /v1/audit",
	}
	for _, route := range want {
		assert.True(t, registered[route], "missing route %s", route)
	}

	// Reviews exist only as a product of tracking a change.
	assert.False(t, registered[http.MethodPost+" /v1/reviews"])
}
