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
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/audit"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/handlers"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/observability"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/telemetry"
	"github.com/AleutianAI/strait/services/governor/tracker"
)

// Deps carries the wired domain components the route handlers close over.
type Deps struct {
	Tracker   *tracker.Tracker
	Registry  *depgraph.Registry
	Analyzer  *impact.Analyzer
	Enforcer  *policy.Enforcer
	Approvals *policy.ApprovalStore
	Reviews   *review.Engine
	Audit     *audit.Log
	Metrics   *observability.Metrics
	Log       *logging.Logger
}

// SetupRoutes registers every governor endpoint on the router. Schema
// targets appear as catch-all parameters because refs contain slashes.
//
// There is deliberately no review-creation endpoint: reviews exist only
// as a product of tracking a change.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		changes := v1.Group("/changes")
		{
			changes.POST("", handlers.TrackChange(deps.Tracker, deps.Metrics, deps.Log))
			changes.GET("", handlers.ListChanges(deps.Tracker))
			changes.GET("/:id", handlers.GetChange(deps.Tracker))
			changes.GET("/:id/plan", handlers.GetMigrationPlan(deps.Tracker, deps.Registry, deps.Analyzer, deps.Log))
		}

		v1.POST("/dependencies", handlers.RegisterDependency(deps.Registry, deps.Log))
		v1.GET("/dependencies", handlers.GetDependencyMatrix(deps.Registry))
		v1.GET("/dependencies/*target", handlers.GetDependencyGraph(deps.Registry))
		v1.GET("/impact/*target", handlers.AnalyzeImpact(deps.Registry, deps.Analyzer))

		v1.POST("/policies/check", handlers.CheckPolicy(deps.Enforcer, deps.Audit, deps.Metrics, deps.Log))
		v1.POST("/approvals/breaking", handlers.RecordBreakingApproval(deps.Approvals, deps.Audit, deps.Log))
		v1.GET("/approvals/breaking", handlers.ListBreakingApprovals(deps.Approvals))

		// Review workflow routes
		reviews := v1.Group("/reviews")
		{
			reviews.GET("", handlers.ListReviews(deps.Reviews))
			reviews.GET("/:id", handlers.GetReview(deps.Reviews))
			reviews.GET("/:id/watch", handlers.WatchReview(deps.Reviews, deps.Log))
			reviews.POST("/:id/approve", handlers.ApproveReview(deps.Reviews, deps.Tracker, deps.Audit, deps.Metrics, deps.Log))
			reviews.POST("/:id/reject", handlers.RejectReview(deps.Reviews, deps.Tracker, deps.Metrics, deps.Log))
			reviews.POST("/:id/cancel", handlers.CancelReview(deps.Reviews, deps.Tracker, deps.Metrics, deps.Log))
			reviews.POST("/:id/comments", handlers.AddReviewComment(deps.Reviews))
		}

		v1.GET("/audit", handlers.QueryAudit(deps.Audit))
	}
}
