// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the governor's HTTP endpoints. Handlers are
// thin: they bind and validate the wire types, call into the domain
// packages, and map domain errors onto HTTP status codes. Governance
// semantics live in the domain packages, never here.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/datatypes"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/middleware"
	"github.com/AleutianAI/strait/services/governor/observability"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/telemetry"
	"github.com/AleutianAI/strait/services/governor/tracker"
)

var tracer = otel.Tracer("strait.governor.handlers")

// TrackChange handles POST /v1/changes.
//
// # Description
//
// Runs the full governance pipeline for one submitted change: detection
// for modifications, impact analysis, policy enforcement, review
// creation, persistence, audit, and team notification. The response is
// the persisted change record, 201 on success. Blocked changes (breaking
// policy "error") are still recorded and still return 201; the record's
// policy outcome carries the violations.
//
// # Error Mapping
//
//   - 400: malformed body, failed field validation, missing payloads
//   - 503: modification submitted but no detector is configured
//   - 422: no review policy resolves for the repository
//   - 502: the detector tool itself failed
//   - 500: persistence, audit, or analysis failures
func TrackChange(t *tracker.Tracker, m *observability.Metrics, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "TrackChange")
		defer span.End()

		var req datatypes.TrackChangeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		started := time.Now()
		rec, err := t.TrackSchemaChange(ctx, req.Submission(middleware.GetActor(c)))
		m.ObserveTrack(time.Since(started).Seconds())
		if err != nil {
			telemetry.RecordError(span, err)
			log.Error("change tracking failed",
				"target", req.Target,
				"repository", req.Repository,
				"error", err)
			m.RecordChange(req.Kind, observability.OutcomeFailed)
			c.JSON(trackStatusCode(err), gin.H{"error": err.Error()})
			return
		}

		recordTrackMetrics(m, rec)
		c.JSON(http.StatusCreated, rec)
	}
}

// GetChange handles GET /v1/changes/:id.
func GetChange(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := t.GetChange(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, tracker.ErrChangeNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "change not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// ListChanges handles GET /v1/changes with optional repository, author,
// and status filters. Status accepts a review status (pending, approved,
// rejected, cancelled) or "blocked".
func ListChanges(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		recs, err := t.ListChanges(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		repository := c.Query("repository")
		author := c.Query("author")
		status := c.Query("status")
		if status != "" && status != "blocked" {
			if _, err := review.ParseStatus(status); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		out := recs[:0]
		for _, rec := range recs {
			if repository != "" && rec.Change.Repository != repository {
				continue
			}
			if author != "" && rec.Change.Author != author {
				continue
			}
			if status != "" && !matchStatus(rec, status) {
				continue
			}
			out = append(out, rec)
		}
		c.JSON(http.StatusOK, gin.H{"changes": out, "count": len(out)})
	}
}

// GetMigrationPlan handles GET /v1/changes/:id/plan.
//
// The plan is derived, not stored: the graph and assessment are
// recomputed from the current registry state so a plan requested weeks
// after tracking reflects today's consumers, not a stale snapshot.
func GetMigrationPlan(t *tracker.Tracker, reg *depgraph.Registry, an *impact.Analyzer, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetMigrationPlan")
		defer span.End()

		rec, err := t.GetChange(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, tracker.ErrChangeNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "change not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		g, err := reg.Graph(ctx, rec.Change.Target)
		if err != nil {
			if !errors.Is(err, depgraph.ErrTargetNotRegistered) {
				telemetry.RecordError(span, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			// No registered consumers: plan against an empty graph.
			g = &depgraph.DependencyGraph{Target: rec.Change.Target, ComputedAt: time.Now().UTC()}
		}

		as, err := an.Analyze(ctx, g, rec.BreakingChanges)
		if err != nil {
			telemetry.RecordError(span, err)
			log.Error("plan impact analysis failed", "change_id", rec.Change.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		plan, err := an.BuildMigrationPlan(rec.Change.ID, g, as)
		if err != nil {
			telemetry.RecordError(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

// matchStatus applies the list status filter to one record.
func matchStatus(rec *tracker.ChangeRecord, status string) bool {
	if status == "blocked" {
		return rec.Blocked()
	}
	return rec.ReviewID != "" && string(rec.ReviewStatus) == status
}

// trackStatusCode maps tracking pipeline failures onto HTTP statuses.
func trackStatusCode(err error) int {
	var terr *tracker.TrackingError
	if errors.As(err, &terr) && terr.Op == "validate" {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, tracker.ErrPayloadsRequired):
		return http.StatusBadRequest
	case errors.Is(err, breaking.ErrDetectorNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, policy.ErrPolicyNotFound):
		return http.StatusUnprocessableEntity
	}
	var derr *breaking.DetectionError
	if errors.As(err, &derr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// recordTrackMetrics emits the counters for one successful track.
func recordTrackMetrics(m *observability.Metrics, rec *tracker.ChangeRecord) {
	outcome := observability.OutcomeTracked
	if rec.Blocked() {
		outcome = observability.OutcomeBlocked
	}
	m.RecordChange(string(rec.Change.Kind), outcome)
	m.RecordImpact(string(rec.ImpactLevel))

	byTier := make(map[string]int)
	for _, bc := range rec.BreakingChanges {
		byTier[string(bc.Impact)]++
	}
	for tier, n := range byTier {
		m.RecordBreaking(tier, n)
	}

	if rec.Policy != nil {
		if rec.Policy.ReviewAction != "" {
			m.RecordPolicyDecision("review", string(rec.Policy.ReviewAction))
		}
		if rec.Policy.BreakingAction != "" {
			m.RecordPolicyDecision("breaking", string(rec.Policy.BreakingAction))
		}
	}
	if rec.ReviewID != "" {
		m.ReviewCreated()
	}
	for _, entry := range rec.Notifications {
		if entry.Delivered {
			m.RecordNotification(observability.NotifyDelivered)
		} else {
			m.RecordNotification(observability.NotifyFailed)
		}
	}
}
