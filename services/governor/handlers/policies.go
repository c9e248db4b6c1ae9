// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/audit"
	"github.com/AleutianAI/strait/services/governor/datatypes"
	"github.com/AleutianAI/strait/services/governor/middleware"
	"github.com/AleutianAI/strait/services/governor/observability"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/telemetry"
)

// CheckPolicy handles POST /v1/policies/check.
//
// # Description
//
// Dry-runs the review policy (and the breaking-change policy, when the
// request carries findings) for a hypothetical change. Nothing is
// tracked or persisted; the consultation itself is written to the audit
// log so policy probes are attributable.
func CheckPolicy(enf *policy.Enforcer, auditLog *audit.Log, m *observability.Metrics, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CheckPolicy")
		defer span.End()

		var req datatypes.PolicyCheckRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp := datatypes.PolicyCheckResponse{}
		reviewRes, err := enf.EnforceReviewPolicy(ctx, req.Change(), req.Approvers)
		if err != nil {
			telemetry.RecordError(span, err)
			if errors.Is(err, policy.ErrPolicyNotFound) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.ReviewPolicy = reviewRes
		m.RecordPolicyDecision("review", string(reviewRes.Action))

		if findings := req.BreakingChanges(); len(findings) > 0 {
			breakingRes, err := enf.EnforceBreakingChangePolicy(ctx, req.Repository, findings, "")
			if err != nil {
				telemetry.RecordError(span, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			resp.BreakingPolicy = breakingRes
			m.RecordPolicyDecision("breaking", string(breakingRes.Action))
		}

		err = auditLog.Append(ctx, audit.Record{
			EventType:    audit.EventPolicyDecision,
			Actor:        middleware.GetActor(c),
			Action:       "check",
			ResourceType: "repository",
			ResourceID:   req.Repository,
			Outcome:      audit.OutcomeSuccess,
			Metadata: map[string]any{
				"dry_run":       true,
				"target":        req.Target,
				"review_action": string(resp.ReviewPolicy.Action),
				"findings":      len(req.Findings),
			},
		})
		if err != nil {
			log.Error("policy check audit write failed", "repository", req.Repository, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "audit write failed"})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// RecordBreakingApproval handles POST /v1/approvals/breaking. The
// approver is the request actor; approvals are idempotent and the first
// grant for a (repository, location) key wins.
func RecordBreakingApproval(store *policy.ApprovalStore, auditLog *audit.Log, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "RecordBreakingApproval")
		defer span.End()

		var req datatypes.RecordBreakingApprovalRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		actor := middleware.GetActor(c)
		approval := req.Approval(actor)
		if err := store.Record(ctx, approval); err != nil {
			telemetry.RecordError(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := auditLog.Append(ctx, audit.Record{
			EventType:    audit.EventApprovalRecorded,
			Actor:        actor,
			Action:       "approve-breaking",
			ResourceType: "repository",
			ResourceID:   req.Repository,
			Outcome:      audit.OutcomeSuccess,
			Metadata: map[string]any{
				"location": req.Location,
			},
		})
		if err != nil {
			log.Error("breaking approval audit write failed",
				"repository", req.Repository,
				"location", req.Location,
				"error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "audit write failed"})
			return
		}

		log.Info("breaking change approved",
			"repository", req.Repository,
			"location", req.Location,
			"approver", actor)
		c.JSON(http.StatusCreated, gin.H{
			"repository": req.Repository,
			"location":   req.Location,
			"approver":   actor,
		})
	}
}

// ListBreakingApprovals handles GET /v1/approvals/breaking?repository=.
func ListBreakingApprovals(store *policy.ApprovalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		repository := c.Query("repository")
		if repository == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "repository query parameter is required"})
			return
		}
		approvals, err := store.List(c.Request.Context(), repository)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"approvals": approvals, "count": len(approvals)})
	}
}
