// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/audit"
	"github.com/AleutianAI/strait/services/governor/datatypes"
	"github.com/AleutianAI/strait/services/governor/middleware"
	"github.com/AleutianAI/strait/services/governor/observability"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/telemetry"
	"github.com/AleutianAI/strait/services/governor/tracker"
)

// GetReview handles GET /v1/reviews/:id. The response pairs the review
// with its approval status, pending reviewers resolved live against the
// team directory.
func GetReview(eng *review.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		rev, err := eng.Get(ctx, c.Param("id"))
		if err != nil {
			c.JSON(reviewStatusCode(err), gin.H{"error": err.Error()})
			return
		}
		status, err := eng.CheckApprovalStatus(ctx, rev.ID)
		if err != nil {
			c.JSON(reviewStatusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, datatypes.ReviewDetail{Review: rev, Status: status})
	}
}

// ListReviews handles GET /v1/reviews.
//
// With ?reviewer= it returns that reviewer's inbox: pending reviews they
// are authorized to act on and have not approved yet. With ?status= it
// returns all reviews in that status. The two filters are mutually
// exclusive; an inbox is pending by definition.
func ListReviews(eng *review.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		reviewer := c.Query("reviewer")
		status := c.Query("status")

		if reviewer != "" && status != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reviewer and status filters are mutually exclusive"})
			return
		}

		var (
			revs []*review.Request
			err  error
		)
		switch {
		case reviewer != "":
			revs, err = eng.Inbox(ctx, reviewer)
		case status != "":
			var parsed review.Status
			parsed, err = review.ParseStatus(status)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			revs, err = eng.ListByStatus(ctx, parsed)
		default:
			revs, err = eng.List(ctx)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reviews": revs, "count": len(revs)})
	}
}

// ApproveReview handles POST /v1/reviews/:id/approve. The reviewer is the
// request actor. Approvals are idempotent, so a client retrying after a
// failed audit write converges instead of double-approving.
func ApproveReview(eng *review.Engine, t *tracker.Tracker, auditLog *audit.Log, m *observability.Metrics, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ApproveReview")
		defer span.End()

		var req datatypes.ApproveReviewRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		actor := middleware.GetActor(c)
		rev, err := eng.Approve(ctx, c.Param("id"), actor, req.Comment)
		if err != nil {
			telemetry.RecordError(span, err)
			c.JSON(reviewStatusCode(err), gin.H{"error": err.Error()})
			return
		}

		err = auditLog.Append(ctx, audit.Record{
			EventType:    audit.EventApprovalRecorded,
			Actor:        actor,
			Action:       "approve",
			ResourceType: "review",
			ResourceID:   rev.ID,
			Outcome:      audit.OutcomeSuccess,
			Metadata: map[string]any{
				"change_id": rev.ChangeID,
				"approvals": len(rev.Approvals),
				"status":    string(rev.Status),
			},
		})
		if err != nil {
			log.Error("approval audit write failed", "review_id", rev.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "audit write failed"})
			return
		}

		if err := syncChangeRecord(ctx, t, rev, log); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "change record sync failed"})
			return
		}
		if rev.Status.Terminal() {
			m.ReviewResolved(string(rev.Status))
		}
		c.JSON(http.StatusOK, rev)
	}
}

// RejectReview handles POST /v1/reviews/:id/reject. Rejection is terminal
// and requires a reason.
func RejectReview(eng *review.Engine, t *tracker.Tracker, m *observability.Metrics, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "RejectReview")
		defer span.End()

		var req datatypes.RejectReviewRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		actor := middleware.GetActor(c)
		rev, err := eng.Reject(ctx, c.Param("id"), actor, req.Reason)
		if err != nil {
			telemetry.RecordError(span, err)
			c.JSON(reviewStatusCode(err), gin.H{"error": err.Error()})
			return
		}

		if err := syncChangeRecord(ctx, t, rev, log); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "change record sync failed"})
			return
		}
		m.ReviewResolved(string(rev.Status))
		c.JSON(http.StatusOK, rev)
	}
}

// CancelReview handles POST /v1/reviews/:id/cancel. The requester can
// always cancel their own review; anyone else must be an authorized
// reviewer.
func CancelReview(eng *review.Engine, t *tracker.Tracker, m *observability.Metrics, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CancelReview")
		defer span.End()

		var req datatypes.CancelReviewRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		actor := middleware.GetActor(c)
		rev, err := eng.Cancel(ctx, c.Param("id"), actor, req.Reason)
		if err != nil {
			telemetry.RecordError(span, err)
			c.JSON(reviewStatusCode(err), gin.H{"error": err.Error()})
			return
		}

		if err := syncChangeRecord(ctx, t, rev, log); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "change record sync failed"})
			return
		}
		m.ReviewResolved(string(rev.Status))
		c.JSON(http.StatusOK, rev)
	}
}

// AddReviewComment handles POST /v1/reviews/:id/comments. Closed reviews
// are immutable, comments included.
func AddReviewComment(eng *review.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AddCommentRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rev, err := eng.AddComment(c.Request.Context(), c.Param("id"), middleware.GetActor(c), req.Body)
		if err != nil {
			c.JSON(reviewStatusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rev)
	}
}

// syncChangeRecord folds the review's status back onto its change record.
// Reviews created by the tracker always carry a change ID; the sync is
// what writes the review-resolved audit entry.
func syncChangeRecord(ctx context.Context, t *tracker.Tracker, rev *review.Request, log *logging.Logger) error {
	if rev.ChangeID == "" {
		return nil
	}
	if _, err := t.ResolveReview(ctx, rev.ChangeID); err != nil {
		log.Error("change record sync failed",
			"review_id", rev.ID,
			"change_id", rev.ChangeID,
			"error", err)
		return err
	}
	return nil
}

// reviewStatusCode maps review workflow errors onto HTTP statuses.
func reviewStatusCode(err error) int {
	switch {
	case errors.Is(err, review.ErrReviewNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrUnauthorizedReviewer):
		return http.StatusForbidden
	case errors.Is(err, review.ErrReviewClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
