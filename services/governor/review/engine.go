// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package review implements the approval state machine for schema
// changes.
//
// # Description
//
// A review starts pending and moves to exactly one terminal status:
// approved, rejected, or cancelled. Closed reviews are immutable,
// comments included. Approvals are idempotent per reviewer: approving
// twice records one approval and is not an error.
//
// Team references are expanded to qualifying members when the review is
// created, but that snapshot is only a display and notification hint.
// Authorization is resolved live on every approve, reject, and cancel:
// an individual reviewer entry always authorizes that user, and a
// "@team" entry authorizes whoever holds a maintainer or admin role in
// the team at the moment of the call.
//
// Every state transition is a single atomic read-modify-write against
// the store, so concurrent approvals on the same review cannot lose
// updates.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/pkg/validation"
	"github.com/AleutianAI/strait/services/governor/notify"
	"github.com/AleutianAI/strait/services/governor/storage"
	"github.com/AleutianAI/strait/services/governor/teams"
)

// Engine runs the review workflow over a durable store.
//
// # Thread Safety
//
// Safe for concurrent use. State transitions are serialized per review
// by the store's atomic Update.
type Engine struct {
	store     storage.Store
	directory teams.Directory
	notifier  notify.Notifier
	log       *logging.Logger
}

// NewEngine creates a review engine. notifier may be nil to disable
// notifications; log may be nil to use the process default.
func NewEngine(store storage.Store, directory teams.Directory, notifier notify.Notifier, log *logging.Logger) *Engine {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if log == nil {
		log = logging.Default()
	}
	return &Engine{
		store:     store,
		directory: directory,
		notifier:  notifier,
		log:       log,
	}
}

// CreateParams are the inputs for opening a review.
type CreateParams struct {
	// ChangeID links the review to a tracked schema change.
	ChangeID string

	// Target is the schema ref under review.
	Target string

	// OwningTeam owns the target schema and receives the request
	// notification.
	OwningTeam string

	// Requester opens the review and may cancel it.
	Requester string

	Description string

	// Reviewers are wire-form reviewer references; "@name" entries are
	// team references.
	Reviewers []string

	// ApprovalCount is how many distinct approvals close the review.
	// Zero defaults to one.
	ApprovalCount int
}

// CreateReviewRequest opens a pending review.
//
// # Description
//
// Reviewer references are parsed and team references are expanded to
// their current qualifying members (maintainer or admin). Expansion is
// strict here, unlike at approval time: a reviewer list that references
// an unknown team, or that resolves to nobody who can approve, fails
// creation rather than producing a review no one can ever close.
//
// # Inputs
//
//   - ctx: cancellation context.
//   - p: creation parameters; see CreateParams.
//
// # Outputs
//
//   - *Request: the persisted pending review.
//   - error: validation failure, teams.ErrTeamNotFound from expansion,
//     or a store write failure.
func (e *Engine) CreateReviewRequest(ctx context.Context, p CreateParams) (*Request, error) {
	if p.ChangeID == "" {
		return nil, fmt.Errorf("change id is required")
	}
	if err := validation.ValidateSchemaRef(p.Target); err != nil {
		return nil, err
	}
	if err := validation.ValidateName(p.OwningTeam); err != nil {
		return nil, fmt.Errorf("owning team: %w", err)
	}
	if p.Requester == "" {
		return nil, fmt.Errorf("requester is required")
	}
	if len(p.Reviewers) == 0 {
		return nil, fmt.Errorf("at least one reviewer is required")
	}

	refs, err := teams.ParseReviewers(p.Reviewers)
	if err != nil {
		return nil, err
	}

	snapshot, err := e.expandReviewers(ctx, refs)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("reviewer list resolves to no eligible reviewers")
	}

	count := p.ApprovalCount
	if count <= 0 {
		count = 1
	}
	if count > len(snapshot) {
		// Legal because team membership is live and the pool can grow,
		// but worth flagging.
		e.log.Warn("approval count exceeds current reviewer pool",
			"change_id", p.ChangeID,
			"approval_count", count,
			"reviewers", len(snapshot))
	}

	now := time.Now().UTC()
	req := &Request{
		ID:            uuid.NewString(),
		ChangeID:      p.ChangeID,
		Target:        p.Target,
		OwningTeam:    p.OwningTeam,
		Requester:     p.Requester,
		Description:   p.Description,
		Reviewers:     snapshot,
		ReviewerRefs:  refs,
		ApprovalCount: count,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	value, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal review: %w", err)
	}
	if err := e.store.Create(ctx, storage.ReviewKey(req.ID), value); err != nil {
		return nil, &WorkflowError{ReviewID: req.ID, Op: "create", Err: err}
	}

	e.log.Info("review created",
		"review_id", req.ID,
		"change_id", req.ChangeID,
		"target", req.Target,
		"reviewers", len(snapshot),
		"approval_count", count)

	e.notifyBestEffort(ctx, notify.Notification{
		Team:    req.OwningTeam,
		Type:    notify.TypeReviewRequested,
		Subject: fmt.Sprintf("Review requested for %s", req.Target),
		Body:    req.Description,
		Payload: map[string]any{
			"review_id": req.ID,
			"change_id": req.ChangeID,
			"target":    req.Target,
			"reviewers": snapshot,
		},
	})
	return req, nil
}

// Get returns the review, or ErrReviewNotFound.
func (e *Engine) Get(ctx context.Context, reviewID string) (*Request, error) {
	value, err := e.store.Get(ctx, storage.ReviewKey(reviewID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &WorkflowError{ReviewID: reviewID, Op: "get", Err: ErrReviewNotFound}
		}
		return nil, &WorkflowError{ReviewID: reviewID, Op: "get", Err: err}
	}
	return decodeRequest(value)
}

// Approve records one reviewer's approval.
//
// # Description
//
// The reviewer must be authorized at the moment of the call: named
// individually, or currently a qualifying member of a referenced team.
// A repeat approval by the same reviewer is an idempotent no-op, never
// a double count. When the approval total reaches the required count
// the review transitions to approved, the resolution is recorded, and a
// review_approved notification fires.
//
// # Inputs
//
//   - ctx: cancellation context.
//   - reviewID: the review to approve.
//   - reviewer: the approving user.
//   - comment: optional approval comment.
//
// # Outputs
//
//   - *Request: the review after the approval was applied.
//   - error: ErrReviewNotFound, ErrUnauthorizedReviewer, ErrReviewClosed,
//     or a store failure, wrapped in *WorkflowError.
func (e *Engine) Approve(ctx context.Context, reviewID, reviewer, comment string) (*Request, error) {
	req, err := e.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, req, reviewer); err != nil {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "approve", Err: err}
	}

	var (
		updated      *Request
		transitioned bool
	)
	err = e.store.Update(ctx, storage.ReviewKey(reviewID), func(current []byte, found bool) ([]byte, error) {
		// The closure can rerun on a write conflict; reset outputs.
		updated = nil
		transitioned = false

		if !found {
			return nil, ErrReviewNotFound
		}
		cur, err := decodeRequest(current)
		if err != nil {
			return nil, err
		}
		if cur.HasApproval(reviewer) {
			updated = cur
			return current, nil
		}
		if cur.Status.Terminal() {
			return nil, ErrReviewClosed
		}

		now := time.Now().UTC()
		cur.Approvals = append(cur.Approvals, Approval{
			Reviewer:   reviewer,
			Comment:    comment,
			ApprovedAt: now,
		})
		if len(cur.Approvals) >= cur.ApprovalCount {
			cur.Status = StatusApproved
			cur.Resolution = &Resolution{
				Action: StatusApproved,
				By:     reviewer,
				At:     now,
			}
			transitioned = true
		}
		cur.UpdatedAt = now
		updated = cur
		return json.Marshal(cur)
	})
	if err != nil {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "approve", Err: err}
	}

	e.log.Info("review approval recorded",
		"review_id", reviewID,
		"reviewer", reviewer,
		"status", updated.Status,
		"approvals", len(updated.Approvals),
		"needed", updated.ApprovalCount)

	if transitioned {
		e.notifyBestEffort(ctx, notify.Notification{
			Team:    updated.OwningTeam,
			Type:    notify.TypeReviewApproved,
			Subject: fmt.Sprintf("Review approved for %s", updated.Target),
			Payload: map[string]any{
				"review_id": updated.ID,
				"change_id": updated.ChangeID,
				"target":    updated.Target,
				"approvers": approverNames(updated.Approvals),
			},
		})
	}
	return updated, nil
}

// Reject closes the review as rejected.
//
// Any authorized reviewer may reject at any point while the review is
// pending, regardless of how many approvals exist. A reason is
// mandatory.
func (e *Engine) Reject(ctx context.Context, reviewID, reviewer, reason string) (*Request, error) {
	if reason == "" {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "reject", Err: fmt.Errorf("rejection reason is required")}
	}
	req, err := e.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, req, reviewer); err != nil {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "reject", Err: err}
	}

	updated, err := e.close(ctx, reviewID, StatusRejected, reviewer, reason)
	if err != nil {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "reject", Err: err}
	}

	e.log.Info("review rejected",
		"review_id", reviewID,
		"reviewer", reviewer,
		"reason", reason)

	e.notifyBestEffort(ctx, notify.Notification{
		Team:    updated.OwningTeam,
		Type:    notify.TypeReviewRejected,
		Subject: fmt.Sprintf("Review rejected for %s", updated.Target),
		Body:    reason,
		Payload: map[string]any{
			"review_id":   updated.ID,
			"change_id":   updated.ChangeID,
			"target":      updated.Target,
			"rejected_by": reviewer,
		},
	})
	return updated, nil
}

// Cancel withdraws a pending review. Only the requester or an
// authorized reviewer may cancel.
func (e *Engine) Cancel(ctx context.Context, reviewID, actor, reason string) (*Request, error) {
	req, err := e.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if actor != req.Requester {
		if err := e.authorize(ctx, req, actor); err != nil {
			return nil, &WorkflowError{ReviewID: reviewID, Op: "cancel", Err: err}
		}
	}

	updated, err := e.close(ctx, reviewID, StatusCancelled, actor, reason)
	if err != nil {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "cancel", Err: err}
	}

	e.log.Info("review cancelled",
		"review_id", reviewID,
		"actor", actor)
	return updated, nil
}

// AddComment appends a discussion comment. Closed reviews reject
// comments like any other mutation.
func (e *Engine) AddComment(ctx context.Context, reviewID, author, body string) (*Request, error) {
	if author == "" {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "comment", Err: fmt.Errorf("author is required")}
	}
	if body == "" {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "comment", Err: fmt.Errorf("comment body is required")}
	}

	var updated *Request
	err := e.store.Update(ctx, storage.ReviewKey(reviewID), func(current []byte, found bool) ([]byte, error) {
		updated = nil
		if !found {
			return nil, ErrReviewNotFound
		}
		cur, err := decodeRequest(current)
		if err != nil {
			return nil, err
		}
		if cur.Status.Terminal() {
			return nil, ErrReviewClosed
		}

		now := time.Now().UTC()
		cur.Comments = append(cur.Comments, Comment{
			Author:    author,
			Body:      body,
			CreatedAt: now,
		})
		cur.UpdatedAt = now
		updated = cur
		return json.Marshal(cur)
	})
	if err != nil {
		return nil, &WorkflowError{ReviewID: reviewID, Op: "comment", Err: err}
	}
	return updated, nil
}

// CheckApprovalStatus is a pure read summarizing where the review
// stands. Pending reviewers are resolved against current team
// membership, so the list reflects who could approve right now.
func (e *Engine) CheckApprovalStatus(ctx context.Context, reviewID string) (*ApprovalStatus, error) {
	req, err := e.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	approvers := approverNames(req.Approvals)
	approved := make(map[string]bool, len(approvers))
	for _, a := range approvers {
		approved[a] = true
	}

	var pending []string
	if !req.Status.Terminal() {
		authorized, err := e.expandReviewersLenient(ctx, req.ReviewerRefs)
		if err != nil {
			return nil, &WorkflowError{ReviewID: reviewID, Op: "status", Err: err}
		}
		for _, name := range authorized {
			if !approved[name] {
				pending = append(pending, name)
			}
		}
	}

	needed := req.ApprovalCount - len(req.Approvals)
	if needed < 0 || req.Status.Terminal() {
		needed = 0
	}

	return &ApprovalStatus{
		ReviewID:         req.ID,
		Status:           req.Status,
		IsApproved:       req.Status == StatusApproved,
		Approvers:        approvers,
		PendingReviewers: pending,
		ApprovalsNeeded:  needed,
	}, nil
}

// List returns all reviews, newest first.
func (e *Engine) List(ctx context.Context) ([]*Request, error) {
	return e.list(ctx, func(*Request) bool { return true })
}

// ListByStatus returns reviews in the given status, newest first.
func (e *Engine) ListByStatus(ctx context.Context, status Status) ([]*Request, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	return e.list(ctx, func(r *Request) bool { return r.Status == status })
}

// Inbox returns pending reviews the reviewer is currently authorized to
// act on and has not yet approved, newest first.
func (e *Engine) Inbox(ctx context.Context, reviewer string) ([]*Request, error) {
	pending, err := e.ListByStatus(ctx, StatusPending)
	if err != nil {
		return nil, err
	}

	var inbox []*Request
	for _, req := range pending {
		if req.HasApproval(reviewer) {
			continue
		}
		if err := e.authorize(ctx, req, reviewer); err != nil {
			if errors.Is(err, ErrUnauthorizedReviewer) {
				continue
			}
			return nil, err
		}
		inbox = append(inbox, req)
	}
	return inbox, nil
}

// close moves a pending review to a terminal status atomically.
func (e *Engine) close(ctx context.Context, reviewID string, action Status, by, reason string) (*Request, error) {
	var updated *Request
	err := e.store.Update(ctx, storage.ReviewKey(reviewID), func(current []byte, found bool) ([]byte, error) {
		updated = nil
		if !found {
			return nil, ErrReviewNotFound
		}
		cur, err := decodeRequest(current)
		if err != nil {
			return nil, err
		}
		if cur.Status.Terminal() {
			return nil, ErrReviewClosed
		}

		now := time.Now().UTC()
		cur.Status = action
		cur.Resolution = &Resolution{
			Action: action,
			By:     by,
			Reason: reason,
			At:     now,
		}
		cur.UpdatedAt = now
		updated = cur
		return json.Marshal(cur)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// authorize checks the reviewer against the review's reviewer
// references: individual entries match exactly, team entries resolve
// through the directory at call time and require approval rights. An
// unknown team contributes no members; any other directory failure
// propagates.
func (e *Engine) authorize(ctx context.Context, req *Request, reviewer string) error {
	for _, ref := range req.ReviewerRefs {
		switch ref.Kind {
		case teams.ReviewerIndividual:
			if ref.Name == reviewer {
				return nil
			}
		case teams.ReviewerTeam:
			members, err := e.directory.ResolveTeam(ctx, ref.Name)
			if err != nil {
				if errors.Is(err, teams.ErrTeamNotFound) {
					e.log.Warn("review references unknown team",
						"review_id", req.ID,
						"team", ref.Name)
					continue
				}
				return fmt.Errorf("resolve team %q: %w", ref.Name, err)
			}
			for _, m := range members {
				if m.Username == reviewer && m.CanApprove() {
					return nil
				}
			}
		}
	}
	return ErrUnauthorizedReviewer
}

// expandReviewers resolves references to a deduplicated username list.
// Strict: an unresolvable team fails the expansion.
func (e *Engine) expandReviewers(ctx context.Context, refs []teams.Reviewer) ([]string, error) {
	return e.expand(ctx, refs, true)
}

// expandReviewersLenient is expandReviewers with unknown teams skipped.
// Used for status reads, where a stale team reference should not make
// the whole review unreadable.
func (e *Engine) expandReviewersLenient(ctx context.Context, refs []teams.Reviewer) ([]string, error) {
	return e.expand(ctx, refs, false)
}

func (e *Engine) expand(ctx context.Context, refs []teams.Reviewer, strict bool) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, ref := range refs {
		switch ref.Kind {
		case teams.ReviewerIndividual:
			add(ref.Name)
		case teams.ReviewerTeam:
			members, err := e.directory.ResolveTeam(ctx, ref.Name)
			if err != nil {
				if !strict && errors.Is(err, teams.ErrTeamNotFound) {
					continue
				}
				return nil, fmt.Errorf("resolve team %q: %w", ref.Name, err)
			}
			for _, name := range teams.QualifiedReviewers(members) {
				add(name)
			}
		}
	}
	return names, nil
}

func (e *Engine) list(ctx context.Context, keep func(*Request) bool) ([]*Request, error) {
	entries, err := e.store.List(ctx, storage.PrefixReview)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	var out []*Request
	for _, entry := range entries {
		req, err := decodeRequest(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", entry.Key, err)
		}
		if keep(req) {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// notifyBestEffort delivers a notification without letting a failure
// affect the workflow outcome.
func (e *Engine) notifyBestEffort(ctx context.Context, n notify.Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.log.Warn("review notification failed",
			"team", n.Team,
			"type", n.Type,
			"error", err)
	}
}

func decodeRequest(value []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(value, &req); err != nil {
		return nil, fmt.Errorf("decode review: %w", err)
	}
	return &req, nil
}

func approverNames(approvals []Approval) []string {
	names := make([]string, 0, len(approvals))
	for _, a := range approvals {
		names = append(names, a.Reviewer)
	}
	return names
}
