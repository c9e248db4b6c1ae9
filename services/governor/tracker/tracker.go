// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracker composes the governance pipeline for one schema
// change: breaking-change detection, impact analysis, policy
// evaluation, review creation, durable persistence, audit, and team
// notification.
//
// # Description
//
// TrackSchemaChange is the engine's front door. It owns the ordering
// guarantees the individual packages do not: detection failures surface
// as typed errors rather than empty results, the change record and its
// audit entry persist before any notification goes out, and
// notification failures never roll back a tracked change.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/audit"
	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/notify"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/schema"
	"github.com/AleutianAI/strait/services/governor/storage"
)

// Params wires the tracker's collaborators.
type Params struct {
	Store    storage.Store
	Registry *depgraph.Registry
	Analyzer *impact.Analyzer
	Enforcer *policy.Enforcer
	Reviews  *review.Engine
	Audit    *audit.Log
	Config   policy.ConfigProvider

	// Detector may be nil; tracking a modification then fails with
	// breaking.ErrDetectorNotConfigured.
	Detector breaking.Detector

	// Notifier may be nil to disable notifications.
	Notifier notify.Notifier

	// Logger may be nil to use the process default.
	Logger *logging.Logger
}

// Tracker runs the governance pipeline.
//
// # Thread Safety
//
// Safe for concurrent use.
type Tracker struct {
	store    storage.Store
	registry *depgraph.Registry
	analyzer *impact.Analyzer
	enforcer *policy.Enforcer
	reviews  *review.Engine
	audit    *audit.Log
	config   policy.ConfigProvider
	detector breaking.Detector
	notifier notify.Notifier
	log      *logging.Logger
}

// NewTracker creates a tracker, validating the required collaborators.
func NewTracker(p Params) (*Tracker, error) {
	switch {
	case p.Store == nil:
		return nil, fmt.Errorf("tracker requires a store")
	case p.Registry == nil:
		return nil, fmt.Errorf("tracker requires a dependency registry")
	case p.Analyzer == nil:
		return nil, fmt.Errorf("tracker requires an impact analyzer")
	case p.Enforcer == nil:
		return nil, fmt.Errorf("tracker requires a policy enforcer")
	case p.Reviews == nil:
		return nil, fmt.Errorf("tracker requires a review engine")
	case p.Audit == nil:
		return nil, fmt.Errorf("tracker requires an audit log")
	case p.Config == nil:
		return nil, fmt.Errorf("tracker requires a config provider")
	}
	if p.Notifier == nil {
		p.Notifier = notify.NopNotifier{}
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	return &Tracker{
		store:    p.Store,
		registry: p.Registry,
		analyzer: p.Analyzer,
		enforcer: p.Enforcer,
		reviews:  p.Reviews,
		audit:    p.Audit,
		config:   p.Config,
		detector: p.Detector,
		notifier: p.Notifier,
		log:      p.Logger,
	}, nil
}

// TrackSchemaChange runs the full governance pipeline for one change.
//
// # Description
//
// Modifications run breaking-change detection under the configured
// timeout; any finding forces migration and review. Impact analysis
// sets the overall level and discovers affected teams. Review is
// additionally required for high or critical impact, when the owning
// team mandates review for all changes, or when the review policy does
// not auto-approve. If the repository's breaking-change policy is
// "error" the change is recorded as blocked and no review is created.
//
// The record and its audit entry persist fail-closed: a store or audit
// write failure fails the call with ErrPersistFailed. Notifications go
// out last and never roll anything back.
//
// # Inputs
//
//   - ctx: cancellation context; the detection timeout nests inside it.
//   - sub: the change and, for modifications, the schema payloads.
//
// # Outputs
//
//   - *ChangeRecord: the persisted record, including the notification
//     log.
//   - error: *TrackingError wrapping the failing stage.
func (t *Tracker) TrackSchemaChange(ctx context.Context, sub Submission) (*ChangeRecord, error) {
	change := sub.Change
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if change.CreatedAt.IsZero() {
		change.CreatedAt = now
	}
	if err := change.Validate(); err != nil {
		return nil, &TrackingError{ChangeID: change.ID, Op: "validate", Err: err}
	}

	rec := &ChangeRecord{
		Change:      change,
		ImpactLevel: impact.LevelNone,
		TrackedAt:   now,
		UpdatedAt:   now,
	}

	if change.Kind == schema.KindModification {
		found, err := t.detect(ctx, change, sub)
		if err != nil {
			return nil, &TrackingError{ChangeID: change.ID, Op: "detect", Err: err}
		}
		if len(found) > 0 {
			rec.BreakingChanges = found
			rec.MigrationRequired = true
			rec.ReviewRequired = true
			// The detector raises the submitter's declaration; it is
			// never lowered.
			change.Breaking = true
			rec.Change = change
		}
	}

	g, err := t.graphFor(ctx, change.Target)
	if err != nil {
		return nil, &TrackingError{ChangeID: change.ID, Op: "dependency-graph", Err: err}
	}
	assessment, err := t.analyzer.Analyze(ctx, g, rec.BreakingChanges)
	if err != nil {
		return nil, &TrackingError{ChangeID: change.ID, Op: "impact", Err: err}
	}
	rec.ImpactLevel = assessment.Level
	rec.AffectedTeams = mergeTeams(change.AffectedTeams, assessment.AffectedTeams)

	highImpact := assessment.Level == impact.LevelHigh || assessment.Level == impact.LevelCritical
	if highImpact {
		rec.ReviewRequired = true
	}
	cfg := t.config.Current()
	if override, ok := cfg.TeamOverrides[change.OwningTeam]; ok && override.RequireReviewForAll {
		rec.ReviewRequired = true
	}

	outcome := &PolicyOutcome{}
	if rec.ReviewRequired {
		outcome.ReviewAction = policy.ActionRequireApproval
	} else {
		res, err := t.enforcer.EnforceReviewPolicy(ctx, &change, nil)
		if err != nil {
			return nil, &TrackingError{ChangeID: change.ID, Op: "review-policy", Err: err}
		}
		outcome.ReviewAction = res.Action
		if res.Action != policy.ActionAllow {
			rec.ReviewRequired = true
		}
	}
	if len(rec.BreakingChanges) > 0 {
		res, err := t.enforcer.EnforceBreakingChangePolicy(ctx, change.Repository, rec.BreakingChanges, "")
		if err != nil {
			return nil, &TrackingError{ChangeID: change.ID, Op: "breaking-policy", Err: err}
		}
		outcome.BreakingAction = res.Action
		outcome.Violations = res.Violations
	}
	rec.Policy = outcome

	if rec.ReviewRequired && !rec.Blocked() {
		rev, err := t.createReview(ctx, change, rec.AffectedTeams, highImpact)
		if err != nil {
			return nil, &TrackingError{ChangeID: change.ID, Op: "create-review", Err: err}
		}
		rec.ReviewID = rev.ID
		rec.ReviewStatus = rev.Status
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return nil, &TrackingError{ChangeID: change.ID, Op: "persist", Err: err}
	}
	if err := t.store.Create(ctx, storage.ChangeKey(change.ID), value); err != nil {
		return nil, &TrackingError{ChangeID: change.ID, Op: "persist", Err: fmt.Errorf("%w: %w", ErrPersistFailed, err)}
	}

	auditOutcome := audit.OutcomeSuccess
	if rec.Blocked() {
		auditOutcome = audit.OutcomeBlocked
	}
	err = t.audit.Append(ctx, audit.Record{
		EventType:    audit.EventChangeTracked,
		Actor:        change.Author,
		Action:       "track",
		ResourceType: "change",
		ResourceID:   change.ID,
		Outcome:      auditOutcome,
		Metadata: map[string]any{
			"target":          change.Target,
			"kind":            string(change.Kind),
			"breaking_count":  len(rec.BreakingChanges),
			"impact_level":    string(rec.ImpactLevel),
			"review_required": rec.ReviewRequired,
			"review_id":       rec.ReviewID,
			"review_action":   string(outcome.ReviewAction),
			"breaking_action": string(outcome.BreakingAction),
		},
	})
	if err != nil {
		return nil, &TrackingError{ChangeID: change.ID, Op: "audit", Err: fmt.Errorf("%w: %w", ErrPersistFailed, err)}
	}

	t.notifyAffectedTeams(ctx, rec)

	t.log.Info("schema change tracked",
		"change_id", change.ID,
		"target", change.Target,
		"kind", change.Kind,
		"breaking", len(rec.BreakingChanges),
		"impact_level", rec.ImpactLevel,
		"review_required", rec.ReviewRequired,
		"blocked", rec.Blocked())
	return rec, nil
}

// GetChange returns the change record, or ErrChangeNotFound.
func (t *Tracker) GetChange(ctx context.Context, changeID string) (*ChangeRecord, error) {
	value, err := t.store.Get(ctx, storage.ChangeKey(changeID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &TrackingError{ChangeID: changeID, Op: "get", Err: ErrChangeNotFound}
		}
		return nil, &TrackingError{ChangeID: changeID, Op: "get", Err: err}
	}
	return decodeRecord(value)
}

// ListChanges returns all change records, newest first.
func (t *Tracker) ListChanges(ctx context.Context) ([]*ChangeRecord, error) {
	entries, err := t.store.List(ctx, storage.PrefixChange)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	out := make([]*ChangeRecord, 0, len(entries))
	for _, entry := range entries {
		rec, err := decodeRecord(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", entry.Key, err)
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TrackedAt.After(out[j].TrackedAt)
	})
	return out, nil
}

// ResolveReview syncs the linked review's status onto the change record
// and writes an audit entry when the review reached a terminal status.
//
// The audit entry is written before the record sync: a failed audit
// write leaves the record unsynced so a retry redoes both. Racing syncs
// can therefore duplicate the audit entry, but they can never lose it.
func (t *Tracker) ResolveReview(ctx context.Context, changeID string) (*ChangeRecord, error) {
	rec, err := t.GetChange(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if rec.ReviewID == "" {
		return nil, &TrackingError{ChangeID: changeID, Op: "resolve-review", Err: ErrReviewNotLinked}
	}

	rev, err := t.reviews.Get(ctx, rec.ReviewID)
	if err != nil {
		return nil, &TrackingError{ChangeID: changeID, Op: "resolve-review", Err: err}
	}

	if rec.ReviewStatus != rev.Status && rev.Status.Terminal() {
		actor := "system"
		if rev.Resolution != nil {
			actor = rev.Resolution.By
		}
		err := t.audit.Append(ctx, audit.Record{
			EventType:    audit.EventReviewResolved,
			Actor:        actor,
			Action:       string(rev.Status),
			ResourceType: "review",
			ResourceID:   rev.ID,
			Outcome:      audit.OutcomeSuccess,
			Metadata: map[string]any{
				"change_id": changeID,
				"target":    rec.Change.Target,
				"approvals": len(rev.Approvals),
			},
		})
		if err != nil {
			return nil, &TrackingError{ChangeID: changeID, Op: "resolve-review", Err: fmt.Errorf("%w: %w", ErrPersistFailed, err)}
		}
	}

	var updated *ChangeRecord
	err = t.store.Update(ctx, storage.ChangeKey(changeID), func(current []byte, found bool) ([]byte, error) {
		updated = nil
		if !found {
			return nil, ErrChangeNotFound
		}
		cur, err := decodeRecord(current)
		if err != nil {
			return nil, err
		}
		if cur.ReviewStatus != rev.Status {
			cur.ReviewStatus = rev.Status
			cur.UpdatedAt = time.Now().UTC()
		}
		updated = cur
		return json.Marshal(cur)
	})
	if err != nil {
		return nil, &TrackingError{ChangeID: changeID, Op: "resolve-review", Err: err}
	}
	return updated, nil
}

// detect runs breaking-change detection under the configured timeout.
// Detector failures propagate typed; a failure is never reported as "no
// breaking changes".
func (t *Tracker) detect(ctx context.Context, change schema.Change, sub Submission) ([]breaking.BreakingChange, error) {
	if t.detector == nil {
		return nil, breaking.ErrDetectorNotConfigured
	}
	if sub.Current == "" || sub.Baseline == "" {
		return nil, ErrPayloadsRequired
	}

	timeout := t.config.Current().GlobalSettings.DetectTimeout()
	detectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found, err := t.detector.Detect(detectCtx, sub.Current, sub.Baseline)
	if err != nil {
		return nil, err
	}
	for i := range found {
		if found[i].Repository == "" {
			found[i].Repository = change.Repository
		}
	}

	if sub.Diff != "" {
		annotated, err := breaking.AnnotateSnippets(found, sub.Diff)
		if err != nil {
			// Snippets are enrichment; a malformed diff does not
			// invalidate the findings themselves.
			t.log.Warn("snippet annotation failed",
				"change_id", change.ID,
				"error", err)
			return found, nil
		}
		found = annotated
	}
	return found, nil
}

// graphFor fetches the dependency graph, synthesizing an empty graph
// for targets nothing consumes yet. New schemas have no registered
// dependents and must still be trackable.
func (t *Tracker) graphFor(ctx context.Context, target string) (*depgraph.DependencyGraph, error) {
	g, err := t.registry.Graph(ctx, target)
	if err != nil {
		if errors.Is(err, depgraph.ErrTargetNotRegistered) {
			return &depgraph.DependencyGraph{
				Target:     target,
				ComputedAt: time.Now().UTC(),
			}, nil
		}
		return nil, err
	}
	return g, nil
}

// createReview opens the gating review: reviewers are the owning team
// plus, for high or critical impact, every affected team; the approval
// count is two for high or critical impact, one otherwise.
func (t *Tracker) createReview(ctx context.Context, change schema.Change, affectedTeams []string, highImpact bool) (*review.Request, error) {
	refs := []string{"@" + change.OwningTeam}
	if highImpact {
		for _, team := range affectedTeams {
			if team != change.OwningTeam {
				refs = append(refs, "@"+team)
			}
		}
	}
	count := 1
	if highImpact {
		count = 2
	}
	return t.reviews.CreateReviewRequest(ctx, review.CreateParams{
		ChangeID:      change.ID,
		Target:        change.Target,
		OwningTeam:    change.OwningTeam,
		Requester:     change.Author,
		Description:   change.Description,
		Reviewers:     refs,
		ApprovalCount: count,
	})
}

// notifyAffectedTeams sends one notification per distinct owning or
// affected team and appends the outcomes to the record's notification
// log. Delivery failures are logged on the record, never propagated.
func (t *Tracker) notifyAffectedTeams(ctx context.Context, rec *ChangeRecord) {
	teams := mergeTeams([]string{rec.Change.OwningTeam}, rec.AffectedTeams)

	entries := make([]NotificationEntry, 0, len(teams))
	for _, team := range teams {
		n := notify.Notification{
			Team:    team,
			Type:    notify.TypeSchemaChange,
			Subject: fmt.Sprintf("Schema change tracked for %s", rec.Change.Target),
			Body:    rec.Change.Description,
			Payload: map[string]any{
				"change_id":      rec.Change.ID,
				"target":         rec.Change.Target,
				"kind":           string(rec.Change.Kind),
				"breaking_count": len(rec.BreakingChanges),
				"impact_level":   string(rec.ImpactLevel),
				"review_id":      rec.ReviewID,
			},
		}
		entry := NotificationEntry{
			Team:      team,
			Type:      n.Type,
			Delivered: true,
			SentAt:    time.Now().UTC(),
		}
		if err := t.notifier.Notify(ctx, n); err != nil {
			entry.Delivered = false
			entry.Error = err.Error()
			t.log.Warn("team notification failed",
				"change_id", rec.Change.ID,
				"team", team,
				"error", err)
		}
		entries = append(entries, entry)
	}
	rec.Notifications = entries

	// Best effort: the record is already durable, the log is advisory.
	err := t.store.Update(ctx, storage.ChangeKey(rec.Change.ID), func(current []byte, found bool) ([]byte, error) {
		if !found {
			return nil, ErrChangeNotFound
		}
		cur, err := decodeRecord(current)
		if err != nil {
			return nil, err
		}
		cur.Notifications = entries
		cur.UpdatedAt = time.Now().UTC()
		return json.Marshal(cur)
	})
	if err != nil {
		t.log.Warn("notification log update failed",
			"change_id", rec.Change.ID,
			"error", err)
	}
}

func mergeTeams(declared, discovered []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range [][]string{declared, discovered} {
		for _, team := range list {
			if team != "" && !seen[team] {
				seen[team] = true
				out = append(out, team)
			}
		}
	}
	return out
}

func decodeRecord(value []byte) (*ChangeRecord, error) {
	var rec ChangeRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("decode change record: %w", err)
	}
	return &rec, nil
}
