// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/strait/services/governor/audit"
	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/notify"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/schema"
	"github.com/AleutianAI/strait/services/governor/storage"
	"github.com/AleutianAI/strait/services/governor/teams"
)

// recordingNotifier captures notifications and can simulate delivery
// failures.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) byType(t string) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	tracker  *Tracker
	store    *storage.MemoryStore
	registry *depgraph.Registry
	reviews  *review.Engine
	audit    *audit.Log
	notifier *recordingNotifier
}

func baseConfig() *policy.Config {
	return &policy.Config{
		ReviewPolicies: map[string]policy.ReviewPolicy{
			policy.DefaultPolicyKey: {
				RequiredReviewers: []string{"@payments"},
				ApprovalCount:     1,
				AutoApproveMinor:  true,
			},
		},
		GlobalSettings: policy.GlobalSettings{
			DefaultBreakingChangePolicy: string(policy.ActionWarn),
			DetectTimeoutSeconds:        5,
		},
	}
}

func newFixture(t *testing.T, cfg *policy.Config, det breaking.Detector) *fixture {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	dir := teams.NewStaticDirectory(map[string][]teams.Member{
		"payments": {
			{Username: "alice", Role: teams.RoleMaintainer},
			{Username: "bob", Role: teams.RoleMember},
		},
		"web": {
			{Username: "erin", Role: teams.RoleMaintainer},
		},
	})
	notifier := &recordingNotifier{}
	provider := policy.StaticConfig(cfg)
	reviews := review.NewEngine(store, dir, notifier, nil)
	auditLog := audit.NewLog(store, nil)
	registry := depgraph.NewRegistry(nil)

	tr, err := NewTracker(Params{
		Store:    store,
		Registry: registry,
		Analyzer: impact.NewAnalyzer(nil),
		Enforcer: policy.NewEnforcer(provider, dir, policy.NewApprovalStore(store), nil),
		Reviews:  reviews,
		Audit:    auditLog,
		Config:   provider,
		Detector: det,
		Notifier: notifier,
	})
	require.NoError(t, err)
	return &fixture{
		tracker:  tr,
		store:    store,
		registry: registry,
		reviews:  reviews,
		audit:    auditLog,
		notifier: notifier,
	}
}

func addition() Submission {
	return Submission{Change: schema.Change{
		Target:      "orders",
		Kind:        schema.KindAddition,
		Author:      "dave",
		Repository:  "github.com/acme/orders",
		OwningTeam:  "payments",
		Description: "introduce the orders schema",
	}}
}

func modification() Submission {
	sub := addition()
	sub.Change.Kind = schema.KindModification
	sub.Current = `syntax = "proto3";`
	sub.Baseline = `syntax = "proto2";`
	return sub
}

func fieldDeleted() breaking.BreakingChange {
	return breaking.BreakingChange{
		Type:        "FIELD_NO_DELETE",
		Description: "field 3 deleted",
		Location:    "orders.proto:42",
		Impact:      breaking.TierCritical,
	}
}

// TestTrackSchemaChange_AutoApprove verifies a compatible addition under
// an auto-approve policy persists without a review and notifies the
// owning team.
func TestTrackSchemaChange_AutoApprove(t *testing.T) {
	f := newFixture(t, baseConfig(), nil)
	ctx := context.Background()

	rec, err := f.tracker.TrackSchemaChange(ctx, addition())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.Change.ID)
	assert.False(t, rec.Change.CreatedAt.IsZero())
	assert.False(t, rec.ReviewRequired)
	assert.False(t, rec.MigrationRequired)
	assert.Empty(t, rec.ReviewID)
	require.NotNil(t, rec.Policy)
	assert.Equal(t, policy.ActionAllow, rec.Policy.ReviewAction)
	assert.Empty(t, rec.Policy.BreakingAction)

	// Persisted and retrievable.
	got, err := f.tracker.GetChange(ctx, rec.Change.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Change.ID, got.Change.ID)

	// Audit trail written with a success outcome.
	records, err := f.audit.Query(ctx, audit.Filter{
		EventTypes: []string{audit.EventChangeTracked},
		ResourceID: rec.Change.ID,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dave", records[0].Actor)
	assert.Equal(t, audit.OutcomeSuccess, records[0].Outcome)

	// Owning team notified, and the delivery logged on the record.
	changeNotes := f.notifier.byType(notify.TypeSchemaChange)
	require.Len(t, changeNotes, 1)
	assert.Equal(t, "payments", changeNotes[0].Team)
	require.Len(t, got.Notifications, 1)
	assert.True(t, got.Notifications[0].Delivered)
}

// TestTrackSchemaChange_ValidationFails verifies invalid changes are
// rejected before anything persists.
func TestTrackSchemaChange_ValidationFails(t *testing.T) {
	f := newFixture(t, baseConfig(), nil)

	sub := addition()
	sub.Change.Author = ""
	_, err := f.tracker.TrackSchemaChange(context.Background(), sub)
	require.Error(t, err)

	var trackErr *TrackingError
	require.ErrorAs(t, err, &trackErr)
	assert.Equal(t, "validate", trackErr.Op)

	recs, err := f.tracker.ListChanges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// TestTrackSchemaChange_DetectorGating verifies the detection
// preconditions for modifications.
func TestTrackSchemaChange_DetectorGating(t *testing.T) {
	ctx := context.Background()

	t.Run("nil detector", func(t *testing.T) {
		f := newFixture(t, baseConfig(), nil)
		_, err := f.tracker.TrackSchemaChange(ctx, modification())
		assert.ErrorIs(t, err, breaking.ErrDetectorNotConfigured)
	})

	t.Run("missing payloads", func(t *testing.T) {
		f := newFixture(t, baseConfig(), &breaking.StaticDetector{})
		sub := modification()
		sub.Baseline = ""
		_, err := f.tracker.TrackSchemaChange(ctx, sub)
		assert.ErrorIs(t, err, ErrPayloadsRequired)
	})

	t.Run("detector failure propagates", func(t *testing.T) {
		boom := errors.New("tool crashed")
		f := newFixture(t, baseConfig(), &breaking.StaticDetector{Err: boom})
		_, err := f.tracker.TrackSchemaChange(ctx, modification())
		require.ErrorIs(t, err, boom)

		var trackErr *TrackingError
		require.ErrorAs(t, err, &trackErr)
		assert.Equal(t, "detect", trackErr.Op)
	})

	t.Run("additions skip detection", func(t *testing.T) {
		f := newFixture(t, baseConfig(), &breaking.StaticDetector{Err: errors.New("unused")})
		_, err := f.tracker.TrackSchemaChange(ctx, addition())
		assert.NoError(t, err)
	})
}

// TestTrackSchemaChange_FindingsForceReview verifies detector findings
// raise the breaking flag, require migration, and open a review even
// when the policy would otherwise auto-approve.
func TestTrackSchemaChange_FindingsForceReview(t *testing.T) {
	f := newFixture(t, baseConfig(), &breaking.StaticDetector{
		Changes: []breaking.BreakingChange{fieldDeleted()},
	})
	ctx := context.Background()

	sub := modification()
	sub.Change.Breaking = false
	rec, err := f.tracker.TrackSchemaChange(ctx, sub)
	require.NoError(t, err)

	assert.True(t, rec.Change.Breaking)
	assert.True(t, rec.MigrationRequired)
	assert.True(t, rec.ReviewRequired)
	require.Len(t, rec.BreakingChanges, 1)
	assert.Equal(t, "github.com/acme/orders", rec.BreakingChanges[0].Repository)
	require.NotNil(t, rec.Policy)
	assert.Equal(t, policy.ActionRequireApproval, rec.Policy.ReviewAction)
	assert.Equal(t, policy.ActionWarn, rec.Policy.BreakingAction)
	assert.False(t, rec.Blocked())

	require.NotEmpty(t, rec.ReviewID)
	rev, err := f.reviews.Get(ctx, rec.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, rev.Status)
	assert.Equal(t, 1, rev.ApprovalCount)
	assert.Equal(t, []string{"alice"}, rev.Reviewers)
}

// TestTrackSchemaChange_DiffAnnotatesSnippets verifies a submitted
// unified diff flows through detection and lands before/after snippets
// on the persisted findings, and that a malformed diff degrades to
// unannotated findings instead of failing the track.
func TestTrackSchemaChange_DiffAnnotatesSnippets(t *testing.T) {
	ctx := context.Background()
	unified := `--- a/orders.proto
+++ b/orders.proto
@@ -40,5 +40,5 @@
 message Order {
   string id = 1;
-  string legacy_ref = 3;
+  string order_ref = 3;
   int64 total = 4;
 }
`

	t.Run("snippets from covering hunk", func(t *testing.T) {
		f := newFixture(t, baseConfig(), &breaking.StaticDetector{
			Changes: []breaking.BreakingChange{fieldDeleted()},
		})
		sub := modification()
		sub.Diff = unified
		rec, err := f.tracker.TrackSchemaChange(ctx, sub)
		require.NoError(t, err)

		require.Len(t, rec.BreakingChanges, 1)
		assert.Equal(t, "  string legacy_ref = 3;", rec.BreakingChanges[0].Before)
		assert.Equal(t, "  string order_ref = 3;", rec.BreakingChanges[0].After)
	})

	t.Run("malformed diff degrades", func(t *testing.T) {
		f := newFixture(t, baseConfig(), &breaking.StaticDetector{
			Changes: []breaking.BreakingChange{fieldDeleted()},
		})
		sub := modification()
		sub.Diff = "not a diff"
		rec, err := f.tracker.TrackSchemaChange(ctx, sub)
		require.NoError(t, err)

		require.Len(t, rec.BreakingChanges, 1)
		assert.Empty(t, rec.BreakingChanges[0].Before)
		assert.Empty(t, rec.BreakingChanges[0].After)
	})
}

// TestTrackSchemaChange_HighImpactReview verifies a breaking change with
// a critical direct dependent escalates to a two-approval review drawing
// reviewers from the affected teams.
func TestTrackSchemaChange_HighImpactReview(t *testing.T) {
	f := newFixture(t, baseConfig(), &breaking.StaticDetector{
		Changes: []breaking.BreakingChange{fieldDeleted()},
	})
	require.NoError(t, f.registry.Register("orders", depgraph.ServiceDependency{
		Service:    "storefront",
		Repository: "github.com/acme/storefront",
		Kind:       depgraph.KindDirect,
		Strength:   depgraph.StrengthCritical,
		Team:       "web",
	}))
	ctx := context.Background()

	rec, err := f.tracker.TrackSchemaChange(ctx, modification())
	require.NoError(t, err)

	assert.Equal(t, impact.LevelCritical, rec.ImpactLevel)
	assert.Contains(t, rec.AffectedTeams, "web")

	rev, err := f.reviews.Get(ctx, rec.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, 2, rev.ApprovalCount)
	assert.ElementsMatch(t, []string{"alice", "erin"}, rev.Reviewers)

	// Both the owning and the affected team hear about the change.
	teamsNotified := make(map[string]bool)
	for _, n := range f.notifier.byType(notify.TypeSchemaChange) {
		teamsNotified[n.Team] = true
	}
	assert.True(t, teamsNotified["payments"])
	assert.True(t, teamsNotified["web"])
}

// TestTrackSchemaChange_TeamOverrideForcesReview verifies
// require_review_for_all gates even compatible additions.
func TestTrackSchemaChange_TeamOverrideForcesReview(t *testing.T) {
	cfg := baseConfig()
	cfg.TeamOverrides = map[string]policy.TeamOverride{
		"payments": {RequireReviewForAll: true},
	}
	f := newFixture(t, cfg, nil)

	rec, err := f.tracker.TrackSchemaChange(context.Background(), addition())
	require.NoError(t, err)
	assert.True(t, rec.ReviewRequired)
	assert.NotEmpty(t, rec.ReviewID)
	assert.Equal(t, policy.ActionRequireApproval, rec.Policy.ReviewAction)
}

// TestTrackSchemaChange_BlockedByPolicy verifies an error-action
// breaking-change policy records the change as blocked and skips the
// review entirely.
func TestTrackSchemaChange_BlockedByPolicy(t *testing.T) {
	cfg := baseConfig()
	cfg.BreakingChangePolicies = map[string]string{
		"github.com/acme/orders": string(policy.ActionError),
	}
	f := newFixture(t, cfg, &breaking.StaticDetector{
		Changes: []breaking.BreakingChange{fieldDeleted()},
	})
	ctx := context.Background()

	rec, err := f.tracker.TrackSchemaChange(ctx, modification())
	require.NoError(t, err)

	assert.True(t, rec.Blocked())
	assert.Equal(t, policy.ActionError, rec.Policy.BreakingAction)
	require.Len(t, rec.Policy.Violations, 1)
	assert.Contains(t, rec.Policy.Violations[0], "FIELD_NO_DELETE at orders.proto:42")
	assert.Empty(t, rec.ReviewID)

	records, err := f.audit.Query(ctx, audit.Filter{ResourceID: rec.Change.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeBlocked, records[0].Outcome)
}

// TestTrackSchemaChange_NotificationFailureIsolated verifies delivery
// failures are logged on the record without failing the call.
func TestTrackSchemaChange_NotificationFailureIsolated(t *testing.T) {
	f := newFixture(t, baseConfig(), nil)
	f.notifier.err = errors.New("webhook down")
	ctx := context.Background()

	rec, err := f.tracker.TrackSchemaChange(ctx, addition())
	require.NoError(t, err)

	require.Len(t, rec.Notifications, 1)
	assert.False(t, rec.Notifications[0].Delivered)
	assert.Contains(t, rec.Notifications[0].Error, "webhook down")

	got, err := f.tracker.GetChange(ctx, rec.Change.ID)
	require.NoError(t, err)
	require.Len(t, got.Notifications, 1)
	assert.False(t, got.Notifications[0].Delivered)
}

// TestGetChange_NotFound verifies the typed not-found error.
func TestGetChange_NotFound(t *testing.T) {
	f := newFixture(t, baseConfig(), nil)
	_, err := f.tracker.GetChange(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrChangeNotFound)
}

// TestListChanges_NewestFirst verifies ordering by tracking time.
func TestListChanges_NewestFirst(t *testing.T) {
	f := newFixture(t, baseConfig(), nil)
	ctx := context.Background()

	first, err := f.tracker.TrackSchemaChange(ctx, addition())
	require.NoError(t, err)
	second, err := f.tracker.TrackSchemaChange(ctx, addition())
	require.NoError(t, err)

	recs, err := f.tracker.ListChanges(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second.Change.ID, recs[0].Change.ID)
	assert.Equal(t, first.Change.ID, recs[1].Change.ID)
}

// TestResolveReview verifies syncing a terminal review status onto the
// change record, with its audit entry.
func TestResolveReview(t *testing.T) {
	f := newFixture(t, baseConfig(), &breaking.StaticDetector{
		Changes: []breaking.BreakingChange{fieldDeleted()},
	})
	ctx := context.Background()

	rec, err := f.tracker.TrackSchemaChange(ctx, modification())
	require.NoError(t, err)
	require.NotEmpty(t, rec.ReviewID)
	assert.Equal(t, review.StatusPending, rec.ReviewStatus)

	// Unresolved review: sync is a no-op on the status.
	synced, err := f.tracker.ResolveReview(ctx, rec.Change.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, synced.ReviewStatus)

	_, err = f.reviews.Approve(ctx, rec.ReviewID, "alice", "lgtm")
	require.NoError(t, err)

	synced, err = f.tracker.ResolveReview(ctx, rec.Change.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusApproved, synced.ReviewStatus)

	records, err := f.audit.Query(ctx, audit.Filter{
		EventTypes: []string{audit.EventReviewResolved},
		ResourceID: rec.ReviewID,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].Actor)
	assert.Equal(t, string(review.StatusApproved), records[0].Action)

	// Re-sync after the terminal entry is already recorded: no second
	// audit record.
	_, err = f.tracker.ResolveReview(ctx, rec.Change.ID)
	require.NoError(t, err)
	records, err = f.audit.Query(ctx, audit.Filter{
		EventTypes: []string{audit.EventReviewResolved},
		ResourceID: rec.ReviewID,
	})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// TestResolveReview_NoLinkedReview verifies the typed error for changes
// that never needed review.
func TestResolveReview_NoLinkedReview(t *testing.T) {
	f := newFixture(t, baseConfig(), nil)
	ctx := context.Background()

	rec, err := f.tracker.TrackSchemaChange(ctx, addition())
	require.NoError(t, err)

	_, err = f.tracker.ResolveReview(ctx, rec.Change.ID)
	assert.ErrorIs(t, err, ErrReviewNotLinked)
}

// TestNewTracker_Validation verifies required collaborators are checked.
func TestNewTracker_Validation(t *testing.T) {
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	_, err := NewTracker(Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store")

	_, err = NewTracker(Params{Store: store})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry")
}
