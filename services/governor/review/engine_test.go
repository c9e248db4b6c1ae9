// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package review

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/strait/services/governor/notify"
	"github.com/AleutianAI/strait/services/governor/storage"
	"github.com/AleutianAI/strait/services/governor/teams"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) byType(t string) []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Notification
	for _, msg := range n.sent {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

func testEngine(t *testing.T) (*Engine, *teams.StaticDirectory, *recordingNotifier) {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	directory := teams.NewStaticDirectory(map[string][]teams.Member{
		"payments": {
			{Username: "alice", Role: teams.RoleMaintainer},
			{Username: "bob", Role: teams.RoleMember},
			{Username: "carol", Role: teams.RoleAdmin},
		},
	})
	notifier := &recordingNotifier{}
	return NewEngine(store, directory, notifier, nil), directory, notifier
}

func createParams() CreateParams {
	return CreateParams{
		ChangeID:      "chg-1",
		Target:        "orders",
		OwningTeam:    "payments",
		Requester:     "dave",
		Description:   "drop deprecated coupon field",
		Reviewers:     []string{"@payments"},
		ApprovalCount: 2,
	}
}

// TestCreateReviewRequest verifies creation expands team references to
// qualifying members and notifies the owning team.
func TestCreateReviewRequest(t *testing.T) {
	e, _, notifier := testEngine(t)

	req, err := e.CreateReviewRequest(context.Background(), createParams())
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	// bob is a plain member and does not make the snapshot.
	assert.Equal(t, []string{"alice", "carol"}, req.Reviewers)
	assert.Equal(t, []teams.Reviewer{teams.TeamRef("payments")}, req.ReviewerRefs)
	assert.Equal(t, 2, req.ApprovalCount)
	assert.Nil(t, req.Resolution)

	requested := notifier.byType(notify.TypeReviewRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, "payments", requested[0].Team)

	got, err := e.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
}

// TestCreateReviewRequest_Validation covers required fields and strict
// team expansion.
func TestCreateReviewRequest_Validation(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"missing change id", func(p *CreateParams) { p.ChangeID = "" }},
		{"bad target", func(p *CreateParams) { p.Target = "" }},
		{"bad owning team", func(p *CreateParams) { p.OwningTeam = "Bad Team" }},
		{"missing requester", func(p *CreateParams) { p.Requester = "" }},
		{"no reviewers", func(p *CreateParams) { p.Reviewers = nil }},
		{"bad reviewer entry", func(p *CreateParams) { p.Reviewers = []string{""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createParams()
			tt.mutate(&p)
			_, err := e.CreateReviewRequest(ctx, p)
			assert.Error(t, err)
		})
	}

	t.Run("unknown team fails creation", func(t *testing.T) {
		p := createParams()
		p.Reviewers = []string{"@ghost-team"}
		_, err := e.CreateReviewRequest(ctx, p)
		assert.ErrorIs(t, err, teams.ErrTeamNotFound)
	})

	t.Run("default approval count is one", func(t *testing.T) {
		p := createParams()
		p.ApprovalCount = 0
		req, err := e.CreateReviewRequest(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 1, req.ApprovalCount)
	})
}

// TestApprove_Threshold walks a two-approval review to approved and
// checks the resolution and notification.
func TestApprove_Threshold(t *testing.T) {
	e, _, notifier := testEngine(t)
	ctx := context.Background()

	req, err := e.CreateReviewRequest(ctx, createParams())
	require.NoError(t, err)

	after1, err := e.Approve(ctx, req.ID, "alice", "looks safe")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, after1.Status)
	require.Len(t, after1.Approvals, 1)
	assert.Equal(t, "looks safe", after1.Approvals[0].Comment)

	after2, err := e.Approve(ctx, req.ID, "carol", "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, after2.Status)
	require.NotNil(t, after2.Resolution)
	assert.Equal(t, StatusApproved, after2.Resolution.Action)
	assert.Equal(t, "carol", after2.Resolution.By)

	approved := notifier.byType(notify.TypeReviewApproved)
	require.Len(t, approved, 1)
	assert.ElementsMatch(t, []string{"alice", "carol"},
		approved[0].Payload["approvers"])
}

// TestApprove_Idempotent verifies a repeat approval records nothing new
// and succeeds even after the review closed.
func TestApprove_Idempotent(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	p := createParams()
	p.ApprovalCount = 1
	req, err := e.CreateReviewRequest(ctx, p)
	require.NoError(t, err)

	first, err := e.Approve(ctx, req.ID, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, first.Status)

	// Repeat approve by the same reviewer is a no-op, not ErrReviewClosed.
	again, err := e.Approve(ctx, req.ID, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, again.Status)
	assert.Len(t, again.Approvals, 1)

	// A different reviewer hits the closed review.
	_, err = e.Approve(ctx, req.ID, "carol", "")
	assert.ErrorIs(t, err, ErrReviewClosed)
}

// TestApprove_Authorization verifies live authorization: plain members
// and strangers are rejected, and a promotion after creation grants
// approval rights.
func TestApprove_Authorization(t *testing.T) {
	e, directory, _ := testEngine(t)
	ctx := context.Background()

	req, err := e.CreateReviewRequest(ctx, createParams())
	require.NoError(t, err)

	_, err = e.Approve(ctx, req.ID, "bob", "")
	assert.ErrorIs(t, err, ErrUnauthorizedReviewer)

	_, err = e.Approve(ctx, req.ID, "mallory", "")
	assert.ErrorIs(t, err, ErrUnauthorizedReviewer)

	// bob gets promoted after the review was created; authorization is
	// live, so the approval now succeeds despite the old snapshot.
	directory.Replace(map[string][]teams.Member{
		"payments": {
			{Username: "alice", Role: teams.RoleMaintainer},
			{Username: "bob", Role: teams.RoleMaintainer},
		},
	})
	after, err := e.Approve(ctx, req.ID, "bob", "")
	require.NoError(t, err)
	assert.True(t, after.HasApproval("bob"))

	// alice was named via the team and is still a maintainer, fine; but
	// carol was removed and loses her rights.
	_, err = e.Approve(ctx, req.ID, "carol", "")
	assert.ErrorIs(t, err, ErrUnauthorizedReviewer)
}

// TestReject verifies rejection closes the review immediately, even
// with approvals already recorded, and requires a reason.
func TestReject(t *testing.T) {
	e, _, notifier := testEngine(t)
	ctx := context.Background()

	req, err := e.CreateReviewRequest(ctx, createParams())
	require.NoError(t, err)

	_, err = e.Approve(ctx, req.ID, "alice", "")
	require.NoError(t, err)

	_, err = e.Reject(ctx, req.ID, "carol", "")
	assert.Error(t, err)

	rejected, err := e.Reject(ctx, req.ID, "carol", "breaks the mobile client")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.Resolution)
	assert.Equal(t, "carol", rejected.Resolution.By)
	assert.Equal(t, "breaks the mobile client", rejected.Resolution.Reason)
	// The earlier approval stays on the record.
	assert.Len(t, rejected.Approvals, 1)

	require.Len(t, notifier.byType(notify.TypeReviewRejected), 1)

	// Terminal means terminal.
	_, err = e.Reject(ctx, req.ID, "carol", "again")
	assert.ErrorIs(t, err, ErrReviewClosed)
	_, err = e.Approve(ctx, req.ID, "carol", "")
	assert.ErrorIs(t, err, ErrReviewClosed)
}

// TestCancel verifies the requester or an authorized reviewer may
// cancel, strangers may not.
func TestCancel(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	req, err := e.CreateReviewRequest(ctx, createParams())
	require.NoError(t, err)

	_, err = e.Cancel(ctx, req.ID, "mallory", "go away")
	assert.ErrorIs(t, err, ErrUnauthorizedReviewer)

	cancelled, err := e.Cancel(ctx, req.ID, "dave", "superseded by v2 proposal")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "dave", cancelled.Resolution.By)

	// Reviewers can cancel too.
	req2, err := e.CreateReviewRequest(ctx, createParams())
	require.NoError(t, err)
	cancelled2, err := e.Cancel(ctx, req2.ID, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled2.Status)
}

// TestAddComment verifies comments on pending reviews and immutability
// after close.
func TestAddComment(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	req, err := e.CreateReviewRequest(ctx, createParams())
	require.NoError(t, err)

	updated, err := e.AddComment(ctx, req.ID, "bob", "does checkout keep working?")
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, "bob", updated.Comments[0].Author)

	_, err = e.AddComment(ctx, req.ID, "", "body")
	assert.Error(t, err)
	_, err = e.AddComment(ctx, req.ID, "bob", "")
	assert.Error(t, err)

	_, err = e.Cancel(ctx, req.ID, "dave", "")
	require.NoError(t, err)
	_, err = e.AddComment(ctx, req.ID, "bob", "too late")
	assert.ErrorIs(t, err, ErrReviewClosed)
}

// TestCheckApprovalStatus verifies the live pending expansion and the
// needed counter.
func TestCheckApprovalStatus(t *testing.T) {
	e, directory, _ := testEngine(t)
	ctx := context.Background()

	req, err := e.CreateReviewRequest(ctx, createParams())
	require.NoError(t, err)

	st, err := e.CheckApprovalStatus(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st.Status)
	assert.False(t, st.IsApproved)
	assert.Equal(t, 2, st.ApprovalsNeeded)
	assert.ElementsMatch(t, []string{"alice", "carol"}, st.PendingReviewers)

	_, err = e.Approve(ctx, req.ID, "alice", "")
	require.NoError(t, err)

	st, err = e.CheckApprovalStatus(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, st.Approvers)
	assert.Equal(t, []string{"carol"}, st.PendingReviewers)
	assert.Equal(t, 1, st.ApprovalsNeeded)

	// A stale team reference degrades to an empty pending list rather
	// than an error.
	directory.Replace(map[string][]teams.Member{})
	st, err = e.CheckApprovalStatus(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, st.PendingReviewers)

	_, err = e.CheckApprovalStatus(ctx, "nope")
	assert.ErrorIs(t, err, ErrReviewNotFound)
}

// TestListAndInbox verifies filtering and that the inbox tracks live
// authorization and prior approvals.
func TestListAndInbox(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	r1, err := e.CreateReviewRequest(ctx, createParams())
	require.NoError(t, err)

	p2 := createParams()
	p2.ChangeID = "chg-2"
	r2, err := e.CreateReviewRequest(ctx, p2)
	require.NoError(t, err)

	_, err = e.Cancel(ctx, r2.ID, "dave", "")
	require.NoError(t, err)

	all, err := e.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := e.ListByStatus(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r1.ID, pending[0].ID)

	_, err = e.ListByStatus(ctx, Status("bogus"))
	assert.Error(t, err)

	inbox, err := e.Inbox(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, r1.ID, inbox[0].ID)

	// Already-approved reviews drop out of the reviewer's inbox.
	_, err = e.Approve(ctx, r1.ID, "alice", "")
	require.NoError(t, err)
	inbox, err = e.Inbox(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, inbox)

	// Unauthorized users have empty inboxes, not errors.
	inbox, err = e.Inbox(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

// TestConcurrentApprovals verifies concurrent approvals on one review
// serialize without losing or double-counting any.
func TestConcurrentApprovals(t *testing.T) {
	e, directory, _ := testEngine(t)
	ctx := context.Background()

	directory.Replace(map[string][]teams.Member{
		"payments": {
			{Username: "r0", Role: teams.RoleMaintainer},
			{Username: "r1", Role: teams.RoleMaintainer},
			{Username: "r2", Role: teams.RoleMaintainer},
			{Username: "r3", Role: teams.RoleMaintainer},
			{Username: "r4", Role: teams.RoleMaintainer},
		},
	})

	p := createParams()
	p.ApprovalCount = 5
	req, err := e.CreateReviewRequest(ctx, p)
	require.NoError(t, err)

	var wg sync.WaitGroup
	reviewers := []string{"r0", "r1", "r2", "r3", "r4"}
	for _, reviewer := range reviewers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			// Each reviewer approves twice; the repeat must be a no-op.
			for i := 0; i < 2; i++ {
				_, err := e.Approve(ctx, req.ID, name, "")
				assert.NoError(t, err)
			}
		}(reviewer)
	}
	wg.Wait()

	final, err := e.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, final.Status)
	assert.Len(t, final.Approvals, 5)
	assert.ElementsMatch(t, reviewers, approverNames(final.Approvals))
}
