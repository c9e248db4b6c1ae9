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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/AleutianAI/strait/services/governor/notify"
	"github.com/AleutianAI/strait/services/governor/storage"
	"github.com/AleutianAI/strait/services/governor/teams"
)

// TestLifecycle_Rapid drives a review through random operation
// sequences and checks the state-machine invariants after every step:
// at most one terminal transition, no approvals or comments once
// closed, approvals deduplicated per reviewer, and the resolution set
// exactly when the status is terminal.
func TestLifecycle_Rapid(t *testing.T) {
	reviewers := []string{"alice", "carol", "erin"}

	rapid.Check(t, func(rt *rapid.T) {
		store := storage.NewMemory()
		defer store.Close()

		directory := teams.NewStaticDirectory(map[string][]teams.Member{
			"payments": {
				{Username: "alice", Role: teams.RoleMaintainer},
				{Username: "carol", Role: teams.RoleAdmin},
				{Username: "erin", Role: teams.RoleMaintainer},
			},
		})
		e := NewEngine(store, directory, notify.NopNotifier{}, nil)
		ctx := context.Background()

		req, err := e.CreateReviewRequest(ctx, CreateParams{
			ChangeID:      "chg-1",
			Target:        "orders",
			OwningTeam:    "payments",
			Requester:     "dave",
			Reviewers:     []string{"@payments"},
			ApprovalCount: rapid.IntRange(1, 3).Draw(rt, "approval_count"),
		})
		require.NoError(rt, err)

		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			before, err := e.Get(ctx, req.ID)
			require.NoError(rt, err)

			actor := rapid.SampledFrom(reviewers).Draw(rt, "actor")
			op := rapid.IntRange(0, 3).Draw(rt, "op")

			switch op {
			case 0:
				after, err := e.Approve(ctx, req.ID, actor, "")
				if before.Status.Terminal() && !before.HasApproval(actor) {
					require.ErrorIs(rt, err, ErrReviewClosed)
				} else {
					require.NoError(rt, err)
					require.True(rt, after.HasApproval(actor))
				}
			case 1:
				_, err := e.Reject(ctx, req.ID, actor, "no")
				if before.Status.Terminal() {
					require.ErrorIs(rt, err, ErrReviewClosed)
				} else {
					require.NoError(rt, err)
				}
			case 2:
				_, err := e.Cancel(ctx, req.ID, "dave", "")
				if before.Status.Terminal() {
					require.ErrorIs(rt, err, ErrReviewClosed)
				} else {
					require.NoError(rt, err)
				}
			case 3:
				_, err := e.AddComment(ctx, req.ID, actor, "note")
				if before.Status.Terminal() {
					require.ErrorIs(rt, err, ErrReviewClosed)
				} else {
					require.NoError(rt, err)
				}
			}

			cur, err := e.Get(ctx, req.ID)
			require.NoError(rt, err)

			// Approvals stay deduplicated.
			seen := map[string]bool{}
			for _, a := range cur.Approvals {
				require.False(rt, seen[a.Reviewer], "duplicate approval for %s", a.Reviewer)
				seen[a.Reviewer] = true
			}

			// Resolution exists iff the review is closed, and matches
			// the status.
			if cur.Status.Terminal() {
				require.NotNil(rt, cur.Resolution)
				require.Equal(rt, cur.Status, cur.Resolution.Action)
			} else {
				require.Nil(rt, cur.Resolution)
				require.Less(rt, len(cur.Approvals), cur.ApprovalCount)
			}

			// A closed review never changes status again.
			if before.Status.Terminal() {
				require.Equal(rt, before.Status, cur.Status)
			}
		}

		// The status summary never errors and agrees with the record.
		st, err := e.CheckApprovalStatus(ctx, req.ID)
		require.NoError(rt, err)
		final, err := e.Get(ctx, req.ID)
		require.NoError(rt, err)
		require.Equal(rt, final.Status, st.Status)
		require.Equal(rt, final.Status == StatusApproved, st.IsApproved)
	})
}

// TestWorkflowError verifies the wrapper preserves errors.Is matching.
func TestWorkflowError(t *testing.T) {
	err := &WorkflowError{ReviewID: "rev-1", Op: "approve", Err: ErrReviewClosed}
	require.True(t, errors.Is(err, ErrReviewClosed))
	require.Contains(t, err.Error(), "rev-1")
	require.Contains(t, err.Error(), "approve")
}
