// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"testing"

	"github.com/AleutianAI/strait/services/governor/review"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createInboxReviews() []*review.Request {
	return []*review.Request{
		{
			ID:            "rev-1",
			ChangeID:      "chg-1",
			Target:        "orders.v1.Order",
			OwningTeam:    "payments",
			Requester:     "dave",
			Reviewers:     []string{"alice", "bob"},
			ApprovalCount: 2,
			Status:        review.StatusPending,
		},
		{
			ID:            "rev-2",
			ChangeID:      "chg-2",
			Target:        "billing.v1.Invoice",
			OwningTeam:    "payments",
			Requester:     "erin",
			Reviewers:     []string{"alice"},
			ApprovalCount: 1,
			Status:        review.StatusPending,
		},
	}
}

// sized returns the model after the initial window size message so the
// viewport is ready.
func sized(m inboxModel) inboxModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(inboxModel)
}

func TestNewInboxModel(t *testing.T) {
	model := newInboxModel(createInboxReviews(), nil)

	assert.Len(t, model.reviews, 2)
	assert.Len(t, model.decisions, 2)
	assert.Equal(t, 0, model.current)
	assert.False(t, model.ready)
}

func TestInboxModel_WindowSizeReadiesViewport(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), nil))

	assert.True(t, model.ready)
	view := model.View()
	assert.Contains(t, view, "rev-1")
	assert.Contains(t, view, "orders.v1.Order")
	assert.Contains(t, view, "[a]pprove")
}

func TestInboxModel_SkipAdvances(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), nil))

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model = next.(inboxModel)

	assert.Nil(t, cmd)
	assert.Equal(t, decisionSkipped, model.decisions[0])
	assert.Equal(t, 1, model.current)
}

func TestInboxModel_SkipLastQuits(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), nil))

	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model = next.(inboxModel)
	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model = next.(inboxModel)

	assert.True(t, model.quitting)
	require.NotNil(t, cmd)
}

func TestInboxModel_ApproveIssuesCommand(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), newGovernorClient("http://127.0.0.1:1", "alice")))

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	model = next.(inboxModel)

	assert.True(t, model.busy)
	require.NotNil(t, cmd)

	// Input is ignored while a decision is in flight.
	next, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model = next.(inboxModel)
	assert.Equal(t, decisionNone, model.decisions[0])
}

func TestInboxModel_ActionDoneRecordsDecision(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), nil))
	model.busy = true

	next, _ := model.Update(actionDoneMsg{reviewID: "rev-1", action: "approve"})
	model = next.(inboxModel)

	assert.False(t, model.busy)
	assert.Equal(t, decisionApproved, model.decisions[0])
	assert.Equal(t, 1, model.current)
}

func TestInboxModel_ActionFailureRecordsError(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), nil))
	model.busy = true

	next, _ := model.Update(actionDoneMsg{
		reviewID: "rev-1",
		action:   "approve",
		err:      errors.New("not an eligible reviewer"),
	})
	model = next.(inboxModel)

	assert.Equal(t, decisionFailed, model.decisions[0])
	assert.Contains(t, model.errors[0], "eligible reviewer")
}

func TestInboxModel_RejectFlow(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), newGovernorClient("http://127.0.0.1:1", "alice")))

	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	model = next.(inboxModel)
	assert.True(t, model.rejecting)

	// Empty reason cannot be submitted.
	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = next.(inboxModel)
	assert.True(t, model.rejecting)
	assert.Nil(t, cmd)

	for _, r := range "bad" {
		next, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		model = next.(inboxModel)
	}
	assert.Equal(t, "bad", model.rejectReason)

	next, cmd = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = next.(inboxModel)
	assert.False(t, model.rejecting)
	assert.True(t, model.busy)
	require.NotNil(t, cmd)
}

func TestInboxModel_RejectEscapeAborts(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), nil))

	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	model = next.(inboxModel)
	next, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = next.(inboxModel)

	assert.False(t, model.rejecting)
	assert.False(t, model.busy)
}

func TestInboxModel_QuitKeys(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c"} {
		model := sized(newInboxModel(createInboxReviews(), nil))
		var msg tea.KeyMsg
		if key == "ctrl+c" {
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}
		next, cmd := model.Update(msg)
		model = next.(inboxModel)

		assert.True(t, model.quitting, "key %q should quit", key)
		require.NotNil(t, cmd)
	}
}

func TestInboxModel_PreviousNavigates(t *testing.T) {
	model := sized(newInboxModel(createInboxReviews(), nil))
	model.busy = true
	next, _ := model.Update(actionDoneMsg{reviewID: "rev-1", action: "approve"})
	model = next.(inboxModel)
	require.Equal(t, 1, model.current)

	next, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	model = next.(inboxModel)
	assert.Equal(t, 0, model.current)
}
