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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/strait/pkg/ux"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Messages
// =============================================================================

// actionDoneMsg reports the result of an approve or reject call.
type actionDoneMsg struct {
	reviewID string
	action   string
	err      error
}

// =============================================================================
// Decisions
// =============================================================================

type inboxDecision int

const (
	decisionNone inboxDecision = iota
	decisionApproved
	decisionRejected
	decisionSkipped
	decisionFailed
)

// =============================================================================
// Model
// =============================================================================

// inboxModel is the bubbletea model for the review inbox.
//
// # Description
//
// Shows the reviews waiting on the actor one at a time with their
// approval progress, and applies approve/reject/skip decisions through
// the governor client. API calls run as commands so the event loop
// never blocks.
//
// # Thread Safety
//
// Single-threaded use inside the bubbletea event loop only.
type inboxModel struct {
	reviews   []*review.Request
	decisions []inboxDecision
	errors    []string

	current  int
	viewport viewport.Model
	width    int
	height   int
	ready    bool

	// A decision is in flight; input is ignored until it lands.
	busy bool

	// Reject flow asks for a reason inline.
	rejecting    bool
	rejectReason string

	quitting bool

	client *governorClient
}

func newInboxModel(reviews []*review.Request, client *governorClient) inboxModel {
	return inboxModel{
		reviews:   reviews,
		decisions: make([]inboxDecision, len(reviews)),
		errors:    make([]string, len(reviews)),
		client:    client,
	}
}

// Init implements tea.Model.
func (m inboxModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m inboxModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 4
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.updateViewportContent()
		return m, nil

	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.decisions[m.current] = decisionFailed
			m.errors[m.current] = msg.err.Error()
		} else if msg.action == "approve" {
			m.decisions[m.current] = decisionApproved
		} else {
			m.decisions[m.current] = decisionRejected
		}
		return m.advance()

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		if m.rejecting {
			return m.handleRejectInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "a":
			m.busy = true
			return m, m.approveCmd()
		case "r":
			m.rejecting = true
			m.rejectReason = ""
			return m, nil
		case "s", "n":
			m.decisions[m.current] = decisionSkipped
			return m.advance()
		case "p":
			if m.current > 0 {
				m.current--
				m.updateViewportContent()
			}
			return m, nil
		case "up", "k":
			m.viewport.LineUp(1)
			return m, nil
		case "down", "j":
			m.viewport.LineDown(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleRejectInput collects the rejection reason character by character.
func (m inboxModel) handleRejectInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.rejecting = false
		return m, nil
	case "enter":
		if strings.TrimSpace(m.rejectReason) == "" {
			return m, nil
		}
		m.rejecting = false
		m.busy = true
		return m, m.rejectCmd(m.rejectReason)
	case "backspace":
		if len(m.rejectReason) > 0 {
			m.rejectReason = m.rejectReason[:len(m.rejectReason)-1]
		}
		return m, nil
	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			m.rejectReason += string(msg.Runes)
			if msg.Type == tea.KeySpace {
				m.rejectReason += " "
			}
		}
		return m, nil
	}
}

// advance moves to the next undecided review or quits when done.
func (m inboxModel) advance() (tea.Model, tea.Cmd) {
	for i := m.current + 1; i < len(m.reviews); i++ {
		if m.decisions[i] == decisionNone {
			m.current = i
			m.updateViewportContent()
			return m, nil
		}
	}
	m.quitting = true
	return m, tea.Quit
}

// =============================================================================
// Commands
// =============================================================================

func (m inboxModel) approveCmd() tea.Cmd {
	id := m.reviews[m.current].ID
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := client.ApproveReview(ctx, id, "")
		return actionDoneMsg{reviewID: id, action: "approve", err: err}
	}
}

func (m inboxModel) rejectCmd(reason string) tea.Cmd {
	id := m.reviews[m.current].ID
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := client.RejectReview(ctx, id, reason)
		return actionDoneMsg{reviewID: id, action: "reject", err: err}
	}
}

// =============================================================================
// View
// =============================================================================

var (
	inboxHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("30"))
	inboxMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	inboxAlertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// View implements tea.Model.
func (m inboxModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading inbox..."
	}

	rev := m.reviews[m.current]
	header := inboxHeaderStyle.Render(
		fmt.Sprintf("Review %d/%d  %s", m.current+1, len(m.reviews), rev.ID))
	progress := inboxMutedStyle.Render(
		fmt.Sprintf("%d/%d approvals  status: %s", len(rev.Approvals), rev.ApprovalCount, rev.Status))

	var footer string
	switch {
	case m.busy:
		footer = inboxMutedStyle.Render("Sending decision...")
	case m.rejecting:
		footer = inboxAlertStyle.Render("Reason: ") + m.rejectReason +
			inboxMutedStyle.Render("  (enter to submit, esc to abort)")
	default:
		footer = inboxMutedStyle.Render("[a]pprove  [r]eject  [s]kip  [p]revious  [q]uit")
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", header, progress, m.viewport.View(), footer)
}

// updateViewportContent renders the current review body.
func (m *inboxModel) updateViewportContent() {
	if !m.ready {
		return
	}
	rev := m.reviews[m.current]
	var b strings.Builder
	fmt.Fprintf(&b, "Target:      %s\n", rev.Target)
	fmt.Fprintf(&b, "Change:      %s\n", rev.ChangeID)
	fmt.Fprintf(&b, "Owning team: %s\n", rev.OwningTeam)
	fmt.Fprintf(&b, "Requester:   %s\n", rev.Requester)
	fmt.Fprintf(&b, "Reviewers:   %s\n", strings.Join(rev.Reviewers, ", "))
	if rev.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", rev.Description)
	}
	if len(rev.Comments) > 0 {
		b.WriteString("\nComments:\n")
		for _, comment := range rev.Comments {
			fmt.Fprintf(&b, "  %s: %s\n", comment.Author, comment.Body)
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

// printSummary reports the decisions after the program exits.
func (m inboxModel) printSummary() {
	approved, rejected, failed := 0, 0, 0
	for i, decision := range m.decisions {
		switch decision {
		case decisionApproved:
			approved++
		case decisionRejected:
			rejected++
		case decisionFailed:
			failed++
			ux.Error(fmt.Sprintf("%s: %s", m.reviews[i].ID, m.errors[i]))
		}
	}
	ux.Info(fmt.Sprintf("Inbox session: %d approved, %d rejected, %d failed", approved, rejected, failed))
}
