// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify delivers governance notifications to teams.
//
// Delivery is fire-and-forget from the engine's perspective: the
// tracker and review engine hand notifications to a Notifier and move
// on. Retry, backoff, and rate limiting live here, never in decision
// logic.
package notify

import (
	"context"
	"time"
)

// Notification event types.
const (
	// TypeSchemaChange announces a tracked schema change to an
	// affected team.
	TypeSchemaChange = "schema_change"

	// TypeReviewRequested tells a team a review needs their approval.
	TypeReviewRequested = "review_requested"

	// TypeReviewApproved announces that a review reached its approval
	// requirement.
	TypeReviewApproved = "review_approved"

	// TypeReviewRejected announces that a reviewer rejected a review.
	TypeReviewRejected = "review_rejected"
)

// Notification is one message addressed to a team.
type Notification struct {
	// ID is the delivery identifier (UUID), set by the dispatcher when
	// empty.
	ID string `json:"id"`

	// Team is the routing key: the receiving team's name.
	Team string `json:"team"`

	// Type is the event type (see the Type constants).
	Type string `json:"type"`

	// Subject is the one-line summary.
	Subject string `json:"subject"`

	// Body is the human-readable message.
	Body string `json:"body,omitempty"`

	// Payload carries structured event data for machine consumers.
	Payload map[string]any `json:"payload,omitempty"`

	// CreatedAt is when the notification was produced (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers notifications. Implementations own their delivery
// guarantees; callers assume at-least-once and never block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards notifications. Used in tests and when
// notification delivery is disabled.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

var _ Notifier = NopNotifier{}
