// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"errors"
	"fmt"
)

var (
	// ErrReviewNotFound indicates the review id does not exist.
	ErrReviewNotFound = errors.New("review not found")

	// ErrUnauthorizedReviewer indicates the actor is neither a named
	// reviewer nor a qualifying member of a referenced team.
	ErrUnauthorizedReviewer = errors.New("reviewer not authorized for this review")

	// ErrReviewClosed indicates the review reached a terminal status and
	// can no longer be modified.
	ErrReviewClosed = errors.New("review is closed")
)

// WorkflowError wraps a failure in a review workflow operation with the
// review it concerns.
type WorkflowError struct {
	ReviewID string
	Op       string
	Err      error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("review %s: %s: %v", e.ReviewID, e.Op, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}
