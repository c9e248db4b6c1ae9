// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrChangeNotFound indicates the change id does not exist.
	ErrChangeNotFound = errors.New("change not found")

	// ErrPersistFailed indicates the change record or its audit record
	// could not be written. Tracking fails closed on persistence: the
	// audit trail is a compliance artifact and is never silently dropped.
	ErrPersistFailed = errors.New("change record persist failed")

	// ErrReviewNotLinked indicates the change has no associated review.
	ErrReviewNotLinked = errors.New("change has no linked review")

	// ErrPayloadsRequired indicates a modification was submitted without
	// the schema payloads detection needs.
	ErrPayloadsRequired = errors.New("modification requires current and baseline schema payloads")
)

// TrackingError wraps a failure in a change tracking operation.
type TrackingError struct {
	ChangeID string
	Op       string
	Err      error
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("change %s: %s: %v", e.ChangeID, e.Op, e.Err)
}

func (e *TrackingError) Unwrap() error {
	return e.Err
}
