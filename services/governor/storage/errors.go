// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrAlreadyExists indicates a Create on a key that is already present.
	ErrAlreadyExists = errors.New("key already exists")

	// ErrConflict indicates an atomic update lost the race too many times.
	ErrConflict = errors.New("transaction conflict")

	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// ConflictError reports an Update that exhausted its retry budget.
//
// Wraps ErrConflict so callers can match with errors.Is while still
// seeing which key was contended.
type ConflictError struct {
	Key      string
	Attempts int
}

// Error returns a human-readable error message.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("update of key %q conflicted %d times", e.Key, e.Attempts)
}

// Unwrap returns ErrConflict for errors.Is/As support.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
