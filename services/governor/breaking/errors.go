// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package breaking

import (
	"errors"
	"fmt"
)

// Sentinel errors for detector operations.
var (
	// ErrDetectorNotConfigured indicates no detector command was set up.
	ErrDetectorNotConfigured = errors.New("breaking change detector not configured")

	// ErrMalformedOutput indicates the tool produced output the adapter
	// cannot parse.
	ErrMalformedOutput = errors.New("malformed detector output")
)

// DetectionError reports a failed detector invocation.
//
// # Description
//
// Wraps the underlying failure (tool exit, timeout, parse error) with
// enough context to debug the tool invocation. Detection failures are
// never degraded to "no breaking changes found"; callers receive this
// error and must treat the change as unclassified.
type DetectionError struct {
	// Tool is the detector command name.
	Tool string

	// Stage is where the failure occurred: "setup", "execute", or "parse".
	Stage string

	// ExitCode is the tool's exit code, or -1 if it did not run.
	ExitCode int

	// Stderr is the tail of the tool's stderr output.
	Stderr string

	// Err is the underlying error.
	Err error
}

// Error returns a human-readable error message.
func (e *DetectionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("detector %s failed during %s (exit %d): %v: %s",
			e.Tool, e.Stage, e.ExitCode, e.Err, e.Stderr)
	}
	return fmt.Sprintf("detector %s failed during %s: %v", e.Tool, e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DetectionError) Unwrap() error {
	return e.Err
}
