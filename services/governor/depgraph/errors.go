// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package depgraph

import (
	"errors"
	"fmt"
)

// ErrTargetNotRegistered is returned when a dependency graph is requested
// for a schema target that has no registered dependents and no registered
// upstream dependencies.
var ErrTargetNotRegistered = errors.New("target not registered in dependency registry")

// AnalysisError wraps a dependency analysis failure with the target that
// was being analyzed.
type AnalysisError struct {
	// Target is the schema target the analysis was requested for.
	Target string

	// Err is the underlying cause.
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("dependency analysis for %q: %v", e.Target, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
