// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import "errors"

var (
	// ErrNilGraph is returned when analysis is requested without a
	// dependency graph.
	ErrNilGraph = errors.New("dependency graph is nil")

	// ErrNilAssessment is returned when plan generation is requested
	// without a prior impact assessment.
	ErrNilAssessment = errors.New("impact assessment is nil")
)
