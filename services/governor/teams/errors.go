// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package teams

import "errors"

// Sentinel errors for directory lookups.
var (
	// ErrTeamNotFound indicates the directory has no team by that name.
	ErrTeamNotFound = errors.New("team not found")

	// ErrInvalidDirectory indicates the directory file failed validation.
	ErrInvalidDirectory = errors.New("invalid team directory")
)
