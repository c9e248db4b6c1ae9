// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import "errors"

var (
	// ErrQueueFull is returned when the dispatcher queue is at capacity.
	// The notification is dropped; callers treat this as a delivery
	// failure that must not block them.
	ErrQueueFull = errors.New("notification queue full")

	// ErrDispatcherClosed is returned when enqueueing after Close.
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)
