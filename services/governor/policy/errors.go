// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyNotFound is returned when no review policy matches the
	// repository, the owning team, or the "default" key.
	ErrPolicyNotFound = errors.New("no applicable review policy configured")

	// ErrInvalidConfig is returned when the governance configuration
	// fails validation.
	ErrInvalidConfig = errors.New("invalid governance configuration")

	// ErrUnknownPolicyAction is returned when a policy value is not one
	// of allow, warn, error, or require_approval. Unknown values are an
	// error, never a silent default.
	ErrUnknownPolicyAction = errors.New("unknown policy action")
)

// ConfigurationError reports a missing or invalid policy reference.
type ConfigurationError struct {
	// Reference is the policy key that failed to resolve.
	Reference string

	// Err is the underlying cause.
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("policy configuration %q: %v", e.Reference, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// GovernanceError reports an unenforceable policy decision, such as an
// unknown policy action value.
type GovernanceError struct {
	// Action is the offending policy value.
	Action string

	// Err is the underlying cause.
	Err error
}

func (e *GovernanceError) Error() string {
	return fmt.Sprintf("policy action %q: %v", e.Action, e.Err)
}

func (e *GovernanceError) Unwrap() error {
	return e.Err
}
