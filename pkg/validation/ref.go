// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that end up
// in store keys, file paths, or subprocess arguments. Using these validators
// prevents injection attacks (key-prefix forgery, command injection, path
// traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
)

// namePattern matches valid service and team names.
// Allows: lowercase letters, digits, hyphens, underscores, dots.
// Max length: 64 characters.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._\-]{0,63}$`)

// ValidateSchemaRef validates a schema target or repository reference.
// Both full registry paths ("registry.example.com/payments/orders") and
// service-style names ("checkout-service") are accepted; consuming
// services register schemas under their own name, so the two namespaces
// overlap.
//
// The path component rules follow Go import path rules: no "..", no
// leading or trailing slashes, safe for use as a store key segment and
// a filesystem path.
//
// Example:
//
//	if err := validation.ValidateSchemaRef(ref); err != nil {
//	    return fmt.Errorf("invalid schema ref: %w", err)
//	}
func ValidateSchemaRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("schema ref cannot be empty")
	}
	if strings.Contains(ref, "@") {
		return fmt.Errorf("schema ref %q must not carry a version; pass versions separately", ref)
	}
	if len(ref) > 256 {
		return fmt.Errorf("schema ref exceeds 256 characters")
	}
	if err := module.CheckImportPath(ref); err != nil {
		return fmt.Errorf("invalid schema ref %q: %w", ref, err)
	}
	return nil
}

// ValidateVersion validates a schema version reference. Versions follow
// semver with the leading "v" ("v1.2.3", "v2.0.0-rc.1").
func ValidateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("version cannot be empty")
	}
	if !semver.IsValid(version) {
		return fmt.Errorf("invalid version %q (expected semver with leading v, e.g. v1.2.3)", version)
	}
	return nil
}

// ValidateName validates a service or team name used in store keys and
// notification routing.
//
// Valid names:
//   - 1-64 characters
//   - lowercase letters, digits
//   - dots, hyphens, underscores after the first character
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name %q (must be 1-64 lowercase alphanumeric chars, dots, hyphens, or underscores)", name)
	}
	return nil
}

// SanitizeName normalizes and validates a service or team name.
// Returns the lowercase name if valid, or an error if invalid.
func SanitizeName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if err := ValidateName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
