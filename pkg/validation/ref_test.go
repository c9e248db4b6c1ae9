// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateSchemaRef covers both registry-style paths and bare
// service names, plus the injection-style inputs the validator exists
// to reject.
func TestValidateSchemaRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"registry path", "registry.example.com/payments/orders", false},
		{"bare service name", "checkout-service", false},
		{"single segment with dots", "orders.v1", false},
		{"empty", "", true},
		{"embedded version", "payments/orders@v2", true},
		{"path traversal", "payments/../secrets", true},
		{"leading slash", "/payments/orders", true},
		{"trailing slash", "payments/orders/", true},
		{"too long", strings.Repeat("a", 257), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchemaRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestValidateVersion checks the semver-with-leading-v convention.
func TestValidateVersion(t *testing.T) {
	assert.NoError(t, ValidateVersion("v1.2.3"))
	assert.NoError(t, ValidateVersion("v2.0.0-rc.1"))

	assert.Error(t, ValidateVersion(""))
	assert.Error(t, ValidateVersion("1.2.3"))
	assert.Error(t, ValidateVersion("v1.2.3.4"))
	assert.Error(t, ValidateVersion("latest"))
}

// TestValidateName checks the store-key-safe name grammar.
func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("payments"))
	assert.NoError(t, ValidateName("team-checkout_v2.eu"))
	assert.NoError(t, ValidateName("a"))
	assert.NoError(t, ValidateName(strings.Repeat("a", 64)))

	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("Payments"))
	assert.Error(t, ValidateName("-leading-hyphen"))
	assert.Error(t, ValidateName(".leading-dot"))
	assert.Error(t, ValidateName("has space"))
	assert.Error(t, ValidateName("has/slash"))
	assert.Error(t, ValidateName(strings.Repeat("a", 65)))
}

// TestSanitizeName verifies trimming and lowercasing before validation.
func TestSanitizeName(t *testing.T) {
	got, err := SanitizeName("  Payments-Team  ")
	require.NoError(t, err)
	assert.Equal(t, "payments-team", got)

	_, err = SanitizeName("   ")
	assert.Error(t, err)

	_, err = SanitizeName("bad name")
	assert.Error(t, err)
}
