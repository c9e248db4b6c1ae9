// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseChangeKind verifies wire-level kind parsing.
func TestParseChangeKind(t *testing.T) {
	for _, s := range []string{"addition", "modification", "removal"} {
		kind, err := ParseChangeKind(s)
		require.NoError(t, err)
		assert.Equal(t, ChangeKind(s), kind)
	}

	_, err := ParseChangeKind("rename")
	assert.Error(t, err)
	_, err = ParseChangeKind("")
	assert.Error(t, err)
}

func validChange() *Change {
	return &Change{
		ID:            "chg-1",
		Target:        "registry.example.com/payments/orders",
		Kind:          KindModification,
		Author:        "alice",
		Repository:    "github.com/acme/payments",
		OwningTeam:    "payments",
		AffectedTeams: []string{"checkout"},
		Breaking:      false,
		CreatedAt:     time.Now().UTC(),
	}
}

// TestChangeValidate covers each identifier rule the validator enforces.
func TestChangeValidate(t *testing.T) {
	require.NoError(t, validChange().Validate())

	tests := []struct {
		name   string
		mutate func(*Change)
	}{
		{"missing id", func(c *Change) { c.ID = "" }},
		{"empty target", func(c *Change) { c.Target = "" }},
		{"target with version", func(c *Change) { c.Target = "orders@v2" }},
		{"version without leading v", func(c *Change) { c.Version = "2.0.0" }},
		{"garbage version", func(c *Change) { c.Version = "latest" }},
		{"bad kind", func(c *Change) { c.Kind = "rename" }},
		{"missing author", func(c *Change) { c.Author = "" }},
		{"bad repository", func(c *Change) { c.Repository = "../escape" }},
		{"bad owning team", func(c *Change) { c.OwningTeam = "Payments Team" }},
		{"bad affected team", func(c *Change) { c.AffectedTeams = []string{"checkout", "bad team"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validChange()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

// TestChangeValidate_ServiceStyleNames verifies short service names work
// for both target and repository.
func TestChangeValidate_ServiceStyleNames(t *testing.T) {
	c := validChange()
	c.Target = "checkout-service"
	c.Repository = "checkout-service"
	assert.NoError(t, c.Validate())
}

// TestChangeValidate_Version verifies semver versions pass and the field
// stays optional.
func TestChangeValidate_Version(t *testing.T) {
	c := validChange()
	assert.NoError(t, c.Validate())

	c.Version = "v2.0.0"
	assert.NoError(t, c.Validate())

	c.Version = "v2.0.0-rc.1"
	assert.NoError(t, c.Validate())
}
