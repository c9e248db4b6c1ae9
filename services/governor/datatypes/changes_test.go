// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/schema"
)

func validTrackRequest() TrackChangeRequest {
	return TrackChangeRequest{
		Target:     "orders",
		Kind:       "modification",
		Repository: "github.com/acme/orders",
		OwningTeam: "payments",
	}
}

// TestTrackChangeRequest_Validate verifies the wire-level constraints on
// tracking submissions.
func TestTrackChangeRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TrackChangeRequest)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(r *TrackChangeRequest) {},
		},
		{
			name:    "missing target",
			mutate:  func(r *TrackChangeRequest) { r.Target = "" },
			wantErr: true,
		},
		{
			name:    "unknown kind",
			mutate:  func(r *TrackChangeRequest) { r.Kind = "rename" },
			wantErr: true,
		},
		{
			name:    "missing repository",
			mutate:  func(r *TrackChangeRequest) { r.Repository = "" },
			wantErr: true,
		},
		{
			name:    "missing owning team",
			mutate:  func(r *TrackChangeRequest) { r.OwningTeam = "" },
			wantErr: true,
		},
		{
			name:    "empty affected team entry",
			mutate:  func(r *TrackChangeRequest) { r.AffectedTeams = []string{"web", ""} },
			wantErr: true,
		},
		{
			name: "too many affected teams",
			mutate: func(r *TrackChangeRequest) {
				r.AffectedTeams = make([]string, MaxAffectedTeams+1)
				for i := range r.AffectedTeams {
					r.AffectedTeams[i] = "team"
				}
			},
			wantErr: true,
		},
		{
			name:    "description too long",
			mutate:  func(r *TrackChangeRequest) { r.Description = strings.Repeat("x", MaxDescriptionLen+1) },
			wantErr: true,
		},
		{
			name:    "oversized schema payload",
			mutate:  func(r *TrackChangeRequest) { r.CurrentSchema = strings.Repeat("x", MaxSchemaPayloadBytes+1) },
			wantErr: true,
		},
		{
			name:    "payload at the byte limit",
			mutate:  func(r *TrackChangeRequest) { r.BaselineSchema = strings.Repeat("x", MaxSchemaPayloadBytes) },
			wantErr: false,
		},
		{
			name:   "author optional",
			mutate: func(r *TrackChangeRequest) { r.Author = "" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validTrackRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestTrackChangeRequest_Submission verifies conversion and the actor
// fallback for the author.
func TestTrackChangeRequest_Submission(t *testing.T) {
	req := validTrackRequest()
	req.CurrentSchema = "current"
	req.BaselineSchema = "baseline"
	req.Diff = "--- a/orders.proto"
	req.Version = "v2.0.0"
	req.AffectedTeams = []string{"web"}
	req.Breaking = true

	sub := req.Submission("alice")
	assert.Equal(t, "alice", sub.Change.Author)
	assert.Equal(t, schema.KindModification, sub.Change.Kind)
	assert.Equal(t, []string{"web"}, sub.Change.AffectedTeams)
	assert.True(t, sub.Change.Breaking)
	assert.Equal(t, "current", sub.Current)
	assert.Equal(t, "baseline", sub.Baseline)
	assert.Equal(t, "--- a/orders.proto", sub.Diff)
	assert.Equal(t, "v2.0.0", sub.Change.Version)
	assert.Empty(t, sub.Change.ID)

	req.Author = "dave"
	sub = req.Submission("alice")
	assert.Equal(t, "dave", sub.Change.Author)
}

// TestRegisterDependencyRequest verifies registration validation and
// conversion; transitive edges cannot be registered over the wire.
func TestRegisterDependencyRequest(t *testing.T) {
	valid := RegisterDependencyRequest{
		Target:     "orders",
		Service:    "storefront",
		Repository: "github.com/acme/storefront",
		Kind:       "direct",
		Strength:   "critical",
		Team:       "web",
	}
	require.NoError(t, valid.Validate())

	edge := valid.Edge()
	assert.Equal(t, depgraph.KindDirect, edge.Kind)
	assert.Equal(t, depgraph.StrengthCritical, edge.Strength)
	assert.Equal(t, "web", edge.Team)

	transitive := valid
	transitive.Kind = "transitive"
	assert.Error(t, transitive.Validate())

	badStrength := valid
	badStrength.Strength = "severe"
	assert.Error(t, badStrength.Validate())

	missingTeam := valid
	missingTeam.Team = ""
	assert.Error(t, missingTeam.Validate())
}

// TestPolicyCheckRequest verifies dry-run validation and the finding
// conversion.
func TestPolicyCheckRequest(t *testing.T) {
	req := PolicyCheckRequest{
		Repository: "github.com/acme/orders",
		OwningTeam: "payments",
		Target:     "orders",
		Kind:       "modification",
		Breaking:   true,
		Approvers:  []string{"alice"},
		Findings: []BreakingFinding{
			{Type: "FIELD_NO_DELETE", Location: "orders.proto:42", Impact: "critical"},
		},
	}
	require.NoError(t, req.Validate())

	change := req.Change()
	assert.Equal(t, "dry-run", change.ID)
	assert.Equal(t, schema.KindModification, change.Kind)
	assert.True(t, change.Breaking)

	changes := req.BreakingChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, breaking.TierCritical, changes[0].Impact)
	assert.Equal(t, "github.com/acme/orders", changes[0].Repository)

	t.Run("no findings converts to nil", func(t *testing.T) {
		bare := req
		bare.Findings = nil
		assert.Nil(t, bare.BreakingChanges())
	})

	t.Run("finding without location rejected", func(t *testing.T) {
		bad := req
		bad.Findings = []BreakingFinding{{Type: "FIELD_NO_DELETE", Impact: "high"}}
		assert.Error(t, bad.Validate())
	})

	t.Run("unknown impact tier rejected", func(t *testing.T) {
		bad := req
		bad.Findings = []BreakingFinding{{Type: "FIELD_NO_DELETE", Location: "a:1", Impact: "fatal"}}
		assert.Error(t, bad.Validate())
	})
}

// TestRecordBreakingApprovalRequest verifies the approver comes from the
// actor, never the body.
func TestRecordBreakingApprovalRequest(t *testing.T) {
	req := RecordBreakingApprovalRequest{
		Repository: "github.com/acme/orders",
		Location:   "orders.proto:42",
		Note:       "coordinated with web",
	}
	require.NoError(t, req.Validate())

	approval := req.Approval("alice")
	assert.Equal(t, "alice", approval.Approver)
	assert.Equal(t, "orders.proto:42", approval.Location)

	missing := RecordBreakingApprovalRequest{Repository: "github.com/acme/orders"}
	assert.Error(t, missing.Validate())
}
