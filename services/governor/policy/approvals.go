// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/strait/pkg/validation"
	"github.com/AleutianAI/strait/services/governor/storage"
)

// BreakingApproval records that a breaking change at a specific
// location was explicitly approved for a repository.
type BreakingApproval struct {
	Repository string    `json:"repository"`
	Location   string    `json:"location"`
	Approver   string    `json:"approver"`
	Note       string    `json:"note,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
}

// ApprovalLookup is the read side of the breaking-change approval
// store, consumed by the policy enforcer.
type ApprovalLookup interface {
	HasBreakingApproval(ctx context.Context, repository, location string) (bool, error)
}

// ApprovalStore persists breaking-change approvals keyed by
// (repository, location). The first approval for a key wins; repeat
// grants are idempotent.
type ApprovalStore struct {
	store storage.Store
}

// NewApprovalStore creates an approval store over the shared key/value
// store.
func NewApprovalStore(store storage.Store) *ApprovalStore {
	return &ApprovalStore{store: store}
}

// Record grants approval for a breaking change. The write is an atomic
// read-modify-write: concurrent grants for the same key keep the first
// one.
func (s *ApprovalStore) Record(ctx context.Context, approval BreakingApproval) error {
	if err := validation.ValidateSchemaRef(approval.Repository); err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	if approval.Location == "" {
		return fmt.Errorf("location is required")
	}
	if approval.Approver == "" {
		return fmt.Errorf("approver is required")
	}
	if approval.GrantedAt.IsZero() {
		approval.GrantedAt = time.Now().UTC()
	}

	key := storage.BreakingApprovalKey(approval.Repository, approval.Location)
	return s.store.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
		if found {
			return current, nil
		}
		return json.Marshal(approval)
	})
}

// HasBreakingApproval reports whether an approval exists for the
// (repository, location) key.
func (s *ApprovalStore) HasBreakingApproval(ctx context.Context, repository, location string) (bool, error) {
	_, err := s.store.Get(ctx, storage.BreakingApprovalKey(repository, location))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get returns the approval for a (repository, location) key.
func (s *ApprovalStore) Get(ctx context.Context, repository, location string) (*BreakingApproval, error) {
	data, err := s.store.Get(ctx, storage.BreakingApprovalKey(repository, location))
	if err != nil {
		return nil, err
	}
	var approval BreakingApproval
	if err := json.Unmarshal(data, &approval); err != nil {
		return nil, fmt.Errorf("decode breaking approval: %w", err)
	}
	return &approval, nil
}

// List returns all approvals recorded for a repository.
func (s *ApprovalStore) List(ctx context.Context, repository string) ([]BreakingApproval, error) {
	entries, err := s.store.List(ctx, storage.BreakingApprovalRepoPrefix(repository))
	if err != nil {
		return nil, err
	}
	approvals := make([]BreakingApproval, 0, len(entries))
	for _, entry := range entries {
		var approval BreakingApproval
		if err := json.Unmarshal(entry.Value, &approval); err != nil {
			return nil, fmt.Errorf("decode breaking approval %q: %w", entry.Key, err)
		}
		approvals = append(approvals, approval)
	}
	return approvals, nil
}

var _ ApprovalLookup = (*ApprovalStore)(nil)
