// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides the durable store contract for the governance
// engine plus BadgerDB, Redis, and in-memory implementations.
//
// # Description
//
// Every state-changing governance operation (approve, reject, cancel,
// breaking-change approval recording, change record finalization) goes
// through Update, a single atomic read-modify-write keyed by entity id.
// Concurrent updates of the same key are serialized by the backend:
// BadgerDB uses optimistic transactions with conflict retry, Redis uses
// WATCH-based optimistic transactions, and the memory store uses per-key
// mutex striping. Reads run against a consistent snapshot without locking
// writers out.
//
// Values are opaque bytes; callers own serialization. Keys are built with
// the helpers in this package so all backends share one keyspace layout:
//
//	change/{change_id}
//	review/{review_id}
//	bcapproval/{repository}/{location}
//	audit/{timestamp}/{record_id}
//
// # Thread Safety
//
// All implementations are safe for concurrent use.
package storage

import (
	"context"
	"net/url"
)

// Keyspace prefixes. List with one of these to enumerate an entity type.
const (
	// PrefixChange holds tracked change records.
	PrefixChange = "change/"

	// PrefixReview holds review requests.
	PrefixReview = "review/"

	// PrefixBreakingApproval holds recorded breaking-change approvals.
	PrefixBreakingApproval = "bcapproval/"

	// PrefixAudit holds append-only audit records.
	PrefixAudit = "audit/"
)

// UpdateFunc transforms the current value of a key inside an atomic
// update. found is false when the key does not exist yet (current is nil).
// Returning an error aborts the update and propagates the error unchanged.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// Entry is one key/value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the durable store contract. Implementations: BadgerStore
// (embedded, default), RedisStore (shared deployments), MemoryStore
// (tests and dev mode).
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the value unconditionally.
	Put(ctx context.Context, key string, value []byte) error

	// Create writes the value only if the key does not exist yet.
	// Returns ErrAlreadyExists otherwise. Used for append-only records.
	Create(ctx context.Context, key string, value []byte) error

	// Update applies fn to the current value as a single atomic
	// read-modify-write. Concurrent updates of the same key are
	// serialized; a lost race is retried with a fresh read before
	// failing with ErrConflict.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Delete removes the key. Returns ErrNotFound if absent.
	Delete(ctx context.Context, key string) error

	// List returns all entries whose key starts with prefix, in
	// ascending key order.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}

// ChangeKey builds the store key for a change record.
func ChangeKey(changeID string) string {
	return PrefixChange + changeID
}

// ReviewKey builds the store key for a review request.
func ReviewKey(reviewID string) string {
	return PrefixReview + reviewID
}

// BreakingApprovalKey builds the store key for a breaking-change approval.
// Repository and location are path-escaped so neither can forge another
// key's prefix.
func BreakingApprovalKey(repository, location string) string {
	return PrefixBreakingApproval + url.PathEscape(repository) + "/" + url.PathEscape(location)
}

// BreakingApprovalRepoPrefix builds the List prefix covering every
// approval recorded for one repository.
func BreakingApprovalRepoPrefix(repository string) string {
	return PrefixBreakingApproval + url.PathEscape(repository) + "/"
}

// AuditKey builds the store key for an audit record. The RFC 3339
// timestamp prefix keeps List output in chronological order.
func AuditKey(timestamp, recordID string) string {
	return PrefixAudit + timestamp + "/" + recordID
}
