// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Backend Fixtures
// =============================================================================

// backendFixture builds a fresh store for one contract-test run and
// registers cleanup with t.
type backendFixture struct {
	name string
	open func(t *testing.T) Store
}

func allBackends() []backendFixture {
	return []backendFixture{
		{
			name: "memory",
			open: func(t *testing.T) Store {
				s := NewMemory()
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
		{
			name: "badger",
			open: func(t *testing.T) Store {
				s, err := OpenBadger(InMemoryBadgerConfig())
				require.NoError(t, err)
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
		{
			name: "redis",
			open: func(t *testing.T) Store {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				s := NewRedisWithClient(client, "strait")
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}
}

// =============================================================================
// Contract Tests
// =============================================================================

// TestStore_GetPutRoundTrip verifies basic writes are readable on every
// backend and that missing keys report ErrNotFound.
func TestStore_GetPutRoundTrip(t *testing.T) {
	for _, be := range allBackends() {
		t.Run(be.name, func(t *testing.T) {
			s := be.open(t)
			ctx := context.Background()

			_, err := s.Get(ctx, "change/missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "change/abc", []byte(`{"id":"abc"}`)))
			got, err := s.Get(ctx, "change/abc")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"id":"abc"}`), got)

			// Put overwrites unconditionally.
			require.NoError(t, s.Put(ctx, "change/abc", []byte("v2")))
			got, err = s.Get(ctx, "change/abc")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)
		})
	}
}

// TestStore_CreateIsAppendOnly verifies Create rejects existing keys with
// ErrAlreadyExists and leaves the original value untouched.
func TestStore_CreateIsAppendOnly(t *testing.T) {
	for _, be := range allBackends() {
		t.Run(be.name, func(t *testing.T) {
			s := be.open(t)
			ctx := context.Background()

			require.NoError(t, s.Create(ctx, "audit/1/a", []byte("first")))
			err := s.Create(ctx, "audit/1/a", []byte("second"))
			assert.ErrorIs(t, err, ErrAlreadyExists)

			got, err := s.Get(ctx, "audit/1/a")
			require.NoError(t, err)
			assert.Equal(t, []byte("first"), got)
		})
	}
}

// TestStore_Delete verifies Delete removes keys and reports ErrNotFound
// for absent ones.
func TestStore_Delete(t *testing.T) {
	for _, be := range allBackends() {
		t.Run(be.name, func(t *testing.T) {
			s := be.open(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, "review/r1", []byte("v")))
			require.NoError(t, s.Delete(ctx, "review/r1"))

			_, err := s.Get(ctx, "review/r1")
			assert.ErrorIs(t, err, ErrNotFound)

			err = s.Delete(ctx, "review/r1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// TestStore_ListByPrefix verifies List returns only keys under the
// prefix, in ascending key order, with values intact.
func TestStore_ListByPrefix(t *testing.T) {
	for _, be := range allBackends() {
		t.Run(be.name, func(t *testing.T) {
			s := be.open(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, "change/c", []byte("3")))
			require.NoError(t, s.Put(ctx, "change/a", []byte("1")))
			require.NoError(t, s.Put(ctx, "change/b", []byte("2")))
			require.NoError(t, s.Put(ctx, "review/x", []byte("other")))

			entries, err := s.List(ctx, PrefixChange)
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, "change/a", entries[0].Key)
			assert.Equal(t, "change/b", entries[1].Key)
			assert.Equal(t, "change/c", entries[2].Key)
			assert.Equal(t, []byte("2"), entries[1].Value)

			empty, err := s.List(ctx, "bcapproval/")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

// TestStore_UpdateCreatesAndMutates verifies Update sees found=false for
// a missing key, can seed it, and then sees the prior value on the next
// call.
func TestStore_UpdateCreatesAndMutates(t *testing.T) {
	for _, be := range allBackends() {
		t.Run(be.name, func(t *testing.T) {
			s := be.open(t)
			ctx := context.Background()

			err := s.Update(ctx, "change/u", func(current []byte, found bool) ([]byte, error) {
				require.False(t, found)
				require.Nil(t, current)
				return []byte("1"), nil
			})
			require.NoError(t, err)

			err = s.Update(ctx, "change/u", func(current []byte, found bool) ([]byte, error) {
				require.True(t, found)
				require.Equal(t, []byte("1"), current)
				return []byte("2"), nil
			})
			require.NoError(t, err)

			got, err := s.Get(ctx, "change/u")
			require.NoError(t, err)
			assert.Equal(t, []byte("2"), got)
		})
	}
}

// TestStore_UpdateErrorAborts verifies an error returned from the update
// closure propagates unchanged and leaves the stored value alone.
func TestStore_UpdateErrorAborts(t *testing.T) {
	sentinel := assert.AnError

	for _, be := range allBackends() {
		t.Run(be.name, func(t *testing.T) {
			s := be.open(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, "change/e", []byte("keep")))
			err := s.Update(ctx, "change/e", func(current []byte, found bool) ([]byte, error) {
				return nil, sentinel
			})
			assert.ErrorIs(t, err, sentinel)

			got, err := s.Get(ctx, "change/e")
			require.NoError(t, err)
			assert.Equal(t, []byte("keep"), got)
		})
	}
}

// TestStore_ConcurrentUpdatesSerialize hammers one key with concurrent
// counter increments and verifies no update is lost on any backend.
func TestStore_ConcurrentUpdatesSerialize(t *testing.T) {
	const workers = 8
	const perWorker = 25

	for _, be := range allBackends() {
		t.Run(be.name, func(t *testing.T) {
			s := be.open(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, "change/counter", mustJSON(t, 0)))

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						err := s.Update(ctx, "change/counter", func(current []byte, found bool) ([]byte, error) {
							var n int
							if found {
								if err := json.Unmarshal(current, &n); err != nil {
									return nil, err
								}
							}
							return json.Marshal(n + 1)
						})
						// Conflict retries are internal; the call
						// either succeeds or the test fails.
						assert.NoError(t, err)
					}
				}()
			}
			wg.Wait()

			raw, err := s.Get(ctx, "change/counter")
			require.NoError(t, err)
			var n int
			require.NoError(t, json.Unmarshal(raw, &n))
			assert.Equal(t, workers*perWorker, n)
		})
	}
}

// TestStore_ClosedStoreFails verifies operations after Close surface
// ErrStoreClosed on the memory backend.
func TestStore_ClosedStoreFails(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "change/x")
	assert.ErrorIs(t, err, ErrStoreClosed)

	err = s.Put(context.Background(), "change/x", []byte("v"))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// =============================================================================
// Key Helpers
// =============================================================================

// TestKeyHelpers verifies keyspace layout and path escaping for
// repository and location components containing slashes.
func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "change/abc-123", ChangeKey("abc-123"))
	assert.Equal(t, "review/rev-9", ReviewKey("rev-9"))

	key := BreakingApprovalKey("github.com/acme/orders", "api/v1/order.proto:42")
	assert.Equal(t, "bcapproval/github.com%2Facme%2Forders/api%2Fv1%2Forder.proto:42", key)

	prefix := BreakingApprovalRepoPrefix("github.com/acme/orders")
	assert.Equal(t, "bcapproval/github.com%2Facme%2Forders/", prefix)

	// Escaped keys for the same repository stay under the repo prefix
	// even when locations contain slashes.
	assert.Contains(t, key, prefix)

	assert.Equal(t,
		"audit/2025-01-02T03:04:05.000000000Z/rec-1",
		AuditKey("2025-01-02T03:04:05.000000000Z", "rec-1"))
}

// TestConflictError verifies the conflict wrapper matches ErrConflict.
func TestConflictError(t *testing.T) {
	err := &ConflictError{Key: "change/x", Attempts: 16}
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "change/x")
	assert.Contains(t, err.Error(), "16")
}
