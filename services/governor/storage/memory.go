// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"bytes"
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
)

// memoryShards is the number of lock stripes in MemoryStore. Updates on
// the same key always hit the same shard, which serializes them.
const memoryShards = 32

// MemoryStore implements Store with sharded in-process maps. It is used
// by tests and by dev mode where no durability is wanted.
//
// # Thread Safety
//
// Safe for concurrent use. Update holds the key's shard lock across the
// caller's function, so read-modify-write cycles on one key never
// interleave.
type MemoryStore struct {
	shards [memoryShards]memoryShard
	closed atomic.Bool
}

type memoryShard struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].data = make(map[string][]byte)
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%memoryShards]
}

// Get returns a copy of the value for key, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	value, ok := sh.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(value), nil
}

// Put writes the value unconditionally.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.data[key] = bytes.Clone(value)
	return nil
}

// Create writes the value only if the key does not exist yet.
func (s *MemoryStore) Create(ctx context.Context, key string, value []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.data[key]; ok {
		return ErrAlreadyExists
	}
	sh.data[key] = bytes.Clone(value)
	return nil
}

// Update applies fn under the key's shard lock. No retry is needed:
// holding the lock makes the read-modify-write atomic.
func (s *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, found := sh.data[key]
	next, err := fn(bytes.Clone(current), found)
	if err != nil {
		return err
	}
	sh.data[key] = bytes.Clone(next)
	return nil
}

// Delete removes the key. Returns ErrNotFound if absent.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.data[key]; !ok {
		return ErrNotFound
	}
	delete(sh.data, key)
	return nil
}

// List returns all entries under prefix in ascending key order.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var entries []Entry
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for key, value := range sh.data {
			if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
				entries = append(entries, Entry{Key: key, Value: bytes.Clone(value)})
			}
		}
		sh.mu.RUnlock()
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Close marks the store closed; subsequent operations fail with
// ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return ctx.Err()
}
