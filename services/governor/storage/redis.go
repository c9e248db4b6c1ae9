// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis backend.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is the optional AUTH password.
	Password string

	// DB is the logical database index.
	DB int

	// KeyPrefix namespaces all keys so one Redis can serve several
	// deployments. Default: "strait:".
	KeyPrefix string

	// DialTimeout bounds the initial connection check.
	// Default: 5 seconds.
	DialTimeout time.Duration
}

// RedisStore implements Store on a shared Redis server.
//
// # Description
//
// Update uses WATCH-based optimistic transactions: the key is watched,
// the current value read, the caller's function applied, and the write
// committed in a MULTI/EXEC pipe. If another client writes the key
// between WATCH and EXEC the transaction fails with redis.TxFailedErr
// and the loop retries with a fresh read, up to maxTxnRetries attempts.
//
// # Thread Safety
//
// Safe for concurrent use.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "strait:"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStore{rdb: rdb, keyPrefix: cfg.KeyPrefix}, nil
}

// NewRedisWithClient wraps an existing client. Used by tests with
// miniredis.
func NewRedisWithClient(rdb redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "strait:"
	}
	return &RedisStore{rdb: rdb, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(key string) string {
	return s.keyPrefix + key
}

// Get returns the value for key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Put writes the value unconditionally.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Create writes the value only if the key does not exist yet.
func (s *RedisStore) Create(ctx context.Context, key string, value []byte) error {
	ok, err := s.rdb.SetNX(ctx, s.key(key), value, 0).Result()
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// Update applies fn via a WATCH-based optimistic transaction with retry.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	fullKey := s.key(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fullKey).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			found = false
			current = nil
		} else if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}

		next, err := fn(current, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		err := s.rdb.Watch(ctx, txf, fullKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return &ConflictError{Key: key, Attempts: maxTxnRetries}
}

// Delete removes the key. Returns ErrNotFound if absent.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	count, err := s.rdb.Del(ctx, s.key(key)).Result()
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// List scans for keys under prefix and fetches their values. Keys removed
// between scan and fetch are skipped.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	fullPrefix := s.key(prefix)

	var keys []string
	iter := s.rdb.Scan(ctx, 0, fullPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", prefix, err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Key:   strings.TrimPrefix(keys[i], s.keyPrefix),
			Value: []byte(str),
		})
	}
	return entries, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
