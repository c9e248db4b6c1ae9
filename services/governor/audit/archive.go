// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/storage"
)

// ArchiverConfig configures audit archival to Cloud Storage.
type ArchiverConfig struct {
	// Bucket is the destination bucket name. Required.
	Bucket string

	// Prefix is prepended to every object name. Defaults to "audit/".
	Prefix string

	// CredentialsFile is an optional service account key path; empty
	// uses ambient credentials.
	CredentialsFile string

	// Retention is how long records stay in the hot store. Records
	// older than this are uploaded and then pruned. Mirrors the
	// audit_retention_days global setting.
	Retention time.Duration

	// Concurrency bounds parallel uploads. Defaults to 4.
	Concurrency int

	// Logger is optional; nil falls back to the process default.
	Logger *logging.Logger
}

// Archiver moves aged audit records from the hot store to Cloud
// Storage.
//
// # Description
//
// Archive scans the audit keyspace for records older than the retention
// window, uploads each as a JSON object, and deletes it from the store
// only after its upload succeeded. A failed upload leaves the record in
// place for the next run, so archival is safe to rerun and crash-safe:
// the worst case is a record existing in both places, never in neither.
//
// # Thread Safety
//
// Safe for concurrent use, though runs are typically serialized by a
// scheduler.
type Archiver struct {
	client      *gcs.Client
	store       storage.Store
	bucket      string
	prefix      string
	retention   time.Duration
	concurrency int
	log         *logging.Logger
}

// NewArchiver creates an archiver. The context governs client setup
// only.
func NewArchiver(ctx context.Context, store storage.Store, cfg ArchiverConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archiver requires a bucket")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("archiver requires a positive retention window")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create cloud storage client: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "audit/"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	return &Archiver{
		client:      client,
		store:       store,
		bucket:      cfg.Bucket,
		prefix:      prefix,
		retention:   cfg.Retention,
		concurrency: concurrency,
		log:         log,
	}, nil
}

// Archive uploads and prunes every record older than the retention
// window, measured from now. Returns how many records were archived.
// The first upload failure cancels remaining uploads; already-archived
// records stay pruned.
func (a *Archiver) Archive(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-a.retention).UTC().Format(keyTimeLayout)

	entries, err := a.store.List(ctx, storage.PrefixAudit)
	if err != nil {
		return 0, fmt.Errorf("list audit records: %w", err)
	}

	var aged []storage.Entry
	for _, entry := range entries {
		ts := keyTimestamp(entry.Key)
		if ts != "" && ts < cutoff {
			aged = append(aged, entry)
		}
	}
	if len(aged) == 0 {
		return 0, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, entry := range aged {
		g.Go(func() error {
			if err := a.upload(gCtx, entry); err != nil {
				return err
			}
			if err := a.store.Delete(gCtx, entry.Key); err != nil {
				return fmt.Errorf("prune %s: %w", entry.Key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	a.log.Info("audit records archived",
		"count", len(aged),
		"bucket", a.bucket,
		"cutoff", cutoff)
	return len(aged), nil
}

// upload writes one record to the bucket under the store key.
func (a *Archiver) upload(ctx context.Context, entry storage.Entry) error {
	name := a.prefix + strings.TrimPrefix(entry.Key, storage.PrefixAudit) + ".json"

	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, bytes.NewReader(entry.Value)); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close upload %s: %w", name, err)
	}
	return nil
}

// Close releases the storage client.
func (a *Archiver) Close() error {
	return a.client.Close()
}

// keyTimestamp extracts the timestamp segment from an audit key
// ("audit/{timestamp}/{id}"), or "" for a malformed key.
func keyTimestamp(key string) string {
	rest := strings.TrimPrefix(key, storage.PrefixAudit)
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return ""
	}
	return rest[:idx]
}
