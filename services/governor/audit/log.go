// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/storage"
)

// keyTimeLayout is RFC 3339 with nanoseconds padded to fixed width, so
// store keys sort chronologically. time.RFC3339Nano trims trailing
// zeros and breaks lexical ordering at second boundaries.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Log is the append-only audit log over the durable store.
//
// # Thread Safety
//
// Safe for concurrent use.
type Log struct {
	store storage.Store
	log   *logging.Logger
}

// NewLog creates an audit log. log may be nil to use the process
// default.
func NewLog(store storage.Store, log *logging.Logger) *Log {
	if log == nil {
		log = logging.Default()
	}
	return &Log{store: store, log: log}
}

// Append writes one record. ID and Timestamp default when zero; records
// are never updated or overwritten afterwards. The write is synchronous
// and its failure propagates, so callers fail closed.
func (l *Log) Append(ctx context.Context, rec Record) error {
	if rec.EventType == "" {
		return fmt.Errorf("audit record requires an event type")
	}
	if rec.Actor == "" {
		return fmt.Errorf("audit record requires an actor")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	key := storage.AuditKey(rec.Timestamp.Format(keyTimeLayout), rec.ID)
	if err := l.store.Create(ctx, key, value); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}

	l.log.Debug("audit record written",
		"event_type", rec.EventType,
		"actor", rec.Actor,
		"resource_type", rec.ResourceType,
		"resource_id", rec.ResourceID,
		"outcome", rec.Outcome)
	return nil
}

// Query returns matching records, newest first.
func (l *Log) Query(ctx context.Context, f Filter) ([]Record, error) {
	entries, err := l.store.List(ctx, storage.PrefixAudit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}

	// Keys sort oldest first; walk backwards for newest-first output.
	var out []Record
	skipped := 0
	for i := len(entries) - 1; i >= 0; i-- {
		var rec Record
		if err := json.Unmarshal(entries[i].Value, &rec); err != nil {
			return nil, fmt.Errorf("decode audit record %s: %w", entries[i].Key, err)
		}
		if !f.matches(rec) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}
