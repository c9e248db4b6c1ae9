// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package breaking normalizes external schema-diff tool output into typed
// breaking change records.
//
// # Description
//
// The engine does not diff schemas itself; it delegates to an external
// detector (a `buf breaking`-style CLI) and adapts its JSON output into
// BreakingChange values with a deterministic severity mapping. Policy and
// impact code never construct BreakingChange ad hoc: records enter the
// system only through a Detector.
//
// # Thread Safety
//
// Detectors are safe for concurrent use after construction.
package breaking

import (
	"context"
	"fmt"
)

// ImpactTier grades how badly a breaking change hits consumers.
type ImpactTier string

const (
	// TierLow means consumers keep working, cleanup recommended.
	TierLow ImpactTier = "low"

	// TierMedium means some consumers need changes before upgrading.
	TierMedium ImpactTier = "medium"

	// TierHigh means most consumers break without changes.
	TierHigh ImpactTier = "high"

	// TierCritical means all consumers break, often silently.
	TierCritical ImpactTier = "critical"
)

// ParseImpactTier validates a wire-level impact string.
func ParseImpactTier(s string) (ImpactTier, error) {
	switch ImpactTier(s) {
	case TierLow, TierMedium, TierHigh, TierCritical:
		return ImpactTier(s), nil
	default:
		return "", fmt.Errorf("unknown impact tier %q (expected low, medium, high, or critical)", s)
	}
}

// Rank orders tiers for severity comparisons: low=1 .. critical=4.
// Unknown tiers rank 0.
func (t ImpactTier) Rank() int {
	switch t {
	case TierLow:
		return 1
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	case TierCritical:
		return 4
	default:
		return 0
	}
}

// BreakingChange is one detected incompatibility between schema versions.
type BreakingChange struct {
	// Type is the detector's rule code (e.g. "FIELD_NO_DELETE").
	Type string `json:"type"`

	// Description is the human-readable explanation.
	Description string `json:"description"`

	// Location is where the break occurs ("orders.proto:42").
	Location string `json:"location"`

	// Impact is the severity tier.
	Impact ImpactTier `json:"impact"`

	// Repository is the repo the change originates from. Filled by the
	// caller, not the detector.
	Repository string `json:"repository,omitempty"`

	// Before is the schema snippet prior to the change, when available.
	Before string `json:"before,omitempty"`

	// After is the schema snippet after the change, when available.
	After string `json:"after,omitempty"`

	// Migration is an optional note on how consumers should adapt.
	Migration string `json:"migration,omitempty"`
}

// Detector compares two schema payloads and reports incompatibilities.
//
// Implementations must be deterministic for identical inputs and must
// fail with a typed error (never a partial or empty list) when the
// underlying tool fails.
type Detector interface {
	// Detect compares current against baseline. A nil error with an
	// empty slice means the change is compatible.
	Detect(ctx context.Context, current, baseline string) ([]BreakingChange, error)
}

// StaticDetector returns canned results. Used by tests and dry runs.
type StaticDetector struct {
	// Changes is returned (copied) from every Detect call.
	Changes []BreakingChange

	// Err, if set, is returned instead.
	Err error
}

// Compile-time interface check.
var _ Detector = (*StaticDetector)(nil)

// Detect returns the canned changes or error.
func (d *StaticDetector) Detect(ctx context.Context, current, baseline string) ([]BreakingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]BreakingChange, len(d.Changes))
	copy(out, d.Changes)
	return out, nil
}
