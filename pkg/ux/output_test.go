// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout captures stdout during fn.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(out)
}

// captureStderr captures stderr during fn.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w

	fn()

	_ = w.Close()
	os.Stderr = old
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(out)
}

// plainMode forces plain output for the duration of the test.
func plainMode(t *testing.T, v bool) {
	t.Helper()
	prev := Plain()
	SetPlain(v)
	t.Cleanup(func() { SetPlain(prev) })
}

func TestSetPlain(t *testing.T) {
	plainMode(t, true)
	if !Plain() {
		t.Error("expected plain mode on")
	}
	SetPlain(false)
	if Plain() {
		t.Error("expected plain mode off")
	}
}

func TestTitle_PlainMode(t *testing.T) {
	plainMode(t, true)
	out := captureStdout(t, func() { Title("Tracked Changes") })
	if !strings.Contains(out, "Tracked Changes") {
		t.Errorf("expected title text, got %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("plain mode must not emit ANSI escapes, got %q", out)
	}
}

func TestSuccess_PlainMode(t *testing.T) {
	plainMode(t, true)
	out := captureStdout(t, func() { Success("done") })
	if !strings.Contains(out, "OK: done") {
		t.Errorf("expected OK prefix, got %q", out)
	}
}

func TestError_PlainModeGoesToStderr(t *testing.T) {
	plainMode(t, true)
	var stdout string
	stderr := captureStderr(t, func() {
		stdout = captureStdout(t, func() { Error("boom") })
	})
	if !strings.Contains(stderr, "ERROR: boom") {
		t.Errorf("expected ERROR on stderr, got %q", stderr)
	}
	if stdout != "" {
		t.Errorf("plain errors must not pollute stdout, got %q", stdout)
	}
}

func TestWarning_PlainModeGoesToStderr(t *testing.T) {
	plainMode(t, true)
	stderr := captureStderr(t, func() { Warning("careful") })
	if !strings.Contains(stderr, "WARN: careful") {
		t.Errorf("expected WARN on stderr, got %q", stderr)
	}
}

func TestKeyValue_PlainModeTabSeparated(t *testing.T) {
	plainMode(t, true)
	out := captureStdout(t, func() { KeyValue("Target", "orders.v1.Order") })
	if !strings.Contains(out, "Target\torders.v1.Order") {
		t.Errorf("expected tab-separated pair, got %q", out)
	}
}

func TestImpactBadge_PlainMode(t *testing.T) {
	plainMode(t, true)
	for _, level := range []string{"low", "medium", "high", "critical", "none"} {
		if got := ImpactBadge(level); got != level {
			t.Errorf("plain badge for %q = %q, want the level itself", level, got)
		}
	}
}

func TestImpactBadge_Styled(t *testing.T) {
	plainMode(t, false)
	tests := []struct {
		level string
		want  string
	}{
		{"critical", "CRITICAL"},
		{"high", "HIGH"},
		{"medium", "MEDIUM"},
		{"low", "LOW"},
	}
	for _, tt := range tests {
		got := ImpactBadge(tt.level)
		if !strings.Contains(got, tt.want) {
			t.Errorf("ImpactBadge(%q) = %q, want to contain %q", tt.level, got, tt.want)
		}
	}
}

func TestStatusBadge_PlainMode(t *testing.T) {
	plainMode(t, true)
	for _, status := range []string{"pending", "approved", "rejected", "cancelled"} {
		if got := StatusBadge(status); got != status {
			t.Errorf("plain badge for %q = %q", status, got)
		}
	}
}

func TestStatusBadge_UnknownPassesThrough(t *testing.T) {
	plainMode(t, false)
	if got := StatusBadge("archived"); got != "archived" {
		t.Errorf("unknown status should pass through, got %q", got)
	}
}

func TestReviewSummary_PlainMode(t *testing.T) {
	plainMode(t, true)
	out := captureStdout(t, func() { ReviewSummary(2, 3, "pending") })
	if !strings.Contains(out, "approvals=2") || !strings.Contains(out, "required=3") {
		t.Errorf("expected approval counts, got %q", out)
	}
	if !strings.Contains(out, "status=pending") {
		t.Errorf("expected status, got %q", out)
	}
}

func TestBox_PlainMode(t *testing.T) {
	plainMode(t, true)
	out := captureStdout(t, func() { Box("Impact", "3 services affected") })
	if !strings.Contains(out, "Impact: 3 services affected") {
		t.Errorf("expected flattened box, got %q", out)
	}
}

func TestIcon_RenderKeepsGlyph(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		if got := icon.Render(); !strings.Contains(got, string(icon)) {
			t.Errorf("Icon %q render lost its glyph: %q", string(icon), got)
		}
	}
}
