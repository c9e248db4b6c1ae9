// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package breaking

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultDetectTimeout bounds a detector invocation when the caller's
// context carries no earlier deadline.
const DefaultDetectTimeout = 60 * time.Second

// maxStderrTail limits how much tool stderr is kept on errors.
const maxStderrTail = 2048

// CommandConfig configures an external detector invocation.
type CommandConfig struct {
	// Command is the detector binary ("buf", "schema-diff").
	Command string

	// Args are the arguments passed to the command. The placeholders
	// {current} and {baseline} are replaced with paths to temp files
	// holding the respective schema payloads.
	//
	// Example (buf-style): ["breaking", "{current}", "--against", "{baseline}", "--format", "json"]
	Args []string

	// Timeout bounds each invocation. Default: DefaultDetectTimeout.
	Timeout time.Duration

	// Logger receives invocation diagnostics. Optional.
	Logger *slog.Logger
}

// CommandDetector runs a configured external diff tool and parses its
// JSON-lines output into BreakingChange records.
//
// # Description
//
// The tool receives the current and baseline schema payloads as temp
// files and must emit one JSON object per breaking change on stdout.
// Exit code 0 means compatible, exit code 1 with parseable output means
// breaking changes were found (buf convention); anything else is a
// DetectionError. Output is sorted by location then rule code so results
// are deterministic regardless of tool ordering.
//
// # Thread Safety
//
// Safe for concurrent use; each Detect call works in its own temp dir.
type CommandDetector struct {
	cfg CommandConfig
}

// Compile-time interface check.
var _ Detector = (*CommandDetector)(nil)

// NewCommandDetector validates the configuration and builds a detector.
func NewCommandDetector(cfg CommandConfig) (*CommandDetector, error) {
	if cfg.Command == "" {
		return nil, ErrDetectorNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDetectTimeout
	}
	return &CommandDetector{cfg: cfg}, nil
}

// toolChange is the detector's wire shape for one finding.
type toolChange struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Impact      string `json:"impact"`
	Migration   string `json:"migration,omitempty"`
}

// Detect invokes the external tool on the two payloads.
func (d *CommandDetector) Detect(ctx context.Context, current, baseline string) ([]BreakingChange, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "strait-detect-")
	if err != nil {
		return nil, &DetectionError{Tool: d.cfg.Command, Stage: "setup", ExitCode: -1, Err: err}
	}
	defer os.RemoveAll(dir)

	currentPath := filepath.Join(dir, "current.schema")
	baselinePath := filepath.Join(dir, "baseline.schema")
	if err := os.WriteFile(currentPath, []byte(current), 0600); err != nil {
		return nil, &DetectionError{Tool: d.cfg.Command, Stage: "setup", ExitCode: -1, Err: err}
	}
	if err := os.WriteFile(baselinePath, []byte(baseline), 0600); err != nil {
		return nil, &DetectionError{Tool: d.cfg.Command, Stage: "setup", ExitCode: -1, Err: err}
	}

	args := make([]string, len(d.cfg.Args))
	for i, a := range d.cfg.Args {
		a = strings.ReplaceAll(a, "{current}", currentPath)
		a = strings.ReplaceAll(a, "{baseline}", baselinePath)
		args[i] = a
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.cfg.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if d.cfg.Logger != nil {
		d.cfg.Logger.Debug("detector invocation finished",
			"tool", d.cfg.Command,
			"duration_ms", elapsed.Milliseconds(),
			"exit_error", runErr != nil,
		)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &DetectionError{
			Tool:     d.cfg.Command,
			Stage:    "execute",
			ExitCode: -1,
			Stderr:   tail(stderr.String()),
			Err:      ctxErr,
		}
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, &DetectionError{
				Tool:     d.cfg.Command,
				Stage:    "execute",
				ExitCode: -1,
				Stderr:   tail(stderr.String()),
				Err:      runErr,
			}
		}
	}

	// Exit 1 with parseable stdout means "breaking changes found".
	// Any other non-zero exit is a tool failure.
	if exitCode > 1 || (exitCode == 1 && stdout.Len() == 0) {
		return nil, &DetectionError{
			Tool:     d.cfg.Command,
			Stage:    "execute",
			ExitCode: exitCode,
			Stderr:   tail(stderr.String()),
			Err:      fmt.Errorf("tool exited with code %d", exitCode),
		}
	}

	changes, err := parseToolOutput(stdout.Bytes())
	if err != nil {
		return nil, &DetectionError{
			Tool:     d.cfg.Command,
			Stage:    "parse",
			ExitCode: exitCode,
			Stderr:   tail(stderr.String()),
			Err:      err,
		}
	}
	return changes, nil
}

// parseToolOutput reads JSON-lines findings from the tool's stdout.
func parseToolOutput(raw []byte) ([]BreakingChange, error) {
	var changes []BreakingChange

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var tc toolChange
		if err := json.Unmarshal(line, &tc); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOutput, lineNo, err)
		}
		if tc.Type == "" {
			return nil, fmt.Errorf("%w: line %d: missing rule type", ErrMalformedOutput, lineNo)
		}
		tier, err := ParseImpactTier(tc.Impact)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOutput, lineNo, err)
		}

		changes = append(changes, BreakingChange{
			Type:        tc.Type,
			Description: tc.Description,
			Location:    tc.Location,
			Impact:      tier,
			Migration:   tc.Migration,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	// Deterministic output regardless of tool ordering
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Location != changes[j].Location {
			return changes[i].Location < changes[j].Location
		}
		return changes[i].Type < changes[j].Type
	})
	return changes, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrTail {
		return "..." + s[len(s)-maxStderrTail:]
	}
	return s
}
