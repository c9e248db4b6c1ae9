// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package breaking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// AnnotateSnippets fills Before/After on changes whose Location falls
// inside the given unified diff.
//
// # Description
//
// Detectors report rule codes and locations but usually not the schema
// text itself. When the submitter also provides the unified diff of the
// schema change, this function matches each finding's "file:line"
// location to the diff hunk covering that line and extracts the removed
// lines as Before and the added lines as After. Findings without a
// matching hunk are returned unchanged.
//
// The input slice is not modified; an annotated copy is returned.
func AnnotateSnippets(changes []BreakingChange, unifiedDiff string) ([]BreakingChange, error) {
	if unifiedDiff == "" || len(changes) == 0 {
		return changes, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(unifiedDiff)).ReadAllFiles()
	if err != nil {
		return changes, fmt.Errorf("parse unified diff: %w", err)
	}

	annotated := make([]BreakingChange, len(changes))
	copy(annotated, changes)

	for i := range annotated {
		file, line := splitLocation(annotated[i].Location)
		if file == "" {
			continue
		}
		hunk := findHunk(fileDiffs, file, line)
		if hunk == nil {
			continue
		}
		before, after := splitHunk(hunk)
		annotated[i].Before = before
		annotated[i].After = after
	}
	return annotated, nil
}

// splitLocation parses "path/to/file.schema:42" into path and line.
// A missing line number yields 0, which matches the file's first hunk.
func splitLocation(location string) (string, int) {
	idx := strings.LastIndex(location, ":")
	if idx < 0 {
		return location, 0
	}
	line, err := strconv.Atoi(location[idx+1:])
	if err != nil {
		return location, 0
	}
	return location[:idx], line
}

// findHunk locates the hunk covering line in the named file. Diff names
// carry "a/"-style prefixes, so matching is by path suffix.
func findHunk(fileDiffs []*diff.FileDiff, file string, line int) *diff.Hunk {
	for _, fd := range fileDiffs {
		if !matchesFile(fd, file) {
			continue
		}
		if len(fd.Hunks) == 0 {
			return nil
		}
		if line == 0 {
			return fd.Hunks[0]
		}
		for _, hunk := range fd.Hunks {
			start := int(hunk.OrigStartLine)
			end := start + int(hunk.OrigLines)
			if line >= start && line < end {
				return hunk
			}
		}
	}
	return nil
}

func matchesFile(fd *diff.FileDiff, file string) bool {
	for _, name := range []string{fd.OrigName, fd.NewName} {
		name = strings.TrimPrefix(strings.TrimPrefix(name, "a/"), "b/")
		if name == file || strings.HasSuffix(name, "/"+file) {
			return true
		}
	}
	return false
}

// splitHunk extracts removed lines (before) and added lines (after).
func splitHunk(hunk *diff.Hunk) (string, string) {
	var before, after []string
	for _, line := range strings.Split(string(hunk.Body), "\n") {
		switch {
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			before = append(before, strings.TrimPrefix(line, "-"))
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			after = append(after, strings.TrimPrefix(line, "+"))
		}
	}
	return strings.Join(before, "\n"), strings.Join(after, "\n")
}
