// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package teams

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// directoryValidate is the validator instance for directory files.
// Initialized in init() with custom validators.
var directoryValidate *validator.Validate

func init() {
	directoryValidate = validator.New()

	// Register custom validator for team roles
	_ = directoryValidate.RegisterValidation("teamrole", validateTeamRole)
}

// validateTeamRole checks that a role string is one of the known roles.
func validateTeamRole(fl validator.FieldLevel) bool {
	_, err := ParseRole(fl.Field().String())
	return err == nil
}

// directoryFile is the YAML shape of a team directory.
//
//	teams:
//	  platform:
//	    members:
//	      - username: alice
//	        role: maintainer
//	      - username: bob
//	        role: member
type directoryFile struct {
	Teams map[string]teamEntry `yaml:"teams" validate:"required,min=1,dive"`
}

type teamEntry struct {
	Members []memberEntry `yaml:"members" validate:"required,min=1,dive"`
}

type memberEntry struct {
	Username string `yaml:"username" validate:"required,min=1,max=64"`
	Role     string `yaml:"role" validate:"required,teamrole"`
}

// StaticDirectory is a Directory backed by an in-memory membership table,
// typically loaded from a YAML file. Replace can swap the whole table at
// runtime, which the governor uses for config reload.
type StaticDirectory struct {
	mu    sync.RWMutex
	table map[string][]Member
}

// Compile-time interface check.
var _ Directory = (*StaticDirectory)(nil)

// NewStaticDirectory builds a directory from an explicit table. The table
// is copied; later mutation of the argument has no effect.
func NewStaticDirectory(table map[string][]Member) *StaticDirectory {
	return &StaticDirectory{table: copyTable(table)}
}

// LoadDirectory reads and validates a YAML team directory file.
func LoadDirectory(path string) (*StaticDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read team directory %s: %w", path, err)
	}

	var file directoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidDirectory, path, err)
	}
	if err := directoryValidate.Struct(&file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDirectory, path, err)
	}

	table := make(map[string][]Member, len(file.Teams))
	for name, entry := range file.Teams {
		members := make([]Member, 0, len(entry.Members))
		for _, m := range entry.Members {
			role, err := ParseRole(m.Role)
			if err != nil {
				return nil, fmt.Errorf("%w: team %s: %v", ErrInvalidDirectory, name, err)
			}
			members = append(members, Member{Username: m.Username, Role: role})
		}
		sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
		table[name] = members
	}

	return &StaticDirectory{table: table}, nil
}

// ResolveTeam returns a copy of the team's members, or ErrTeamNotFound.
func (d *StaticDirectory) ResolveTeam(ctx context.Context, name string) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	members, ok := d.table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, name)
	}
	out := make([]Member, len(members))
	copy(out, members)
	return out, nil
}

// Teams returns the sorted team names in the directory.
func (d *StaticDirectory) Teams() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.table))
	for name := range d.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Replace swaps the membership table atomically.
func (d *StaticDirectory) Replace(table map[string][]Member) {
	copied := copyTable(table)
	d.mu.Lock()
	d.table = copied
	d.mu.Unlock()
}

func copyTable(table map[string][]Member) map[string][]Member {
	copied := make(map[string][]Member, len(table))
	for name, members := range table {
		ms := make([]Member, len(members))
		copy(ms, members)
		copied[name] = ms
	}
	return copied
}
