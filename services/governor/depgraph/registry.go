// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package depgraph maintains the registry of service-to-schema
// dependencies and computes blast-radius graphs from it.
package depgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/pkg/validation"
)

// Registry is the authoritative store of service-to-schema dependency
// edges.
//
// # Description
//
// Collaborating services register their schema dependencies explicitly
// through Register; nothing is inferred from names. The registry keeps a
// forward index (schema target to its consumers) and a backward index
// (consumer to the targets it consumes) so that reverse-dependency
// lookups are exact rather than heuristic name matches.
//
// Graphs are computed on demand from the indexes and never persisted.
// A generation counter increments on every registration; Graph keys its
// singleflight group on (target, generation) so concurrent requests for
// the same target share one computation while a registration in between
// forces a fresh one.
//
// # Thread Safety
//
// Safe for concurrent use. Uses sync.RWMutex for the indexes and
// singleflight.Group for graph computation deduplication.
type Registry struct {
	mu       sync.RWMutex
	forward  map[string][]ServiceDependency
	backward map[string][]string
	gen      uint64

	flight singleflight.Group
	log    *logging.Logger
}

// NewRegistry creates an empty dependency registry. A nil logger falls
// back to the process default.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Default()
	}
	return &Registry{
		forward:  make(map[string][]ServiceDependency),
		backward: make(map[string][]string),
		log:      log,
	}
}

// Register records that a consuming service depends on a schema target.
//
// # Inputs
//
//   - target: The schema target being consumed.
//   - dep: The edge describing the consumer; Kind must be direct or
//     optional (transitive edges are derived, never registered).
//
// # Outputs
//
//   - error: Non-nil if the target or edge fails validation.
//
// Re-registering the same (target, service) pair replaces the existing
// edge in place, preserving its original registration position so
// migration ordering stays stable.
func (r *Registry) Register(target string, dep ServiceDependency) error {
	if err := validation.ValidateSchemaRef(target); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if err := dep.Validate(); err != nil {
		return err
	}
	if dep.Kind == KindTransitive {
		return fmt.Errorf("transitive edges are derived during graph computation and cannot be registered")
	}
	if dep.Service == target {
		return fmt.Errorf("service %q cannot register a dependency on its own schema", dep.Service)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := false
	edges := r.forward[target]
	for i := range edges {
		if edges[i].Service == dep.Service {
			edges[i] = dep
			replaced = true
			break
		}
	}
	if !replaced {
		r.forward[target] = append(edges, dep)
		r.backward[dep.Service] = append(r.backward[dep.Service], target)
	}
	r.gen++

	r.log.Debug("dependency registered",
		"target", target,
		"service", dep.Service,
		"strength", string(dep.Strength),
		"replaced", replaced)
	return nil
}

// Graph computes the dependency graph for a schema target.
//
// # Description
//
// Direct dependents come straight from the forward index. Transitive
// dependents are found by walking one level past each direct dependent
// (looking up consumers of the dependent's own schema) with strength
// clamped to weak; the walk is deliberately not a full closure, which
// bounds the cost of blast-radius estimation. Reverse dependencies come
// from the backward index.
//
// A service appearing both directly and transitively is reported once,
// under its direct edge.
//
// # Outputs
//
//   - *DependencyGraph: The computed graph.
//   - error: *AnalysisError wrapping ErrTargetNotRegistered if the
//     target appears in neither index.
func (r *Registry) Graph(ctx context.Context, target string) (*DependencyGraph, error) {
	if err := validation.ValidateSchemaRef(target); err != nil {
		return nil, &AnalysisError{Target: target, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	key := fmt.Sprintf("%s@%d", target, gen)
	result, err, _ := r.flight.Do(key, func() (interface{}, error) {
		return r.compute(target)
	})
	if err != nil {
		return nil, err
	}
	return result.(*DependencyGraph), nil
}

func (r *Registry) compute(target string) (*DependencyGraph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	direct := r.forward[target]
	upstream := r.backward[target]
	if len(direct) == 0 && len(upstream) == 0 {
		return nil, &AnalysisError{Target: target, Err: ErrTargetNotRegistered}
	}

	g := &DependencyGraph{
		Target:     target,
		Direct:     append([]ServiceDependency(nil), direct...),
		Matrix:     make(map[string][]string),
		ComputedAt: time.Now().UTC(),
	}

	seen := make(map[string]bool, len(direct)+1)
	seen[target] = true
	for _, d := range direct {
		seen[d.Service] = true
		g.Matrix[target] = append(g.Matrix[target], d.Service)
	}

	for _, d := range direct {
		for _, hop := range r.forward[d.Service] {
			g.Matrix[d.Service] = append(g.Matrix[d.Service], hop.Service)
			if seen[hop.Service] {
				continue
			}
			seen[hop.Service] = true
			hop.Kind = KindTransitive
			hop.Strength = StrengthWeak
			g.Transitive = append(g.Transitive, hop)
		}
	}

	for _, up := range upstream {
		for _, edge := range r.forward[up] {
			if edge.Service != target {
				continue
			}
			rev := edge
			rev.Service = up
			g.Reverse = append(g.Reverse, rev)
			g.Matrix[up] = append(g.Matrix[up], target)
			break
		}
	}

	teams := make(map[string]bool)
	critical := 0
	for _, d := range g.Direct {
		teams[d.Team] = true
		if d.Strength == StrengthCritical {
			critical++
		}
	}
	for _, t := range g.Transitive {
		teams[t.Team] = true
	}

	g.Metadata = GraphMetadata{
		AffectedServices: len(g.Direct) + len(g.Transitive),
		CriticalDirect:   critical,
		DistinctTeams:    len(teams),
		ComplexityScore:  ComplexityScore(len(g.Direct), len(g.Transitive), critical, len(teams)),
	}
	return g, nil
}

// Targets returns all schema targets with at least one registered
// dependent, sorted.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]string, 0, len(r.forward))
	for target := range r.forward {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// Matrix returns the adjacency view of the whole registry: every schema
// target mapped to its direct consumer names, consumers sorted.
func (r *Registry) Matrix() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matrix := make(map[string][]string, len(r.forward))
	for target, edges := range r.forward {
		consumers := make([]string, 0, len(edges))
		for _, e := range edges {
			consumers = append(consumers, e.Service)
		}
		sort.Strings(consumers)
		matrix[target] = consumers
	}
	return matrix
}

// Generation returns the registry mutation counter. Useful for callers
// that cache derived views.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// EdgeCount returns the total number of registered dependency edges.
func (r *Registry) EdgeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, edges := range r.forward {
		n += len(edges)
	}
	return n
}
