// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/AleutianAI/strait/pkg/ux"
	"github.com/AleutianAI/strait/services/governor/datatypes"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	depService    string // Consuming service name
	depRepository string // Consuming service repository
	depKind       string // direct or optional
	depUsage      string // How the schema is used
	depStrength   string // weak/medium/strong/critical
	depTeam       string // Team owning the consumer

	depsGraphJSONOutput  bool // Output as JSON
	depsMatrixJSONOutput bool // Output as JSON
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// registerDepCmd declares that a service consumes a schema.
//
// # Examples
//
//	strait deps register orders.v1.Order --service storefront \
//	    --repository github.com/acme/storefront --team web --strength critical
var registerDepCmd = &cobra.Command{
	Use:   "register [target]",
	Short: "Register a service as a consumer of a schema",
	Long: `Registers a dependency edge from a consuming service to a schema.

The governor uses these edges for impact analysis: when the schema
changes, registered consumers determine the blast radius, the impact
level, and which teams get notified.

Examples:
  strait deps register orders.v1.Order --service storefront \
      --repository github.com/acme/storefront --team web --strength critical
  strait deps register orders.v1.Order --service analytics \
      --repository github.com/acme/analytics --team data \
      --strength weak --kind optional --usage "nightly batch export"`,
	Args: cobra.ExactArgs(1),
	Run:  runRegisterDep,
}

var depsGraphCmd = &cobra.Command{
	Use:   "graph [target]",
	Short: "Show the dependency graph for a schema",
	Args:  cobra.ExactArgs(1),
	Run:   runDepsGraph,
}

var depsMatrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Show the registry-wide dependency matrix",
	Run:   runDepsMatrix,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	registerDepCmd.Flags().StringVar(&depService, "service", "",
		"Consuming service name (required)")
	registerDepCmd.Flags().StringVar(&depRepository, "repository", "",
		"Consuming service repository (required)")
	registerDepCmd.Flags().StringVar(&depKind, "kind", "direct",
		"Dependency kind: direct or optional")
	registerDepCmd.Flags().StringVar(&depUsage, "usage", "",
		"Short description of how the schema is used")
	registerDepCmd.Flags().StringVar(&depStrength, "strength", "medium",
		"Coupling strength: weak, medium, strong, or critical")
	registerDepCmd.Flags().StringVar(&depTeam, "team", "",
		"Team owning the consumer (required)")
	_ = registerDepCmd.MarkFlagRequired("service")
	_ = registerDepCmd.MarkFlagRequired("repository")
	_ = registerDepCmd.MarkFlagRequired("team")

	depsGraphCmd.Flags().BoolVar(&depsGraphJSONOutput, "json", false,
		"Output as JSON for scripting")
	depsMatrixCmd.Flags().BoolVar(&depsMatrixJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runRegisterDep(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	req := &datatypes.RegisterDependencyRequest{
		Target:     args[0],
		Service:    depService,
		Repository: depRepository,
		Kind:       depKind,
		Usage:      depUsage,
		Strength:   depStrength,
		Team:       depTeam,
	}
	err := ux.WithSpinner(
		fmt.Sprintf("Registering %s -> %s (%s)", depService, args[0], depStrength),
		func() error { return governor().RegisterDependency(ctx, req) },
	)
	if err != nil {
		os.Exit(1)
	}
}

func runDepsGraph(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	g, err := governor().DependencyGraph(ctx, args[0])
	if err != nil {
		ux.Error(fmt.Sprintf("Graph lookup failed: %v", err))
		os.Exit(1)
	}

	if depsGraphJSONOutput {
		outputJSON(g)
		return
	}
	outputDependencyGraph(g)
}

func runDepsMatrix(cmd *cobra.Command, args []string) {
	ctx, cancel := cliContext()
	defer cancel()

	m, err := governor().DependencyMatrix(ctx)
	if err != nil {
		ux.Error(fmt.Sprintf("Matrix lookup failed: %v", err))
		os.Exit(1)
	}

	if depsMatrixJSONOutput {
		outputJSON(m)
		return
	}
	ux.Title("Dependency Matrix")
	ux.KeyValue("Targets", fmt.Sprintf("%d", len(m.Targets)))
	ux.KeyValue("Edges", fmt.Sprintf("%d", m.Edges))
	targets := make([]string, 0, len(m.Matrix))
	for t := range m.Matrix {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		fmt.Printf("  %-40s %s\n", t, strings.Join(m.Matrix[t], ", "))
	}
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputDependencyGraph(g *depgraph.DependencyGraph) {
	ux.Title(fmt.Sprintf("Dependencies of %s", g.Target))
	ux.KeyValue("Affected Services", fmt.Sprintf("%d", g.Metadata.AffectedServices))
	ux.KeyValue("Critical Direct", fmt.Sprintf("%d", g.Metadata.CriticalDirect))
	ux.KeyValue("Distinct Teams", fmt.Sprintf("%d", g.Metadata.DistinctTeams))
	ux.KeyValue("Complexity", fmt.Sprintf("%d", g.Metadata.ComplexityScore))

	if len(g.Direct) > 0 {
		fmt.Println()
		ux.Info("Direct consumers:")
		for _, dep := range g.Direct {
			outputDependencyEdge(dep)
		}
	}
	if len(g.Transitive) > 0 {
		fmt.Println()
		ux.Info("Transitive consumers:")
		for _, dep := range g.Transitive {
			outputDependencyEdge(dep)
		}
	}
	if len(g.Reverse) > 0 {
		fmt.Println()
		ux.Info("This schema depends on:")
		for _, dep := range g.Reverse {
			outputDependencyEdge(dep)
		}
	}
}

func outputDependencyEdge(dep depgraph.ServiceDependency) {
	line := fmt.Sprintf("  %-24s %-10s %-8s team=%s",
		dep.Service, dep.Strength, dep.Kind, dep.Team)
	if dep.Usage != "" {
		line += "  " + dep.Usage
	}
	fmt.Println(line)
}
