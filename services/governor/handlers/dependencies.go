// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/datatypes"
	"github.com/AleutianAI/strait/services/governor/depgraph"
)

// RegisterDependency handles POST /v1/dependencies.
func RegisterDependency(reg *depgraph.Registry, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RegisterDependencyRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := reg.Register(req.Target, req.Edge()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Info("dependency registered",
			"target", req.Target,
			"service", req.Service,
			"strength", req.Strength)
		c.JSON(http.StatusCreated, gin.H{
			"target":  req.Target,
			"service": req.Service,
		})
	}
}

// GetDependencyGraph handles GET /v1/dependencies/*target. Schema refs
// contain slashes, so the route uses a catch-all parameter rather than a
// single path segment.
func GetDependencyGraph(reg *depgraph.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := wildcardParam(c, "target")
		if target == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target is required"})
			return
		}

		g, err := reg.Graph(c.Request.Context(), target)
		if err != nil {
			if errors.Is(err, depgraph.ErrTargetNotRegistered) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, g)
	}
}

// GetDependencyMatrix handles GET /v1/dependencies. It returns the
// registry-wide adjacency view plus the registered target list, which is
// what the CLI renders as the dependency matrix.
func GetDependencyMatrix(reg *depgraph.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"targets": reg.Targets(),
			"matrix":  reg.Matrix(),
			"edges":   reg.EdgeCount(),
		})
	}
}

// wildcardParam returns a gin catch-all parameter without its leading
// slash.
func wildcardParam(c *gin.Context, name string) string {
	return strings.TrimPrefix(c.Param(name), "/")
}
