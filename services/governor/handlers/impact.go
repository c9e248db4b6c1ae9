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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/telemetry"
)

// AnalyzeImpact handles GET /v1/impact/*target.
//
// The assessment is computed against the current registry state with no
// breaking findings, so the result reflects blast radius and coupling
// only. Tracking a change is what folds detector findings in.
func AnalyzeImpact(reg *depgraph.Registry, an *impact.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "AnalyzeImpact")
		defer span.End()

		target := wildcardParam(c, "target")
		if target == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target is required"})
			return
		}

		g, err := reg.Graph(ctx, target)
		if err != nil {
			if errors.Is(err, depgraph.ErrTargetNotRegistered) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			telemetry.RecordError(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		as, err := an.Analyze(ctx, g, nil)
		if err != nil {
			telemetry.RecordError(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, as)
	}
}
