// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/strait/services/governor/audit"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// QueryAudit handles GET /v1/audit.
//
// Query parameters: event_type (comma-separated), actor, resource_type,
// resource_id, outcome, start, end (RFC3339; start inclusive, end
// exclusive), limit (default 100, max 1000), offset. Records return
// newest first.
func QueryAudit(auditLog *audit.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := audit.Filter{
			Actor:        c.Query("actor"),
			ResourceType: c.Query("resource_type"),
			ResourceID:   c.Query("resource_id"),
			Outcome:      c.Query("outcome"),
			Limit:        defaultAuditLimit,
		}
		if raw := c.Query("event_type"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					f.EventTypes = append(f.EventTypes, t)
				}
			}
		}

		if raw := c.Query("start"); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "start: expected RFC3339 timestamp"})
				return
			}
			f.Start = ts
		}
		if raw := c.Query("end"); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "end: expected RFC3339 timestamp"})
				return
			}
			f.End = ts
		}

		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit: expected a positive integer"})
				return
			}
			if n > maxAuditLimit {
				n = maxAuditLimit
			}
			f.Limit = n
		}
		if raw := c.Query("offset"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "offset: expected a non-negative integer"})
				return
			}
			f.Offset = n
		}

		records, err := auditLog.Query(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
	}
}
