// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the governor service.
//
// The governor attributes every mutating operation (tracking a change,
// approving a review, recording a breaking-change approval) to an actor.
// Actor identity arrives in the X-Strait-Actor header, set by the strait
// CLI or by CI integrations. When the header is absent, a bearer token on
// the Authorization header is used as the name instead, so CI systems that
// already inject a token do not need a second header.
//
// # Identity Flow
//
//	Request
//	   │
//	   ▼
//	ActorMiddleware
//	   │
//	   ├─► Read "X-Strait-Actor: alice"
//	   │
//	   └─► Store actor in context
//	           │
//	           ▼
//	       Handler (retrieves via GetActor)
//
// # Trust Model
//
// The header is trusted as-is. Credential validation (tokens, mTLS,
// OIDC) is the job of the deployment's ingress layer; the governor only
// needs a stable name to write into reviews and audit records. Requests
// without the header are attributed to "anonymous".
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// Context Keys
// =============================================================================

// actorKey is the context key for storing the request actor.
// Using a package-scoped key prevents collisions with other context values.
const actorKey = "strait_actor"

// ActorHeader is the request header carrying the actor identity.
const ActorHeader = "X-Strait-Actor"

// AnonymousActor is the identity assigned when no header is present.
const AnonymousActor = "anonymous"

// bearerPrefix marks an Authorization header the middleware can fall back
// to for a name when X-Strait-Actor is absent.
const bearerPrefix = "Bearer "

// maxActorLen bounds the accepted header value. Longer values are almost
// certainly misuse and would bloat audit records.
const maxActorLen = 128

// =============================================================================
// Context Helpers
// =============================================================================

// SetActor stores the request actor in the Gin context.
//
// # Description
//
// Called by ActorMiddleware after reading the identity header. The stored
// actor can be retrieved by handlers via GetActor. Exposed for tests that
// exercise handlers without the middleware installed.
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//   - actor: Actor identity. Must not be empty.
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func SetActor(c *gin.Context, actor string) {
	c.Set(actorKey, actor)
}

// GetActor retrieves the request actor from the Gin context.
//
// # Description
//
// Called by handlers to attribute mutations. Returns AnonymousActor if
// the middleware did not run or stored a value of the wrong type, so
// callers never have to handle an empty identity.
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//
// # Outputs
//
//   - string: Actor identity, never empty.
//
// # Example
//
//	func (h *handler) Approve(c *gin.Context) {
//	    reviewer := middleware.GetActor(c)
//	    // reviewer is "anonymous" unless the client identified itself
//	}
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func GetActor(c *gin.Context) string {
	if v, exists := c.Get(actorKey); exists {
		if actor, ok := v.(string); ok && actor != "" {
			return actor
		}
	}
	return AnonymousActor
}

// =============================================================================
// Actor Middleware
// =============================================================================

// ActorMiddleware creates a Gin middleware that resolves the request actor.
//
// # Description
//
// Reads the X-Strait-Actor header, trims surrounding whitespace, and
// stores the result in the context. When the header is absent, the name
// portion of an "Authorization: Bearer <name>" header is used instead;
// the token is taken as a display name, never validated. A request with
// neither header resolves to AnonymousActor rather than being rejected:
// read-only endpoints are useful without identity, and write endpoints
// still produce a complete (if anonymous) audit trail.
//
// Values longer than 128 bytes or containing control characters are
// rejected with 400 so malformed identities never reach the audit log.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin.
//
// # Example
//
//	router.Use(middleware.ActorMiddleware())
//
// # Limitations
//
//   - The header value is not authenticated. Deployments that need
//     verified identity must terminate auth in front of the governor.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
				actor = strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
			}
		}
		if actor == "" {
			actor = AnonymousActor
		}
		if len(actor) > maxActorLen || !printable(actor) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid actor header",
			})
			return
		}

		SetActor(c, actor)
		c.Next()
	}
}

// printable reports whether s is free of ASCII control characters.
func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return false
		}
	}
	return true
}
