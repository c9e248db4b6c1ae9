// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/review"
)

// watchInterval is how often the watch endpoint re-resolves the approval
// status. Team membership is live, so pending reviewers can change even
// without new approvals.
const watchInterval = 3 * time.Second

// Keepalive timings. Pings keep idle connections alive through
// intermediaries; a missed pong within pongWait fails the next read.
// Vars so tests can compress the schedule.
var (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func sendJSON(ws *websocket.Conn, log *logging.Logger, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		log.Warn("websocket write failed", "error", err)
	}
	return err
}

// watchState is the change-detection key for status pushes.
type watchState struct {
	status    review.Status
	approvals int
	pending   int
}

func stateOf(s *review.ApprovalStatus) watchState {
	return watchState{
		status:    s.Status,
		approvals: len(s.Approvers),
		pending:   len(s.PendingReviewers),
	}
}

// WatchReview handles GET /v1/reviews/:id/watch.
//
// # Description
//
// Upgrades to a websocket and pushes the review's approval status: once
// on connect, then on every observed change. The connection closes after
// the terminal status has been pushed, or when the client disconnects.
// The CLI uses this to block on a review instead of polling the status
// endpoint.
func WatchReview(eng *review.Engine, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reviewID := c.Param("id")

		// Reject unknown reviews before upgrading so the client gets a
		// proper 404 instead of an immediate websocket close.
		status, err := eng.CheckApprovalStatus(c.Request.Context(), reviewID)
		if err != nil {
			c.JSON(reviewStatusCode(err), gin.H{"error": err.Error()})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("websocket upgrade failed", "review_id", reviewID, "error", err)
			return
		}
		defer ws.Close()
		log.Debug("watch client connected", "review_id", reviewID)

		if err := sendJSON(ws, log, status); err != nil {
			return
		}
		if status.Status.Terminal() {
			return
		}
		last := stateOf(status)

		// Read pump: we never expect client messages, but reading is how
		// gorilla surfaces the closed connection and delivers pongs.
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		pinger := time.NewTicker(pingInterval)
		defer pinger.Stop()

		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				log.Debug("watch client disconnected", "review_id", reviewID)
				return
			case <-pinger.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					log.Debug("watch ping failed", "review_id", reviewID, "error", err)
					return
				}
			case <-ticker.C:
				status, err := eng.CheckApprovalStatus(ctx, reviewID)
				if err != nil {
					_ = sendJSON(ws, log, gin.H{"error": err.Error()})
					return
				}
				if cur := stateOf(status); cur != last {
					if err := sendJSON(ws, log, status); err != nil {
						return
					}
					last = cur
				}
				if status.Status.Terminal() {
					return
				}
			}
		}
	}
}
