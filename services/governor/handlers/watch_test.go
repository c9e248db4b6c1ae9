// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/strait/services/governor/review"
)

// TestWatchReview_TerminalOnConnect verifies a watch on an already
// resolved review pushes the terminal status once and closes.
func TestWatchReview_TerminalOnConnect(t *testing.T) {
	env, rec := reviewEnv(t)
	_, err := env.reviews.Approve(t.Context(), rec.ReviewID, "alice", "lgtm")
	require.NoError(t, err)

	router := createTestRouter(http.MethodGet, "/v1/reviews/:id/watch", WatchReview(env.reviews, env.log))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/reviews/" + rec.ReviewID + "/watch"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var status review.ApprovalStatus
	require.NoError(t, ws.ReadJSON(&status))
	assert.Equal(t, rec.ReviewID, status.ReviewID)
	assert.Equal(t, review.StatusApproved, status.Status)
	assert.True(t, status.IsApproved)

	// Terminal status was the last push; the server closes the socket.
	err = ws.ReadJSON(&status)
	assert.Error(t, err)
}

// TestWatchReview_UnknownReview verifies unknown ids 404 before the
// websocket upgrade.
func TestWatchReview_UnknownReview(t *testing.T) {
	env, _ := reviewEnv(t)
	router := createTestRouter(http.MethodGet, "/v1/reviews/:id/watch", WatchReview(env.reviews, env.log))

	w := performRequest(router, http.MethodGet, "/v1/reviews/nope/watch", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestWatchReview_Keepalive verifies the server pings idle watch
// connections so intermediaries do not reap them.
func TestWatchReview_Keepalive(t *testing.T) {
	prev := pingInterval
	pingInterval = 50 * time.Millisecond
	t.Cleanup(func() { pingInterval = prev })

	env, rec := reviewEnv(t)
	router := createTestRouter(http.MethodGet, "/v1/reviews/:id/watch", WatchReview(env.reviews, env.log))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/reviews/" + rec.ReviewID + "/watch"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer ws.Close()

	pinged := make(chan struct{}, 1)
	ws.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return ws.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second))
	})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var status review.ApprovalStatus
	require.NoError(t, ws.ReadJSON(&status))
	assert.Equal(t, review.StatusPending, status.Status)

	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(3 * time.Second):
		t.Fatal("no ping received within the keepalive interval")
	}
}
