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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/strait/services/governor/audit"
	"github.com/AleutianAI/strait/services/governor/datatypes"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/middleware"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/tracker"
)

// =============================================================================
// Client
// =============================================================================

// apiError is a non-2xx response from the governor.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("governor returned %d: %s", e.Status, e.Message)
}

// governorClient is a thin typed HTTP client for the governor API.
//
// # Description
//
// Wraps the governor's REST endpoints with the same request and response
// types the service itself uses. Every request carries the actor identity
// header so server-side audit records attribute actions correctly.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying http.Client is shared.
type governorClient struct {
	baseURL string
	actor   string
	http    *http.Client
}

func newGovernorClient(baseURL, actor string) *governorClient {
	return &governorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		actor:   actor,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues a request and decodes the JSON response into out (when out is
// non-nil). Non-2xx statuses become *apiError with the server's error
// message when one is present.
func (c *governorClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.ActorHeader, c.actor)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call governor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			msg = envelope.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// =============================================================================
// Changes
// =============================================================================

func (c *governorClient) TrackChange(ctx context.Context, req *datatypes.TrackChangeRequest) (*tracker.ChangeRecord, error) {
	var rec tracker.ChangeRecord
	if err := c.do(ctx, http.MethodPost, "/v1/changes", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *governorClient) GetChange(ctx context.Context, id string) (*tracker.ChangeRecord, error) {
	var rec tracker.ChangeRecord
	if err := c.do(ctx, http.MethodGet, "/v1/changes/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *governorClient) ListChanges(ctx context.Context, repository, author, status string) ([]*tracker.ChangeRecord, error) {
	q := url.Values{}
	if repository != "" {
		q.Set("repository", repository)
	}
	if author != "" {
		q.Set("author", author)
	}
	if status != "" {
		q.Set("status", status)
	}
	path := "/v1/changes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var envelope struct {
		Changes []*tracker.ChangeRecord `json:"changes"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Changes, nil
}

func (c *governorClient) MigrationPlan(ctx context.Context, id string) (*impact.MigrationPlan, error) {
	var plan impact.MigrationPlan
	if err := c.do(ctx, http.MethodGet, "/v1/changes/"+url.PathEscape(id)+"/plan", nil, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// =============================================================================
// Dependencies and Impact
// =============================================================================

func (c *governorClient) RegisterDependency(ctx context.Context, req *datatypes.RegisterDependencyRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/dependencies", req, nil)
}

func (c *governorClient) DependencyGraph(ctx context.Context, target string) (*depgraph.DependencyGraph, error) {
	var g depgraph.DependencyGraph
	if err := c.do(ctx, http.MethodGet, "/v1/dependencies/"+escapeTarget(target), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// dependencyMatrix mirrors the GET /v1/dependencies response.
type dependencyMatrix struct {
	Targets []string            `json:"targets"`
	Matrix  map[string][]string `json:"matrix"`
	Edges   int                 `json:"edges"`
}

func (c *governorClient) DependencyMatrix(ctx context.Context) (*dependencyMatrix, error) {
	var m dependencyMatrix
	if err := c.do(ctx, http.MethodGet, "/v1/dependencies", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *governorClient) Impact(ctx context.Context, target string) (*impact.Assessment, error) {
	var as impact.Assessment
	if err := c.do(ctx, http.MethodGet, "/v1/impact/"+escapeTarget(target), nil, &as); err != nil {
		return nil, err
	}
	return &as, nil
}

// escapeTarget escapes a schema ref for the catch-all route segments.
// Slashes stay literal so the server-side wildcard preserves the ref.
func escapeTarget(target string) string {
	parts := strings.Split(target, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// =============================================================================
// Policies
// =============================================================================

func (c *governorClient) CheckPolicy(ctx context.Context, req *datatypes.PolicyCheckRequest) (*datatypes.PolicyCheckResponse, error) {
	var resp datatypes.PolicyCheckResponse
	if err := c.do(ctx, http.MethodPost, "/v1/policies/check", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *governorClient) ApproveBreaking(ctx context.Context, req *datatypes.RecordBreakingApprovalRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/approvals/breaking", req, nil)
}

func (c *governorClient) ListBreakingApprovals(ctx context.Context, repository string) ([]policy.BreakingApproval, error) {
	var envelope struct {
		Approvals []policy.BreakingApproval `json:"approvals"`
	}
	path := "/v1/approvals/breaking?repository=" + url.QueryEscape(repository)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Approvals, nil
}

// =============================================================================
// Reviews
// =============================================================================

func (c *governorClient) GetReview(ctx context.Context, id string) (*datatypes.ReviewDetail, error) {
	var detail datatypes.ReviewDetail
	if err := c.do(ctx, http.MethodGet, "/v1/reviews/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *governorClient) ListReviews(ctx context.Context, reviewer, status string) ([]*review.Request, error) {
	q := url.Values{}
	if reviewer != "" {
		q.Set("reviewer", reviewer)
	}
	if status != "" {
		q.Set("status", status)
	}
	path := "/v1/reviews"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var envelope struct {
		Reviews []*review.Request `json:"reviews"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Reviews, nil
}

func (c *governorClient) ApproveReview(ctx context.Context, id, comment string) (*review.Request, error) {
	var rev review.Request
	body := &datatypes.ApproveReviewRequest{Comment: comment}
	if err := c.do(ctx, http.MethodPost, "/v1/reviews/"+url.PathEscape(id)+"/approve", body, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *governorClient) RejectReview(ctx context.Context, id, reason string) (*review.Request, error) {
	var rev review.Request
	body := &datatypes.RejectReviewRequest{Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/v1/reviews/"+url.PathEscape(id)+"/reject", body, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *governorClient) CancelReview(ctx context.Context, id, reason string) (*review.Request, error) {
	var rev review.Request
	body := &datatypes.CancelReviewRequest{Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/v1/reviews/"+url.PathEscape(id)+"/cancel", body, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *governorClient) CommentReview(ctx context.Context, id, commentBody string) (*review.Request, error) {
	var rev review.Request
	body := &datatypes.AddCommentRequest{Body: commentBody}
	if err := c.do(ctx, http.MethodPost, "/v1/reviews/"+url.PathEscape(id)+"/comments", body, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

// =============================================================================
// Audit
// =============================================================================

// auditQuery holds the CLI-side audit filters; zero values are omitted
// from the query string.
type auditQuery struct {
	EventType    string
	Actor        string
	ResourceType string
	ResourceID   string
	Outcome      string
	Start        string
	End          string
	Limit        int
}

func (c *governorClient) QueryAudit(ctx context.Context, q auditQuery) ([]audit.Record, error) {
	values := url.Values{}
	if q.EventType != "" {
		values.Set("event_type", q.EventType)
	}
	if q.Actor != "" {
		values.Set("actor", q.Actor)
	}
	if q.ResourceType != "" {
		values.Set("resource_type", q.ResourceType)
	}
	if q.ResourceID != "" {
		values.Set("resource_id", q.ResourceID)
	}
	if q.Outcome != "" {
		values.Set("outcome", q.Outcome)
	}
	if q.Start != "" {
		values.Set("start", q.Start)
	}
	if q.End != "" {
		values.Set("end", q.End)
	}
	if q.Limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", q.Limit))
	}

	path := "/v1/audit"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var envelope struct {
		Records []audit.Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Records, nil
}
