// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for review workflow
// endpoints. The acting reviewer always comes from the X-Strait-Actor
// header, never from a body field.
package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/strait/services/governor/review"
)

// reviewValidate is the validator instance for review datatypes.
var reviewValidate = validator.New()

// ApproveReviewRequest is the body of POST /v1/reviews/:id/approve.
type ApproveReviewRequest struct {
	Comment string `json:"comment,omitempty" validate:"max=4096"`
}

// Validate validates the ApproveReviewRequest fields.
func (r *ApproveReviewRequest) Validate() error {
	return reviewValidate.Struct(r)
}

// RejectReviewRequest is the body of POST /v1/reviews/:id/reject. A
// rejection must explain itself; Reason is required.
type RejectReviewRequest struct {
	Reason string `json:"reason" validate:"required,max=4096"`
}

// Validate validates the RejectReviewRequest fields.
func (r *RejectReviewRequest) Validate() error {
	return reviewValidate.Struct(r)
}

// CancelReviewRequest is the body of POST /v1/reviews/:id/cancel.
type CancelReviewRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=4096"`
}

// Validate validates the CancelReviewRequest fields.
func (r *CancelReviewRequest) Validate() error {
	return reviewValidate.Struct(r)
}

// AddCommentRequest is the body of POST /v1/reviews/:id/comments.
type AddCommentRequest struct {
	Body string `json:"body" validate:"required,max=8192"`
}

// Validate validates the AddCommentRequest fields.
func (r *AddCommentRequest) Validate() error {
	return reviewValidate.Struct(r)
}

// ReviewDetail is the response of GET /v1/reviews/:id: the review plus
// its computed approval status (pending reviewers resolved live against
// the team directory).
type ReviewDetail struct {
	Review *review.Request        `json:"review"`
	Status *review.ApprovalStatus `json:"status"`
}
