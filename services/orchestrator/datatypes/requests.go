// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// MinPromptChars and MaxPromptChars bound a problem statement. The
	// lower bound rejects accidental fragments; the upper bound keeps the
	// prompt inside one model context comfortably.
	MinPromptChars = 10
	MaxPromptChars = 2000
)

// requestValidate is the shared validator instance for request bodies.
var requestValidate = validator.New()

// =============================================================================
// Session requests
// =============================================================================

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// Validate checks the prompt bounds after trimming. Safety filtering is a
// separate concern handled by the safety gate, not here.
func (r *CreateSessionRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return fmt.Errorf("prompt is required")
	}
	trimmed := strings.TrimSpace(r.Prompt)
	if len(trimmed) < MinPromptChars || len(trimmed) > MaxPromptChars {
		return fmt.Errorf("prompt must be %d-%d characters", MinPromptChars, MaxPromptChars)
	}
	return nil
}

// TrimmedPrompt returns the prompt with surrounding whitespace removed.
func (r *CreateSessionRequest) TrimmedPrompt() string {
	return strings.TrimSpace(r.Prompt)
}

// =============================================================================
// Node requests
// =============================================================================

// NodeAction names a per-node operation outside the phased pipeline.
type NodeAction string

const (
	ActionExpand   NodeAction = "expand"
	ActionDeepDive NodeAction = "deep_dive"
	ActionIgnore   NodeAction = "ignore"
)

// NodeActionRequest is the body of POST /v1/nodes/:id.
type NodeActionRequest struct {
	Action NodeAction `json:"action" validate:"required,oneof=expand deep_dive ignore"`
}

func (r *NodeActionRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}

// PatchNodeRequest is the body of PATCH /v1/nodes/:id. Only the four
// mutable node fields may appear; pointers distinguish "absent" from
// zero values. Grade is validated separately because null is the valid
// "ungraded" sentinel, which oneof-style tags cannot express.
type PatchNodeRequest struct {
	Grade    *int        `json:"grade"`
	GradeSet bool        `json:"-"`
	Status   *NodeStatus `json:"status"`
	XPos     *float64    `json:"x_pos"`
	YPos     *float64    `json:"y_pos"`
}

// UnmarshalJSON distinguishes an explicit "grade": null (clear the grade)
// from an absent grade key (leave it alone). The other fields carry no
// null semantics and decode normally.
func (r *PatchNodeRequest) UnmarshalJSON(data []byte) error {
	type alias PatchNodeRequest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*r = PatchNodeRequest(a)
	if _, ok := keys["grade"]; ok {
		r.GradeSet = true
	}
	return nil
}

func (r *PatchNodeRequest) Validate() error {
	if r.Grade != nil && (*r.Grade < 1 || *r.Grade > 5) {
		return fmt.Errorf("grade must be 1-5")
	}
	if r.Status != nil && !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", *r.Status)
	}
	return nil
}

// Empty reports whether the patch carries no fields at all.
func (r *PatchNodeRequest) Empty() bool {
	return r.Grade == nil && !r.GradeSet && r.Status == nil && r.XPos == nil && r.YPos == nil
}
