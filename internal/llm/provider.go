// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package llm is the boundary to the external text-generation
// collaborator. The pipeline only sees the Provider interface; timeout and
// transient-error retry live here, not in the collaborator.
package llm

import (
	"context"
	"fmt"
)

// Request is one structured prompt for a pipeline stage.
type Request struct {
	Stage    string // pipeline stage name, for model selection and tracing
	System   string // system prompt
	Prompt   string // user prompt
	Feedback string // validation error from the prior attempt, if retrying
	Model    string // model override; empty means provider default
	Session  string // collaborator session to continue; empty starts fresh
}

// Response is the collaborator's raw answer. The structured output
// validator decides whether it conforms to the stage schema.
type Response struct {
	Text    string
	Session string // session identifier for follow-up turns
}

// Provider generates one response per request.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ExternalServiceError reports a collaborator that stayed unreachable
// through the full retry schedule.
type ExternalServiceError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempts: %v", e.Provider, e.Attempts, e.Last)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Last
}

// FullPrompt renders the request body, appending corrective feedback when
// the prior attempt failed validation.
func (r Request) FullPrompt() string {
	if r.Feedback == "" {
		return r.Prompt
	}
	return fmt.Sprintf("%s\n\nYour previous response was rejected:\n%s\nCorrect every listed violation and respond again.", r.Prompt, r.Feedback)
}
