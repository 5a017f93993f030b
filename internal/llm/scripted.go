// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedProvider replays canned responses keyed by stage, in order.
// Pipeline and executor tests drive the full control flow with it, without
// any external service.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses map[string][]scripted
	requests  []Request
}

type scripted struct {
	text string
	err  error
}

// NewScriptedProvider creates an empty scripted provider.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{responses: make(map[string][]scripted)}
}

// Respond queues a response for the given stage.
func (s *ScriptedProvider) Respond(stage, text string) *ScriptedProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[stage] = append(s.responses[stage], scripted{text: text})
	return s
}

// Fail queues an error for the given stage.
func (s *ScriptedProvider) Fail(stage string, err error) *ScriptedProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[stage] = append(s.responses[stage], scripted{err: err})
	return s
}

// Generate pops the next queued response for the request's stage.
func (s *ScriptedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	queue := s.responses[req.Stage]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted response for stage %q", req.Stage)
	}
	next := queue[0]
	s.responses[req.Stage] = queue[1:]

	if next.err != nil {
		return nil, next.err
	}
	return &Response{Text: next.text, Session: "scripted"}, nil
}

// Requests returns every request seen so far, in order.
func (s *ScriptedProvider) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
