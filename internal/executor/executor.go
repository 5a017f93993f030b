// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package executor drives one task to completion by alternating reasoning
// turns with the text-generation collaborator and single sandboxed tool
// calls, under a run-wide iteration budget. The exit conditions are
// enumerable: completion signal, budget exhausted, or fatal tool error.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"promptforge/internal/artifact"
	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/prompts"
	"promptforge/internal/sandbox"
)

// Executor runs coding tasks. One Executor serves a whole run; per-task
// state lives on the stack of RunTask, so independent tasks may run on
// separate goroutines.
type Executor struct {
	provider llm.Provider
	toolbox  *Toolbox
	budget   *Budget
	model    string
	logger   logging.Logger
}

// New creates an Executor.
func New(provider llm.Provider, toolbox *Toolbox, budget *Budget, model string, logger logging.Logger) *Executor {
	return &Executor{
		provider: provider,
		toolbox:  toolbox,
		budget:   budget,
		model:    model,
		logger:   logger,
	}
}

// TaskResult is the outcome of one task execution.
type TaskResult struct {
	TaskID     string
	Status     artifact.TaskStatus
	Iterations int
	Summary    string
	Err        error
}

// turn is one decoded coder reply: either a tool call or a completion
// signal.
type turn struct {
	Tool    string            `json:"tool"`
	Args    map[string]string `json:"args"`
	Done    bool              `json:"done"`
	Summary string            `json:"summary"`
}

// RunTask drives one task until it signals completion, the shared budget
// runs out, or a non-recoverable tool error occurs. Tool calls within the
// task execute strictly sequentially and are never reordered.
// Cancellation is observed at iteration boundaries; the caller decides
// what an interrupted task's status becomes.
func (e *Executor) RunTask(ctx context.Context, task *artifact.Task) *TaskResult {
	result := &TaskResult{TaskID: task.ID}
	var history []string
	session := ""

	for {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}
		if !e.budget.Take() {
			e.logger.Warnf("task %s: iteration budget exhausted", task.ID)
			result.Status = artifact.TaskFailed
			result.Err = &BudgetExhausted{Limit: e.budget.Limit()}
			return result
		}
		result.Iterations++

		resp, err := e.provider.Generate(ctx, llm.Request{
			Stage:   "coding",
			System:  prompts.CoderSystem(),
			Prompt:  prompts.CoderTask(task, e.toolbox.List(), history),
			Model:   e.model,
			Session: session,
		})
		if err != nil {
			result.Status = artifact.TaskFailed
			result.Err = err
			return result
		}
		session = resp.Session

		parsed, err := decodeTurn(resp.Text)
		if err != nil {
			// Malformed reply: tell the collaborator and let it try again
			// within the budget.
			history = append(history, fmt.Sprintf("invalid response (%v), reply with a single JSON tool call", err))
			continue
		}

		if parsed.Done {
			e.logger.Infof("task %s complete after %d iterations", task.ID, result.Iterations)
			result.Status = artifact.TaskDone
			result.Summary = parsed.Summary
			return result
		}

		call := ToolCall{Tool: parsed.Tool, Args: parsed.Args}
		output, err := e.toolbox.Execute(ctx, call)
		switch {
		case err == nil:
			history = append(history, fmt.Sprintf("%s -> %s", call.Tool, truncate(output, 2000)))

		case isFatal(err):
			e.logger.Errorf("task %s: fatal tool error: %v", task.ID, err)
			result.Status = artifact.TaskFailed
			result.Err = err
			return result

		case ctx.Err() != nil:
			result.Err = ctx.Err()
			return result

		default:
			// Recoverable tool failure: surface it to the next turn.
			e.logger.Warnf("task %s: tool %s failed: %v", task.ID, call.Tool, err)
			history = append(history, fmt.Sprintf("%s failed: %v", call.Tool, err))
		}
	}
}

// isFatal reports whether a tool error ends the task immediately.
// Sandbox escapes are never retried.
func isFatal(err error) bool {
	var violation *sandbox.PathViolation
	return errors.As(err, &violation)
}

func decodeTurn(raw string) (*turn, error) {
	var t turn
	if err := json.Unmarshal(stripFences(raw), &t); err != nil {
		return nil, fmt.Errorf("malformed JSON: %v", err)
	}
	if !t.Done && t.Tool == "" {
		return nil, errors.New("reply names no tool and does not signal done")
	}
	return &t, nil
}

// stripFences removes a surrounding markdown code fence from a coder
// reply.
func stripFences(raw string) []byte {
	b := bytes.TrimSpace([]byte(raw))
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
		b = b[idx+1:]
	}
	if idx := bytes.LastIndex(b, []byte("```")); idx >= 0 {
		b = b[:idx]
	}
	return bytes.TrimSpace(b)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
