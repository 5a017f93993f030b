// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/artifact"
	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/sandbox"
)

func newTestToolbox(t *testing.T) (*Toolbox, *sandbox.Gateway) {
	t.Helper()
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "project"))
	require.NoError(t, err)
	return NewToolbox(gw, nil, ToolboxConfig{}), gw
}

func calcTask() *artifact.Task {
	return &artifact.Task{
		ID:          "task-001",
		FilePath:    "calculator.py",
		Instruction: "implement arithmetic",
		Status:      artifact.TaskPending,
	}
}

func TestRunTask_WriteThenDone(t *testing.T) {
	toolbox, gw := newTestToolbox(t)
	provider := llm.NewScriptedProvider().
		Respond("coding", `{"tool": "write_file", "args": {"path": "calculator.py", "content": "def add(a, b):\n    return a + b\n"}}`).
		Respond("coding", `{"done": true, "summary": "implemented arithmetic"}`)

	exec := New(provider, toolbox, NewBudget(5), "", logging.Nop())
	result := exec.RunTask(context.Background(), calcTask())

	assert.Equal(t, artifact.TaskDone, result.Status)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, "implemented arithmetic", result.Summary)
	assert.NoError(t, result.Err)

	content, err := gw.ReadFile("calculator.py")
	require.NoError(t, err)
	assert.Contains(t, content, "def add")
}

func TestRunTask_FencedToolCall(t *testing.T) {
	toolbox, _ := newTestToolbox(t)
	provider := llm.NewScriptedProvider().
		Respond("coding", "```json\n{\"tool\": \"get_current_directory\", \"args\": {}}\n```").
		Respond("coding", `{"done": true}`)

	exec := New(provider, toolbox, NewBudget(5), "", logging.Nop())
	result := exec.RunTask(context.Background(), calcTask())

	assert.Equal(t, artifact.TaskDone, result.Status)
}

func TestRunTask_BudgetExhausted(t *testing.T) {
	toolbox, _ := newTestToolbox(t)
	provider := llm.NewScriptedProvider().
		Respond("coding", `{"tool": "get_current_directory", "args": {}}`).
		Respond("coding", `{"tool": "get_current_directory", "args": {}}`).
		Respond("coding", `{"tool": "get_current_directory", "args": {}}`)

	exec := New(provider, toolbox, NewBudget(2), "", logging.Nop())
	result := exec.RunTask(context.Background(), calcTask())

	assert.Equal(t, artifact.TaskFailed, result.Status)
	var exhausted *BudgetExhausted
	require.ErrorAs(t, result.Err, &exhausted)
	assert.Equal(t, 2, exhausted.Limit)
}

func TestRunTask_PathViolationIsFatal(t *testing.T) {
	toolbox, gw := newTestToolbox(t)
	provider := llm.NewScriptedProvider().
		Respond("coding", `{"tool": "write_file", "args": {"path": "../../etc/passwd", "content": "pwned"}}`).
		// Never reached: the violation must end the task immediately.
		Respond("coding", `{"done": true}`)

	exec := New(provider, toolbox, NewBudget(10), "", logging.Nop())
	result := exec.RunTask(context.Background(), calcTask())

	assert.Equal(t, artifact.TaskFailed, result.Status)
	var violation *sandbox.PathViolation
	require.ErrorAs(t, result.Err, &violation)
	assert.Equal(t, 1, result.Iterations)

	// Nothing was written outside the root.
	files, err := gw.ListFiles(".")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunTask_RecoversFromMalformedReply(t *testing.T) {
	toolbox, _ := newTestToolbox(t)
	provider := llm.NewScriptedProvider().
		Respond("coding", "sure, let me write that file for you!").
		Respond("coding", `{"done": true}`)

	exec := New(provider, toolbox, NewBudget(5), "", logging.Nop())
	result := exec.RunTask(context.Background(), calcTask())

	assert.Equal(t, artifact.TaskDone, result.Status)
	assert.Equal(t, 2, result.Iterations)
}

func TestRunTask_RecoverableToolFailureFeedsBack(t *testing.T) {
	toolbox, _ := newTestToolbox(t)
	// The unknown tool produces a recoverable ToolExecutionError.
	provider := llm.NewScriptedProvider().
		Respond("coding", `{"tool": "teleport", "args": {}}`).
		Respond("coding", `{"done": true}`)

	exec := New(provider, toolbox, NewBudget(5), "", logging.Nop())
	result := exec.RunTask(context.Background(), calcTask())

	assert.Equal(t, artifact.TaskDone, result.Status)

	// The failure was surfaced to the second reasoning turn.
	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Prompt, "teleport failed")
}

func TestRunTask_CancellationAtIterationBoundary(t *testing.T) {
	toolbox, _ := newTestToolbox(t)
	provider := llm.NewScriptedProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := New(provider, toolbox, NewBudget(5), "", logging.Nop())
	result := exec.RunTask(ctx, calcTask())

	assert.ErrorIs(t, result.Err, context.Canceled)
	// Status is left for the pipeline to decide; the task is not failed.
	assert.NotEqual(t, artifact.TaskFailed, result.Status)
	assert.Zero(t, result.Iterations)
}

func TestRunTask_ProviderErrorFailsTask(t *testing.T) {
	toolbox, _ := newTestToolbox(t)
	provider := llm.NewScriptedProvider() // no scripted responses -> error

	exec := New(provider, toolbox, NewBudget(5), "", logging.Nop())
	result := exec.RunTask(context.Background(), calcTask())

	assert.Equal(t, artifact.TaskFailed, result.Status)
	assert.Error(t, result.Err)
}

func TestBudgetSharedAcrossTasks(t *testing.T) {
	budget := NewBudget(3)

	assert.True(t, budget.Take())
	assert.True(t, budget.Take())
	assert.Equal(t, 1, budget.Remaining())
	assert.True(t, budget.Take())
	assert.False(t, budget.Take())
}
