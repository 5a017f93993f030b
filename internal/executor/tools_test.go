// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/sandbox"
)

type fakeRunner struct {
	commands []string
	output   string
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, dir, command string) (string, error) {
	f.commands = append(f.commands, command)
	return f.output, f.err
}

func TestToolboxWriteReadList(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	toolbox := NewToolbox(gw, nil, ToolboxConfig{})
	ctx := context.Background()

	out, err := toolbox.Execute(ctx, ToolCall{Tool: "write_file", Args: map[string]string{
		"path":    "src/main.py",
		"content": "print('hi')\n",
	}})
	require.NoError(t, err)
	assert.Contains(t, out, "src/main.py")

	out, err = toolbox.Execute(ctx, ToolCall{Tool: "read_file", Args: map[string]string{"path": "src/main.py"}})
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", out)

	out, err = toolbox.Execute(ctx, ToolCall{Tool: "list_files", Args: map[string]string{"dir": "."}})
	require.NoError(t, err)
	assert.Contains(t, out, "src/main.py")
}

func TestToolboxReadMissingFileIsRecoverable(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	toolbox := NewToolbox(gw, nil, ToolboxConfig{})

	out, err := toolbox.Execute(context.Background(), ToolCall{Tool: "read_file", Args: map[string]string{"path": "missing.py"}})
	require.NoError(t, err)
	assert.Contains(t, out, "missing.py")
	assert.Contains(t, out, "does not exist")
}

func TestToolboxEscapeIsPathViolation(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	toolbox := NewToolbox(gw, nil, ToolboxConfig{})

	_, err = toolbox.Execute(context.Background(), ToolCall{Tool: "write_file", Args: map[string]string{
		"path":    "../../etc/passwd",
		"content": "x",
	}})
	var violation *sandbox.PathViolation
	require.ErrorAs(t, err, &violation)
}

func TestToolboxRunCommand(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	runner := &fakeRunner{output: "ok"}
	toolbox := NewToolbox(gw, runner, ToolboxConfig{})

	out, err := toolbox.Execute(context.Background(), ToolCall{Tool: "run_command", Args: map[string]string{
		"command": "python -m pytest",
	}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	require.Len(t, runner.commands, 1)
	assert.Equal(t, "python -m pytest", runner.commands[0])
}

func TestToolboxCommandFailureIsRecoverable(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	runner := &fakeRunner{output: "SyntaxError", err: errors.New("exit status 1")}
	toolbox := NewToolbox(gw, runner, ToolboxConfig{})

	_, err = toolbox.Execute(context.Background(), ToolCall{Tool: "run_command", Args: map[string]string{
		"command": "python main.py",
	}})
	var toolErr *ToolExecutionError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "run_command", toolErr.Tool)
	assert.Contains(t, toolErr.Output, "SyntaxError")
}

func TestToolboxGitDisabled(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	toolbox := NewToolbox(gw, &fakeRunner{}, ToolboxConfig{EnableGit: false})

	_, err = toolbox.Execute(context.Background(), ToolCall{Tool: "git", Args: map[string]string{"args": "status"}})
	var toolErr *ToolExecutionError
	require.ErrorAs(t, err, &toolErr)
}

func TestToolboxInstallPackage(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	runner := &fakeRunner{output: "installed"}
	toolbox := NewToolbox(gw, runner, ToolboxConfig{})
	ctx := context.Background()

	for manager, want := range map[string]string{
		"pip": "pip install requests",
		"npm": "npm install requests",
	} {
		t.Run(manager, func(t *testing.T) {
			_, err := toolbox.Execute(ctx, ToolCall{Tool: "install_package", Args: map[string]string{
				"manager": manager,
				"name":    "requests",
			}})
			require.NoError(t, err)
			assert.Contains(t, runner.commands, want)
		})
	}

	_, err = toolbox.Execute(ctx, ToolCall{Tool: "install_package", Args: map[string]string{
		"manager": "cargo",
		"name":    "serde",
	}})
	var toolErr *ToolExecutionError
	require.ErrorAs(t, err, &toolErr)
}

func TestToolboxThrottlesSideEffects(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	runner := &fakeRunner{output: "ok"}
	toolbox := NewToolbox(gw, runner, ToolboxConfig{MinInterval: 50 * time.Millisecond})
	ctx := context.Background()

	call := ToolCall{Tool: "run_command", Args: map[string]string{"command": "pytest"}}
	start := time.Now()
	_, err = toolbox.Execute(ctx, call)
	require.NoError(t, err)
	_, err = toolbox.Execute(ctx, call)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"second side-effecting call must wait out the interval")
}

func TestToolboxUnknownTool(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	toolbox := NewToolbox(gw, nil, ToolboxConfig{})

	_, err = toolbox.Execute(context.Background(), ToolCall{Tool: "teleport", Args: nil})
	var toolErr *ToolExecutionError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Error(), "teleport")
}

func TestToolboxListNamesEveryTool(t *testing.T) {
	gw, err := sandbox.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	toolbox := NewToolbox(gw, &fakeRunner{}, ToolboxConfig{EnableGit: true, EnableWebSearch: true})

	list := toolbox.List()
	for _, name := range []string{"write_file", "read_file", "list_files", "run_command", "git", "install_package", "web_search"} {
		assert.Contains(t, list, name, fmt.Sprintf("tool %s missing from listing", name))
	}
}
