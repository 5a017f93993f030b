// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"promptforge/internal/sandbox"
)

// ToolCall is one requested sandboxed operation, decoded from a coder
// turn. Every side effect the coding loop performs goes through this
// contract so failures are uniformly observable.
type ToolCall struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args"`
}

// ToolExecutionError reports a side-effecting tool that ran and failed,
// e.g. a command with non-zero exit. It is recoverable: the output is fed
// back to the next reasoning turn within the iteration budget.
type ToolExecutionError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// CommandRunner executes one shell command in a directory. The local
// implementation runs it through the host shell; the docker runner
// substitutes an isolated container.
type CommandRunner interface {
	Run(ctx context.Context, dir, command string) (string, error)
}

// ToolboxConfig controls which optional tools are exposed and how the
// side-effecting ones are bounded.
type ToolboxConfig struct {
	EnableGit       bool
	EnableWebSearch bool
	CommandTimeout  time.Duration // per side-effecting call
	MinInterval     time.Duration // rate bound between side-effecting calls
}

// Toolbox dispatches tool calls against one project sandbox. File tools
// go through the gateway; command tools go through the runner with a
// timeout and a minimum interval between calls.
type Toolbox struct {
	gateway *sandbox.Gateway
	runner  CommandRunner
	httpc   *http.Client
	cfg     ToolboxConfig

	mu       sync.Mutex
	lastSide time.Time
}

// NewToolbox builds the tool surface for one task executor.
func NewToolbox(gateway *sandbox.Gateway, runner CommandRunner, cfg ToolboxConfig) *Toolbox {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Minute
	}
	return &Toolbox{
		gateway: gateway,
		runner:  runner,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		cfg:     cfg,
	}
}

// List renders the tool surface for the coder prompt.
func (t *Toolbox) List() string {
	var sb strings.Builder
	sb.WriteString("- write_file(path, content): create or overwrite a file, returns byte count\n")
	sb.WriteString("- read_file(path): return file content\n")
	sb.WriteString("- list_files(dir): list files under a directory\n")
	sb.WriteString("- get_current_directory(): return the project root\n")
	if t.runner != nil {
		sb.WriteString("- run_command(command): run a shell command in the project root\n")
		sb.WriteString("- install_package(manager, name): install a dependency (pip or npm)\n")
	}
	if t.runner != nil && t.cfg.EnableGit {
		sb.WriteString("- git(args): run a git subcommand in the project root\n")
	}
	if t.cfg.EnableWebSearch {
		sb.WriteString("- web_search(query): look up documentation on the web\n")
	}
	return sb.String()
}

// Execute runs one tool call and returns its textual result. A
// *sandbox.PathViolation is non-recoverable; a *ToolExecutionError is
// recoverable within the task's budget.
func (t *Toolbox) Execute(ctx context.Context, call ToolCall) (string, error) {
	switch call.Tool {
	case "write_file":
		n, err := t.gateway.WriteFile(call.Args["path"], call.Args["content"])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("wrote %d bytes to %s", n, call.Args["path"]), nil

	case "read_file":
		content, err := t.gateway.ReadFile(call.Args["path"])
		if errors.Is(err, sandbox.ErrNotFound) {
			return fmt.Sprintf("file %s does not exist", call.Args["path"]), nil
		}
		if err != nil {
			return "", err
		}
		return content, nil

	case "list_files":
		dir := call.Args["dir"]
		if dir == "" {
			dir = "."
		}
		files, err := t.gateway.ListFiles(dir)
		if errors.Is(err, sandbox.ErrNotFound) {
			return fmt.Sprintf("directory %s does not exist", dir), nil
		}
		if err != nil {
			return "", err
		}
		if len(files) == 0 {
			return "no files found", nil
		}
		return strings.Join(files, "\n"), nil

	case "get_current_directory":
		return t.gateway.Root(), nil

	case "run_command":
		return t.runCommand(ctx, call.Args["command"])

	case "git":
		if !t.cfg.EnableGit {
			return "", &ToolExecutionError{Tool: "git", Err: errors.New("git tool is disabled")}
		}
		return t.runCommand(ctx, "git "+call.Args["args"])

	case "install_package":
		return t.installPackage(ctx, call.Args["manager"], call.Args["name"])

	case "web_search":
		if !t.cfg.EnableWebSearch {
			return "", &ToolExecutionError{Tool: "web_search", Err: errors.New("web search is disabled")}
		}
		return t.webSearch(ctx, call.Args["query"])

	default:
		return "", &ToolExecutionError{Tool: call.Tool, Err: fmt.Errorf("unknown tool %q", call.Tool)}
	}
}

// throttle enforces the minimum interval between side-effecting calls.
func (t *Toolbox) throttle(ctx context.Context) error {
	if t.cfg.MinInterval <= 0 {
		return nil
	}
	t.mu.Lock()
	now := time.Now()
	wait := t.cfg.MinInterval - now.Sub(t.lastSide)
	if wait < 0 {
		wait = 0
	}
	// Reserve the next slot before sleeping so concurrent callers queue up
	// instead of racing for the same interval.
	t.lastSide = now.Add(wait)
	t.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Toolbox) runCommand(ctx context.Context, command string) (string, error) {
	if t.runner == nil {
		return "", &ToolExecutionError{Tool: "run_command", Err: errors.New("command execution is disabled")}
	}
	if strings.TrimSpace(command) == "" {
		return "", &ToolExecutionError{Tool: "run_command", Err: errors.New("empty command")}
	}
	if err := t.throttle(ctx); err != nil {
		return "", err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, t.cfg.CommandTimeout)
	defer cancel()

	output, err := t.runner.Run(cmdCtx, t.gateway.Root(), command)
	if err != nil {
		return "", &ToolExecutionError{Tool: "run_command", Output: output, Err: err}
	}
	return output, nil
}

func (t *Toolbox) installPackage(ctx context.Context, manager, name string) (string, error) {
	if name == "" {
		return "", &ToolExecutionError{Tool: "install_package", Err: errors.New("package name required")}
	}
	var command string
	switch manager {
	case "pip", "":
		command = "pip install " + name
	case "npm":
		command = "npm install " + name
	default:
		return "", &ToolExecutionError{Tool: "install_package", Err: fmt.Errorf("unsupported package manager %q", manager)}
	}
	return t.runCommand(ctx, command)
}

// webSearch performs a bounded documentation lookup. Result size is capped
// so a single lookup cannot flood the conversation context.
func (t *Toolbox) webSearch(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", &ToolExecutionError{Tool: "web_search", Err: errors.New("empty query")}
	}
	if err := t.throttle(ctx); err != nil {
		return "", err
	}

	endpoint := "https://duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &ToolExecutionError{Tool: "web_search", Err: err}
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", &ToolExecutionError{Tool: "web_search", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ToolExecutionError{Tool: "web_search", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5000))
	if err != nil {
		return "", &ToolExecutionError{Tool: "web_search", Err: err}
	}
	return string(body), nil
}
