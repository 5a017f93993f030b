// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"context"
	"os/exec"
)

// LocalRunner executes commands on the host through the system shell, so
// pipes, && chains and redirects all behave as the coder expects. The
// Docker runner uses the same sh -c contract inside a container.
type LocalRunner struct{}

// Run executes a shell command with dir as its working directory. Context
// expiry kills the process and surfaces the context error.
func (LocalRunner) Run(ctx context.Context, dir, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return string(out), ctxErr
	}
	return string(out), err
}
