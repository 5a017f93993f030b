// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunnerExecutes(t *testing.T) {
	out, err := LocalRunner{}.Run(context.Background(), t.TempDir(), "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
}

func TestLocalRunnerShellOperators(t *testing.T) {
	out, err := LocalRunner{}.Run(context.Background(), t.TempDir(), "echo one && echo two")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", out)
}

func TestLocalRunnerWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	out, err := LocalRunner{}.Run(context.Background(), dir, "pwd")
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, strings.TrimSpace(out))
}

func TestLocalRunnerNonZeroExit(t *testing.T) {
	out, err := LocalRunner{}.Run(context.Background(), t.TempDir(), "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, out, "boom")
}

func TestLocalRunnerContextExpiry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := LocalRunner{}.Run(ctx, t.TempDir(), "sleep 10")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
