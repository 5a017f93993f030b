// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := New(filepath.Join(t.TempDir(), "project"))
	require.NoError(t, err)
	return g
}

func TestWriteAndReadFile(t *testing.T) {
	g := newGateway(t)

	n, err := g.WriteFile("calculator.py", "def add(a, b):\n    return a + b\n")
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	content, err := g.ReadFile("calculator.py")
	require.NoError(t, err)
	assert.Contains(t, content, "def add")
}

func TestWriteCreatesParentDirectories(t *testing.T) {
	g := newGateway(t)

	_, err := g.WriteFile("src/app/models/user.py", "class User: pass\n")
	require.NoError(t, err)

	content, err := g.ReadFile("src/app/models/user.py")
	require.NoError(t, err)
	assert.Equal(t, "class User: pass\n", content)
}

func TestReadMissingFile(t *testing.T) {
	g := newGateway(t)

	_, err := g.ReadFile("nope.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDotDotEscapeRejected(t *testing.T) {
	g := newGateway(t)

	_, err := g.WriteFile("../../etc/passwd", "pwned")

	var violation *PathViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "../../etc/passwd", violation.Requested)

	// No mutation may occur on a rejected path.
	_, statErr := os.Stat(filepath.Join(g.Root(), "..", "..", "etc", "passwd"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAbsolutePathRejected(t *testing.T) {
	g := newGateway(t)

	_, err := g.ReadFile("/etc/passwd")

	var violation *PathViolation
	assert.ErrorAs(t, err, &violation)
}

func TestInteriorDotDotAllowed(t *testing.T) {
	g := newGateway(t)

	// Traversal that stays inside the root is fine.
	_, err := g.WriteFile("src/../main.py", "print('hi')\n")
	require.NoError(t, err)

	_, err = g.ReadFile("main.py")
	assert.NoError(t, err)
}

func TestSymlinkEscapeRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	g := newGateway(t)

	outside := t.TempDir()
	link := filepath.Join(g.Root(), "escape")
	require.NoError(t, os.Symlink(outside, link))

	_, err := g.WriteFile("escape/secret.txt", "leak")

	var violation *PathViolation
	assert.ErrorAs(t, err, &violation)
}

func TestListFiles(t *testing.T) {
	g := newGateway(t)

	for _, f := range []string{"b.py", "a.py", "pkg/c.py"} {
		_, err := g.WriteFile(f, "pass\n")
		require.NoError(t, err)
	}

	files, err := g.ListFiles(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py", "pkg/c.py"}, files)
}

func TestListFilesMissingDirectory(t *testing.T) {
	g := newGateway(t)

	_, err := g.ListFiles("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
