// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package sandbox confines every file operation issued by the tool-calling
// loop to a single project root. Gateway.Resolve is the one enforcement
// point: no path that canonicalizes outside the root is ever touched.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PathViolation reports an attempt to reach outside the project root.
// It is never retried: the offending task fails immediately.
type PathViolation struct {
	Requested string // path as submitted by the tool call
	Resolved  string // canonical result that escaped the root
	Root      string // the enforced sandbox root
}

func (e *PathViolation) Error() string {
	return fmt.Sprintf("path %q resolves to %q outside project root %q", e.Requested, e.Resolved, e.Root)
}

// ErrNotFound is returned by ReadFile when the target does not exist.
var ErrNotFound = errors.New("file not found")

// Gateway validates and executes file operations relative to one project
// root. Writes to the same path are serialized so concurrent tasks never
// interleave; everything else is safe for concurrent use as-is.
type Gateway struct {
	root   string
	writes *pathLocks
}

// New creates a Gateway rooted at dir, creating the directory if needed.
// The stored root is canonical so symlinked roots compare correctly.
func New(dir string) (*Gateway, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize project root: %w", err)
	}
	return &Gateway{root: canonical, writes: newPathLocks()}, nil
}

// Root returns the canonical sandbox root.
func (g *Gateway) Root() string {
	return g.root
}

// Resolve maps a tool-supplied path onto the filesystem. Absolute paths,
// ".." traversal and symlink escapes all fail with *PathViolation before
// any filesystem mutation can happen.
func (g *Gateway) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", &PathViolation{Requested: rel, Resolved: rel, Root: g.root}
	}
	joined := filepath.Join(g.root, rel)
	resolved, err := canonicalize(joined)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize %q: %w", rel, err)
	}
	if !within(g.root, resolved) {
		return "", &PathViolation{Requested: rel, Resolved: resolved, Root: g.root}
	}
	return resolved, nil
}

// canonicalize resolves symlinks through the nearest existing ancestor so
// paths that do not exist yet (the common case for writes) still get a
// canonical form.
func canonicalize(path string) (string, error) {
	existing := path
	var trailing []string
	for {
		real, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(append([]string{real}, trailing...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", err
		}
		trailing = append([]string{filepath.Base(existing)}, trailing...)
		existing = parent
	}
}

func within(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// WriteFile creates or overwrites a file inside the sandbox, creating
// parent directories as needed. Returns the number of bytes written.
func (g *Gateway) WriteFile(rel, content string) (int, error) {
	target, err := g.Resolve(rel)
	if err != nil {
		return 0, err
	}
	lock := g.writes.get(target)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return len(content), nil
}

// ReadFile returns the contents of a sandboxed file, or ErrNotFound.
func (g *Gateway) ReadFile(rel string) (string, error) {
	target, err := g.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", rel, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

// ListFiles walks a sandboxed directory and returns root-relative file
// paths in sorted order.
func (g *Gateway) ListFiles(rel string) ([]string, error) {
	target, err := g.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", rel)
	}

	var files []string
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(g.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", rel, err)
	}
	sort.Strings(files)
	return files, nil
}
