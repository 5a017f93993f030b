// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of one pipeline run.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Project is one generation run: the user prompt, the sandbox root the
// codebase is generated into, and the current pipeline position.
type Project struct {
	ID        string
	Name      string
	Root      string
	Prompt    string
	CreatedAt time.Time
	Stage     Stage
	Status    Status
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a free-form project name into a directory-safe slug.
func slugify(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// NewProject creates a pending project rooted under projectsDir. An empty
// name derives one from the project ID.
func NewProject(name, prompt, projectsDir string) *Project {
	id := uuid.NewString()
	slug := slugify(name)
	if slug == "" {
		slug = "project-" + id[:8]
	}
	return &Project{
		ID:        id,
		Name:      slug,
		Root:      filepath.Join(projectsDir, slug),
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
		Stage:     StagePlanning,
		Status:    StatusPending,
	}
}
