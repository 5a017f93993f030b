// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package checkpoint persists pipeline progress between stage boundaries so
// an interrupted run can resume without re-doing completed work.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptforge/internal/artifact"
)

// ErrNoCheckpoint is returned by Load when no checkpoint exists for the
// requested project.
var ErrNoCheckpoint = errors.New("no checkpoint for project")

// Checkpoint is the full recoverable state of one pipeline run. Each save
// supersedes the previous checkpoint for the project; partial state is
// never merged on load.
type Checkpoint struct {
	ProjectID          string                         `json:"project_id"`
	ProjectName        string                         `json:"project_name"`
	Prompt             string                         `json:"prompt"`
	Root               string                         `json:"root"`
	LastCompletedStage string                         `json:"last_completed_stage"`
	Plan               *artifact.Plan                 `json:"plan,omitempty"`
	Tasks              []*artifact.Task               `json:"tasks,omitempty"`
	TaskStatuses       map[string]artifact.TaskStatus `json:"task_statuses,omitempty"`
	Reports            []*artifact.QualityReport      `json:"reports,omitempty"`
	TestArtifacts      []*artifact.TestArtifact       `json:"test_artifacts,omitempty"`
	LastError          string                         `json:"last_error,omitempty"`
	CreatedAt          time.Time                      `json:"created_at"`
}

// Store writes checkpoints under a state directory, one JSON file per
// project ID. Saves are atomic: content is written to a temp file in the
// same directory and renamed over the target, so a crash mid-write never
// leaves a readable-but-corrupt checkpoint.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the state directory if needed and returns a store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// lock returns the per-project mutex, creating it on first use. Saves for
// different projects proceed concurrently; same-project saves serialize.
func (s *Store) lock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectID] = l
	}
	return l
}

func (s *Store) path(projectID string) string {
	return filepath.Join(s.dir, projectID+".json")
}

// Save writes the checkpoint for its project, replacing any previous one.
func (s *Store) Save(projectID string, cp *Checkpoint) error {
	if projectID == "" {
		return errors.New("project ID required")
	}
	l := s.lock(projectID)
	l.Lock()
	defer l.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, projectID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(projectID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint for a project. Returns ErrNoCheckpoint when
// none has been saved.
func (s *Store) Load(projectID string) (*Checkpoint, error) {
	l := s.lock(projectID)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(s.path(projectID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint for %s: %w", projectID, err)
	}
	return &cp, nil
}

// Delete removes a project's checkpoint. Deleting a missing checkpoint is
// not an error.
func (s *Store) Delete(projectID string) error {
	l := s.lock(projectID)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.path(projectID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns the project IDs that currently have a checkpoint.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}
