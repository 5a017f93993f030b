// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package checkpoint

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/artifact"
)

func sampleCheckpoint(projectID string) *Checkpoint {
	return &Checkpoint{
		ProjectID:          projectID,
		ProjectName:        "calculator",
		Prompt:             "build a calculator",
		LastCompletedStage: "architecting",
		Plan: &artifact.Plan{
			Name:      "calculator",
			TechStack: []string{"python"},
			Files:     []artifact.FileSpec{{Path: "calculator.py", Purpose: "arithmetic"}},
		},
		Tasks: []*artifact.Task{
			{ID: "task-001", FilePath: "calculator.py", Instruction: "implement arithmetic"},
		},
		TaskStatuses: map[string]artifact.TaskStatus{
			"task-001": artifact.TaskPending,
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	want := sampleCheckpoint("proj-1")
	require.NoError(t, store.Save("proj-1", want))

	got, err := store.Load("proj-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingCheckpoint(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("no-such-project")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestSaveSupersedesPrevious(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first := sampleCheckpoint("proj-1")
	require.NoError(t, store.Save("proj-1", first))

	second := sampleCheckpoint("proj-1")
	second.LastCompletedStage = "coding"
	second.TaskStatuses["task-001"] = artifact.TaskDone
	require.NoError(t, store.Save("proj-1", second))

	got, err := store.Load("proj-1")
	require.NoError(t, err)
	assert.Equal(t, "coding", got.LastCompletedStage)
	assert.Equal(t, artifact.TaskDone, got.TaskStatuses["task-001"])
}

func TestCrossProjectIsolation(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := []string{"proj-a", "proj-b", "proj-c", "proj-d"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			cp := sampleCheckpoint(id)
			for i := 0; i < 20; i++ {
				assert.NoError(t, store.Save(id, cp))
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		got, err := store.Load(id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ProjectID)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("proj-1", sampleCheckpoint("proj-1")))
	require.NoError(t, store.Delete("proj-1"))
	require.NoError(t, store.Delete("proj-1"))

	_, err = store.Load("proj-1")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestListCheckpoints(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("proj-1", sampleCheckpoint("proj-1")))
	require.NoError(t, store.Save("proj-2", sampleCheckpoint("proj-2")))

	// Leftover temp files are not checkpoints.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proj-3-123.tmp"), []byte("x"), 0o600))

	ids, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"proj-1", "proj-2"}, ids)
}
