// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"promptforge/internal/artifact"
	"promptforge/internal/executor"
	"promptforge/internal/telemetry"
)

// runCoding executes the task graph in dependency waves. Tasks within a
// wave are independent and run through a bounded worker pool; each task's
// own tool sequence stays strictly sequential inside its executor loop.
// Task progress is checkpointed at every wave boundary so a resumed run
// re-executes only tasks that never finished.
func (m *Machine) runCoding(ctx context.Context) error {
	if m.graph == nil {
		return fmt.Errorf("coding stage reached without a task graph")
	}

	toolbox := executor.NewToolbox(m.gateway, m.runner, executor.ToolboxConfig{
		EnableGit:       m.cfg.Features.Git,
		EnableWebSearch: m.cfg.Features.WebSearch,
		CommandTimeout:  m.cfg.Pipeline.ToolTimeout,
		MinInterval:     m.cfg.Pipeline.ToolMinInterval,
	})
	exec := executor.New(m.provider, toolbox, m.budget, m.cfg.StageModel("coding"), m.logger)

	workers := m.cfg.Pipeline.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	for !m.graph.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready := m.graph.Ready()
		if len(ready) == 0 {
			break
		}
		m.logger.Infof("coding wave: %d tasks, %d workers, %d budget units left",
			len(ready), workers, m.budget.Remaining())

		sem := make(chan struct{}, workers)
		var (
			wg       sync.WaitGroup
			errMu    sync.Mutex
			taskErrs []error
		)
		for _, task := range ready {
			m.graph.MarkStatus(task.ID, artifact.TaskInProgress)
			wg.Add(1)
			go func(task *artifact.Task) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				taskCtx, span := telemetry.StartSpan(ctx, "task."+task.ID)
				defer span.End()
				telemetry.AddAttributes(taskCtx, telemetry.TaskAttrs(task.ID, task.FilePath)...)

				result := exec.RunTask(taskCtx, task)
				switch {
				case taskCtx.Err() != nil && result.Status != artifact.TaskDone:
					// Interrupted, not failed: leave it for the resumed run.
					m.graph.MarkStatus(task.ID, artifact.TaskPending)
				case result.Status == artifact.TaskDone:
					m.graph.MarkStatus(task.ID, artifact.TaskDone)
				default:
					telemetry.RecordError(taskCtx, result.Err)
					m.graph.MarkStatus(task.ID, artifact.TaskFailed)
					err := result.Err
					if err == nil {
						err = fmt.Errorf("task did not complete")
					}
					errMu.Lock()
					taskErrs = append(taskErrs, fmt.Errorf("task %s: %w", task.ID, err))
					errMu.Unlock()
				}
			}(task)
		}
		wg.Wait()

		// Wave boundary: persist per-task progress under the last
		// completed stage so Resume re-enters Coding.
		if err := m.checkpointAfter(StageArchitecting); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if failed := m.graph.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d of %d tasks failed: %w",
				len(failed), len(m.graph.Tasks()), errors.Join(taskErrs...))
		}
	}

	if !m.graph.Done() {
		return fmt.Errorf("task graph stalled with incomplete tasks")
	}
	return nil
}
