// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package taskgraph builds the dependency-ordered task collection from the
// Architecting stage output and hands tasks to the executor in a stable,
// deterministic order.
package taskgraph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"

	"promptforge/internal/artifact"
)

// Graph is the validated, ordered task collection for one project.
// Status mutation is synchronized so worker goroutines may mark tasks
// concurrently.
type Graph struct {
	mu    sync.RWMutex
	tasks []*artifact.Task // in execution order
	byID  map[string]*artifact.Task
	level map[string]int
}

// Build validates architect output against the plan and produces the
// execution-ordered graph. Tasks must target files the plan declares,
// dependency references must resolve (by task ID or by target file path),
// and the dependency relation must be acyclic. Any violation is a
// *artifact.ValidationError so the pipeline retry path can correct it.
func Build(plan *artifact.Plan, tasks []artifact.Task) (*Graph, error) {
	g := &Graph{
		byID:  make(map[string]*artifact.Task, len(tasks)),
		level: make(map[string]int, len(tasks)),
	}

	ordered := make([]*artifact.Task, len(tasks))
	byPath := make(map[string]string, len(tasks)) // file path -> task ID
	var violations []string

	for i := range tasks {
		t := tasks[i]
		if t.ID == "" {
			t.ID = fmt.Sprintf("task-%03d", i+1)
		}
		if t.Status == "" {
			t.Status = artifact.TaskPending
		}
		if _, dup := g.byID[t.ID]; dup {
			violations = append(violations, fmt.Sprintf("task %s: duplicate identifier", t.ID))
		}
		if !plan.HasFile(t.FilePath) {
			violations = append(violations, fmt.Sprintf("task %s: file %q not declared in plan", t.ID, t.FilePath))
		}
		ordered[i] = &t
		g.byID[t.ID] = &t
		if _, taken := byPath[t.FilePath]; !taken {
			byPath[t.FilePath] = t.ID
		}
	}

	// Resolve dependency references. Architect output may name either a
	// task identifier or the dependency's file path.
	for _, t := range ordered {
		resolved := make([]string, 0, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			switch {
			case g.byID[dep] != nil:
				resolved = append(resolved, dep)
			case byPath[dep] != "":
				resolved = append(resolved, byPath[dep])
			default:
				violations = append(violations, fmt.Sprintf("task %s: dependency %q does not match any task or plan file", t.ID, dep))
			}
		}
		t.DependsOn = resolved
	}

	if len(violations) > 0 {
		return nil, &artifact.ValidationError{Artifact: "task graph", Fields: violations}
	}

	edges := make([]toposort.Edge, 0)
	for _, t := range ordered {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return nil, &artifact.ValidationError{
					Artifact: "task graph",
					Fields:   []string{fmt.Sprintf("task %s: depends on itself", t.ID)},
				}
			}
			edges = append(edges, toposort.Edge{dep, t.ID})
		}
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return nil, &artifact.ValidationError{
			Artifact: "task graph",
			Fields:   []string{fmt.Sprintf("dependency cycle detected: %v", err)},
		}
	}

	for _, t := range ordered {
		g.level[t.ID] = depth(t.ID, g.byID, g.level)
	}

	// Execution order: non-decreasing dependency depth, ties broken by
	// ascending priority, then by original listing order. The order is
	// stable so fixtures reproduce exactly.
	index := make(map[string]int, len(ordered))
	for i, t := range ordered {
		index[t.ID] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		ta, tb := ordered[a], ordered[b]
		if g.level[ta.ID] != g.level[tb.ID] {
			return g.level[ta.ID] < g.level[tb.ID]
		}
		if ta.Priority != tb.Priority {
			return ta.Priority < tb.Priority
		}
		return index[ta.ID] < index[tb.ID]
	})

	g.tasks = ordered
	return g, nil
}

// depth memoizes the longest dependency chain below a task. Safe because
// acyclicity was already verified.
func depth(id string, byID map[string]*artifact.Task, memo map[string]int) int {
	if d, ok := memo[id]; ok {
		return d
	}
	max := 0
	for _, dep := range byID[id].DependsOn {
		if d := depth(dep, byID, memo) + 1; d > max {
			max = d
		}
	}
	memo[id] = max
	return max
}

// Tasks returns all tasks in execution order.
func (g *Graph) Tasks() []*artifact.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*artifact.Task, len(g.tasks))
	copy(out, g.tasks)
	return out
}

// Task returns the task with the given identifier, or nil.
func (g *Graph) Task(id string) *artifact.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byID[id]
}

// Ready returns, in execution order, every pending task whose dependencies
// are all done. A task is never eligible before its dependencies.
func (g *Graph) Ready() []*artifact.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*artifact.Task
	for _, t := range g.tasks {
		if t.Status != artifact.TaskPending {
			continue
		}
		eligible := true
		for _, dep := range t.DependsOn {
			if g.byID[dep].Status != artifact.TaskDone {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, t)
		}
	}
	return ready
}

// MarkStatus sets the status of one task.
func (g *Graph) MarkStatus(id string, status artifact.TaskStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t := g.byID[id]; t != nil {
		t.Status = status
	}
}

// Statuses snapshots task statuses for checkpointing.
func (g *Graph) Statuses() map[string]artifact.TaskStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]artifact.TaskStatus, len(g.tasks))
	for _, t := range g.tasks {
		out[t.ID] = t.Status
	}
	return out
}

// Restore applies checkpointed statuses, resetting any task interrupted
// mid-flight back to pending so a resumed run re-executes it.
func (g *Graph) Restore(statuses map[string]artifact.TaskStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, status := range statuses {
		t := g.byID[id]
		if t == nil {
			continue
		}
		if status == artifact.TaskInProgress {
			status = artifact.TaskPending
		}
		t.Status = status
	}
}

// Done reports whether every task reached the done status.
func (g *Graph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, t := range g.tasks {
		if t.Status != artifact.TaskDone {
			return false
		}
	}
	return true
}

// Failed returns the identifiers of failed tasks in execution order.
func (g *Graph) Failed() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var failed []string
	for _, t := range g.tasks {
		if t.Status == artifact.TaskFailed {
			failed = append(failed, t.ID)
		}
	}
	return failed
}
