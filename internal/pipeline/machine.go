// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"promptforge/internal/artifact"
	"promptforge/internal/checkpoint"
	"promptforge/internal/config"
	"promptforge/internal/executor"
	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/prompts"
	"promptforge/internal/sandbox"
	"promptforge/internal/taskgraph"
	"promptforge/internal/telemetry"
)

// Machine drives one project through the pipeline. All side effects go
// through declared collaborators: the provider for generation, the gateway
// for file mutation, the store for checkpoints, the runner for commands.
type Machine struct {
	cfg      *config.Config
	provider llm.Provider
	store    *checkpoint.Store
	logger   logging.Logger
	runner   executor.CommandRunner

	project *Project
	gateway *sandbox.Gateway
	budget  *executor.Budget

	plan          *artifact.Plan
	graph         *taskgraph.Graph
	reports       []*artifact.QualityReport
	testArtifacts []*artifact.TestArtifact
	session       string
	lastErr       error
}

// New creates a machine for a fresh project. The project root is created
// and becomes the sandbox boundary for every file the run produces.
func New(cfg *config.Config, provider llm.Provider, store *checkpoint.Store, logger logging.Logger, project *Project) (*Machine, error) {
	gateway, err := sandbox.New(project.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to create project sandbox: %w", err)
	}
	return &Machine{
		cfg:      cfg,
		provider: provider,
		store:    store,
		logger:   logger,
		runner:   executor.LocalRunner{},
		project:  project,
		gateway:  gateway,
		budget:   executor.NewBudget(cfg.Pipeline.IterationBudget),
	}, nil
}

// Resume rebuilds a machine from a project's last checkpoint. Completed
// stages are never re-run; the machine continues at the stage after
// LastCompletedStage, with task statuses restored for a partial Coding
// stage.
func Resume(cfg *config.Config, provider llm.Provider, store *checkpoint.Store, logger logging.Logger, projectID string) (*Machine, error) {
	cp, err := store.Load(projectID)
	if err != nil {
		return nil, err
	}
	completed, err := ParseStage(cp.LastCompletedStage)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint for %s: %w", projectID, err)
	}
	if completed == StageFailed {
		return nil, fmt.Errorf("project %s failed permanently: %s", projectID, cp.LastError)
	}

	project := &Project{
		ID:        cp.ProjectID,
		Name:      cp.ProjectName,
		Root:      cp.Root,
		Prompt:    cp.Prompt,
		CreatedAt: cp.CreatedAt,
		Stage:     next(completed),
		Status:    StatusPending,
	}
	m, err := New(cfg, provider, store, logger, project)
	if err != nil {
		return nil, err
	}

	m.plan = cp.Plan
	m.reports = cp.Reports
	m.testArtifacts = cp.TestArtifacts
	if m.plan != nil && len(cp.Tasks) > 0 {
		tasks := make([]artifact.Task, len(cp.Tasks))
		for i, t := range cp.Tasks {
			tasks[i] = *t
		}
		graph, err := taskgraph.Build(m.plan, tasks)
		if err != nil {
			return nil, fmt.Errorf("corrupt checkpoint for %s: %w", projectID, err)
		}
		graph.Restore(cp.TaskStatuses)
		m.graph = graph
	}

	logger.Infof("resuming project %s at stage %s", projectID, project.Stage)
	return m, nil
}

// SetRunner replaces the command runner, e.g. with the Docker runner.
func (m *Machine) SetRunner(r executor.CommandRunner) {
	m.runner = r
}

// Project returns the project this machine drives.
func (m *Machine) Project() *Project {
	return m.project
}

// Reports returns the quality reports collected by the Reviewing stage.
func (m *Machine) Reports() []*artifact.QualityReport {
	return m.reports
}

// Advance executes the project's current stage, checkpoints after its
// output validates, and moves to the next stage. A stage that exhausts its
// retry budget moves the project to Failed.
func (m *Machine) Advance(ctx context.Context) (Stage, error) {
	stage := m.project.Stage
	if stage.Terminal() {
		return stage, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "stage."+string(stage))
	defer span.End()
	telemetry.AddAttributes(ctx, telemetry.StageAttrs(m.project.ID, string(stage), 0)...)

	m.logger.Infof("project %s: stage %s", m.project.ID, stage)

	var err error
	switch stage {
	case StagePlanning:
		err = m.runPlanning(ctx)
	case StageArchitecting:
		err = m.runArchitecting(ctx)
	case StageCoding:
		err = m.runCoding(ctx)
	case StageReviewing:
		err = m.runReviewing(ctx)
	case StageTesting:
		err = m.runTesting(ctx)
	case StageFinalizing:
		err = m.runFinalizing(ctx)
	}

	if err != nil {
		telemetry.RecordError(ctx, err)
		if ctx.Err() != nil {
			// Interrupted, not failed: the last checkpoint stays valid
			// and the run is resumable.
			m.project.Status = StatusInterrupted
			return stage, err
		}
		m.lastErr = err
		m.project.Stage = StageFailed
		m.project.Status = StatusFailed
		if saveErr := m.checkpointAfter(StageFailed); saveErr != nil {
			m.logger.Errorf("failed to record failure checkpoint: %v", saveErr)
		}
		return StageFailed, err
	}

	if err := m.checkpointAfter(stage); err != nil {
		return stage, err
	}
	nxt := next(stage)
	m.project.Stage = nxt
	if nxt == StageDone {
		m.project.Status = StatusSucceeded
	}
	return nxt, nil
}

// Run drives Advance until the project reaches a terminal stage. Context
// cancellation stops within one stage boundary and leaves the project
// interrupted with its last checkpoint intact.
func (m *Machine) Run(ctx context.Context) error {
	m.project.Status = StatusRunning
	for !m.project.Stage.Terminal() {
		if err := ctx.Err(); err != nil {
			m.project.Status = StatusInterrupted
			return err
		}
		if _, err := m.Advance(ctx); err != nil {
			return err
		}
	}
	if m.project.Stage == StageFailed {
		m.project.Status = StatusFailed
		return m.lastErr
	}
	m.project.Status = StatusSucceeded
	m.logger.Infof("project %s complete at %s", m.project.ID, m.project.Root)
	return nil
}

// checkpointAfter persists the full pipeline state with the given stage
// recorded as the last completed one.
func (m *Machine) checkpointAfter(stage Stage) error {
	cp := &checkpoint.Checkpoint{
		ProjectID:          m.project.ID,
		ProjectName:        m.project.Name,
		Prompt:             m.project.Prompt,
		Root:               m.project.Root,
		LastCompletedStage: string(stage),
		Plan:               m.plan,
		Reports:            m.reports,
		TestArtifacts:      m.testArtifacts,
		CreatedAt:          m.project.CreatedAt,
	}
	if m.graph != nil {
		cp.Tasks = m.graph.Tasks()
		cp.TaskStatuses = m.graph.Statuses()
	}
	if m.lastErr != nil {
		cp.LastError = m.lastErr.Error()
	}
	return m.store.Save(m.project.ID, cp)
}

// generate runs one validated collaborator call with the stage retry
// budget: a response that fails structural validation is re-requested with
// the violations appended as corrective feedback.
func (m *Machine) generate(ctx context.Context, stage Stage, prompt string, decode func(raw []byte) error) error {
	budget := m.cfg.Pipeline.RetryBudget
	if budget < 1 {
		budget = 1
	}

	var lastErr error
	feedback := ""
	for attempt := 1; attempt <= budget; attempt++ {
		resp, err := m.provider.Generate(ctx, llm.Request{
			Stage:    string(stage),
			Prompt:   prompt,
			Feedback: feedback,
			Model:    m.cfg.StageModel(string(stage)),
			Session:  m.session,
		})
		if err != nil {
			return err
		}
		m.session = resp.Session

		err = decode([]byte(resp.Text))
		if err == nil {
			return nil
		}
		var vErr *artifact.ValidationError
		if !errors.As(err, &vErr) {
			return err
		}
		m.logger.Warnf("stage %s attempt %d rejected: %v", stage, attempt, err)
		feedback = err.Error()
		lastErr = err
	}
	return fmt.Errorf("stage %s exhausted %d attempts: %w", stage, budget, lastErr)
}

func (m *Machine) runPlanning(ctx context.Context) error {
	return m.generate(ctx, StagePlanning, prompts.Planner(m.project.Prompt), func(raw []byte) error {
		plan, err := artifact.DecodePlan(raw)
		if err != nil {
			return err
		}
		m.plan = plan
		m.logger.Infof("plan %q: %d files, stack %v", plan.Name, len(plan.Files), plan.TechStack)
		return nil
	})
}

func (m *Machine) runArchitecting(ctx context.Context) error {
	planJSON, err := json.MarshalIndent(m.plan, "", "  ")
	if err != nil {
		return err
	}
	return m.generate(ctx, StageArchitecting, prompts.Architect(string(planJSON)), func(raw []byte) error {
		tasks, err := artifact.DecodeTasks(raw)
		if err != nil {
			return err
		}
		graph, err := taskgraph.Build(m.plan, tasks)
		if err != nil {
			return err
		}
		m.graph = graph
		m.logger.Infof("task graph: %d tasks", len(graph.Tasks()))
		return nil
	})
}

func (m *Machine) runReviewing(ctx context.Context) error {
	if !m.cfg.Features.Review {
		m.logger.Debugf("review stage disabled, skipping")
		return nil
	}
	for _, file := range m.plan.Files {
		code, err := m.gateway.ReadFile(file.Path)
		if errors.Is(err, sandbox.ErrNotFound) {
			m.logger.Warnf("review: %s was never generated", file.Path)
			continue
		}
		if err != nil {
			return err
		}

		var report *artifact.QualityReport
		err = m.generate(ctx, StageReviewing, prompts.Reviewer(file.Path, code), func(raw []byte) error {
			r, err := artifact.DecodeReport(raw)
			if err != nil {
				return err
			}
			if r.FilePath == "" {
				r.FilePath = file.Path
			}
			report = r
			return nil
		})
		if err != nil {
			return err
		}
		m.reports = append(m.reports, report)
		if !report.Approved {
			m.logger.Warnf("review: %s scored %d: %v", file.Path, report.QualityScore, report.Issues)
		}
	}
	return nil
}
