// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package main implements the promptforge CLI: turn a natural-language
// project description into a generated codebase.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"promptforge/internal/checkpoint"
	"promptforge/internal/config"
	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/pipeline"
	"promptforge/internal/runner"
	"promptforge/internal/telemetry"
)

var version = "dev"

var (
	configPath      string
	projectName     string
	iterationBudget int
	maxWorkers      int
	providerURL     string
	modelName       string
	enableReview    bool
	enableTest      bool
	enableGit       bool
	enableDocker    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "promptforge",
	Short:   "Generate a codebase from a natural-language description",
	Version: version,
	Long: `promptforge runs a fixed pipeline of generation stages (planning,
architecting, coding, reviewing, testing, finalizing) against a text
generation collaborator and produces a working project directory.

Progress is checkpointed at every stage boundary; an interrupted run can
be continued with "promptforge resume <project-id>".`,
	SilenceUsage: true,
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle: runGenerate -> loadConfig -> generateCmd.
	generateCmd.RunE = runGenerate

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFile, "config file path")

	generateCmd.Flags().StringVar(&projectName, "name", "", "project name (derived from the ID when empty)")
	generateCmd.Flags().IntVar(&iterationBudget, "iteration-budget", 0, "override the global tool-loop iteration budget")
	generateCmd.Flags().IntVar(&maxWorkers, "workers", 0, "override the number of concurrent coding tasks")
	generateCmd.Flags().StringVar(&providerURL, "provider", "", "override the collaborator base URL")
	generateCmd.Flags().StringVar(&modelName, "model", "", "override the default model")
	generateCmd.Flags().BoolVar(&enableReview, "review", true, "run the review stage")
	generateCmd.Flags().BoolVar(&enableTest, "test", true, "run the test generation stage")
	generateCmd.Flags().BoolVar(&enableGit, "git", true, "initialize a git repository in the generated project")
	generateCmd.Flags().BoolVar(&enableDocker, "docker", false, "run coder commands in an isolated Docker container")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the promptforge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("promptforge %s\n", version)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate a new project from a prompt",
	Long: `Generate a new project from a natural-language description.

Examples:
  promptforge generate "a todo app with a REST API"
  promptforge generate --name calc --workers 2 "a calculator library"`,
	Args: cobra.MinimumNArgs(1),
}

var resumeCmd = &cobra.Command{
	Use:   "resume <project-id>",
	Short: "Resume an interrupted project run",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpointed projects",
	RunE:  runList,
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd != generateCmd {
		return cfg, nil
	}

	if iterationBudget > 0 {
		cfg.Pipeline.IterationBudget = iterationBudget
	}
	if maxWorkers > 0 {
		cfg.Pipeline.MaxWorkers = maxWorkers
	}
	if providerURL != "" {
		cfg.Provider.BaseURL = providerURL
	}
	if modelName != "" {
		cfg.Provider.Model = modelName
	}
	cfg.Features.Review = enableReview
	cfg.Features.Test = enableTest
	cfg.Features.Git = enableGit
	cfg.Features.Docker = enableDocker

	return cfg, cfg.Validate()
}

// buildDeps wires the shared collaborators for one run.
func buildDeps(ctx context.Context, cfg *config.Config) (llm.Provider, *checkpoint.Store, logging.Logger, *telemetry.TracerProvider, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	tp, err := telemetry.NewTracerProvider(ctx, &telemetry.Config{
		ServiceName:    "promptforge",
		ServiceVersion: version,
		CollectorURL:   cfg.Telemetry.Endpoint,
		Environment:    "production",
		SamplingRate:   1.0,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := checkpoint.NewStore(cfg.Workspace.StateDir)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	provider := llm.NewRetrying("opencode",
		llm.NewOpencodeProvider(cfg.Provider.BaseURL, cfg.Provider.Model),
		llm.RetryConfig{
			Timeout:     cfg.Provider.Timeout,
			MaxAttempts: cfg.Provider.MaxAttempts,
		}, logger)

	return provider, store, logger, tp, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, store, logger, tp, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	prompt := strings.Join(args, " ")
	project := pipeline.NewProject(projectName, prompt, cfg.Workspace.ProjectsDir)
	logger.Infof("project %s (%s)", project.ID, project.Name)

	machine, err := pipeline.New(cfg, provider, store, logger, project)
	if err != nil {
		return err
	}
	if err := attachDocker(ctx, cfg, machine, logger); err != nil {
		return err
	}

	return report(machine.Run(ctx), machine, logger)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, store, logger, tp, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	machine, err := pipeline.Resume(cfg, provider, store, logger, args[0])
	if err != nil {
		return err
	}
	if err := attachDocker(ctx, cfg, machine, logger); err != nil {
		return err
	}

	return report(machine.Run(ctx), machine, logger)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := checkpoint.NewStore(cfg.Workspace.StateDir)
	if err != nil {
		return err
	}
	ids, err := store.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		cp, err := store.Load(id)
		if err != nil {
			continue
		}
		fmt.Printf("%s  %-20s  last completed: %s\n", id, cp.ProjectName, cp.LastCompletedStage)
	}
	return nil
}

// attachDocker swaps the command runner for a per-project container when
// Docker isolation is enabled.
func attachDocker(ctx context.Context, cfg *config.Config, machine *pipeline.Machine, logger logging.Logger) error {
	if !cfg.Features.Docker {
		return nil
	}
	image := cfg.Docker.Image
	dockerRunner, err := runner.New(image)
	if err != nil {
		return err
	}
	if err := dockerRunner.Start(ctx, machine.Project().Root); err != nil {
		return err
	}
	logger.Infof("running commands in %s container", image)
	machine.SetRunner(dockerRunner)
	cobra.OnFinalize(func() {
		if err := dockerRunner.Close(context.Background()); err != nil {
			logger.Warnf("container cleanup failed: %v", err)
		}
	})
	return nil
}

// report maps the run outcome to the process exit code: 0 for a completed
// project, 1 for a failed one, interruption keeps the checkpoint.
func report(runErr error, machine *pipeline.Machine, logger logging.Logger) error {
	project := machine.Project()
	switch {
	case runErr == nil:
		logger.Infof("project %s generated at %s", project.ID, project.Root)
		return nil
	case errors.Is(runErr, context.Canceled):
		logger.Warnf("interrupted; resume with: promptforge resume %s", project.ID)
		return runErr
	default:
		logger.Errorf("project %s failed: %v", project.ID, runErr)
		return runErr
	}
}
