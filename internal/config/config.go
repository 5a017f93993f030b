// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package config loads the immutable run configuration. The loaded value
// is threaded through constructors; nothing reads ambient global state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "promptforge.yaml"

// Config is the complete promptforge run configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Provider  ProviderConfig  `yaml:"provider"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Features  FeatureConfig   `yaml:"features"`
	Docker    DockerConfig    `yaml:"docker"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// WorkspaceConfig locates generated projects and durable pipeline state.
type WorkspaceConfig struct {
	ProjectsDir string `yaml:"projects_dir"` // one subdirectory per project
	StateDir    string `yaml:"state_dir"`    // checkpoint storage
}

// ProviderConfig selects and configures the text-generation collaborator.
type ProviderConfig struct {
	Name        string            `yaml:"name"`     // "opencode"
	BaseURL     string            `yaml:"base_url"` // opencode serve endpoint
	Model       string            `yaml:"model"`    // default model
	StageModels map[string]string `yaml:"stage_models"`
	Timeout     time.Duration     `yaml:"timeout"`      // per-call timeout
	MaxAttempts int               `yaml:"max_attempts"` // transient-error retries
}

// PipelineConfig bounds stage retries and the tool-calling loop.
type PipelineConfig struct {
	RetryBudget     int           `yaml:"retry_budget"`      // per-stage validation retries
	IterationBudget int           `yaml:"iteration_budget"`  // global tool-loop iterations
	MaxWorkers      int           `yaml:"max_workers"`       // concurrent independent tasks
	ToolTimeout     time.Duration `yaml:"tool_timeout"`      // side-effecting tool timeout
	ToolMinInterval time.Duration `yaml:"tool_min_interval"` // delay between side-effecting tools
}

// FeatureConfig toggles optional stages and finalization extras.
// Disabled stages are skipped transitions, not removed states.
type FeatureConfig struct {
	Review    bool `yaml:"review"`
	Test      bool `yaml:"test"`
	Git       bool `yaml:"git"`
	Docker    bool `yaml:"docker"`
	WebSearch bool `yaml:"web_search"`
}

// DockerConfig configures the optional isolated command environment.
type DockerConfig struct {
	Image string `yaml:"image"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// TelemetryConfig configures OTLP trace export. Empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			ProjectsDir: "generated",
			StateDir:    ".promptforge/state",
		},
		Provider: ProviderConfig{
			Name:        "opencode",
			BaseURL:     "http://localhost:4096",
			Model:       "anthropic/claude-sonnet-4-5",
			Timeout:     5 * time.Minute,
			MaxAttempts: 3,
		},
		Pipeline: PipelineConfig{
			RetryBudget:     3,
			IterationBudget: 100,
			MaxWorkers:      4,
			ToolTimeout:     2 * time.Minute,
			ToolMinInterval: 250 * time.Millisecond,
		},
		Features: FeatureConfig{
			Review: true,
			Test:   true,
			Git:    true,
		},
		Docker: DockerConfig{
			Image: "python:3.12-slim",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path (or defaults when the file is absent),
// applies PROMPTFORGE_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv maps PROMPTFORGE_* variables onto the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PROMPTFORGE_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("PROMPTFORGE_PROVIDER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("PROMPTFORGE_STATE_DIR"); v != "" {
		cfg.Workspace.StateDir = v
	}
	if v := os.Getenv("PROMPTFORGE_PROJECTS_DIR"); v != "" {
		cfg.Workspace.ProjectsDir = v
	}
	if v := os.Getenv("PROMPTFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PROMPTFORGE_ITERATION_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.IterationBudget = n
		}
	}
	if v := os.Getenv("PROMPTFORGE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxWorkers = n
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Workspace.ProjectsDir == "" {
		return fmt.Errorf("workspace.projects_dir must not be empty")
	}
	if c.Workspace.StateDir == "" {
		return fmt.Errorf("workspace.state_dir must not be empty")
	}
	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name must not be empty")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	if c.Provider.MaxAttempts < 1 {
		return fmt.Errorf("provider.max_attempts must be at least 1")
	}
	if c.Pipeline.RetryBudget < 1 {
		return fmt.Errorf("pipeline.retry_budget must be at least 1")
	}
	if c.Pipeline.IterationBudget < 1 {
		return fmt.Errorf("pipeline.iteration_budget must be at least 1")
	}
	if c.Pipeline.MaxWorkers < 1 {
		return fmt.Errorf("pipeline.max_workers must be at least 1")
	}
	if c.Pipeline.ToolTimeout <= 0 {
		return fmt.Errorf("pipeline.tool_timeout must be positive")
	}
	if c.Pipeline.ToolMinInterval < 0 {
		return fmt.Errorf("pipeline.tool_min_interval must not be negative")
	}
	return nil
}

// StageModel returns the model configured for a stage, falling back to the
// provider default.
func (c *Config) StageModel(stage string) string {
	if m, ok := c.Provider.StageModels[stage]; ok && m != "" {
		return m
	}
	return c.Provider.Model
}
