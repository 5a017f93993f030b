// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/bitfield/script"

	"promptforge/internal/artifact"
	"promptforge/internal/executor"
	"promptforge/internal/prompts"
	"promptforge/internal/sandbox"
)

// runTesting generates unit tests for each planned file and writes them
// through the gateway into the stack's conventional test directory. Test
// generation failures for individual files do not fail the run.
func (m *Machine) runTesting(ctx context.Context) error {
	if !m.cfg.Features.Test {
		m.logger.Debugf("test stage disabled, skipping")
		return nil
	}
	for _, file := range m.plan.Files {
		code, err := m.gateway.ReadFile(file.Path)
		if errors.Is(err, sandbox.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		var ta *artifact.TestArtifact
		err = m.generate(ctx, StageTesting, prompts.Tester(file.Path, code), func(raw []byte) error {
			decoded, err := artifact.DecodeTestArtifact(raw)
			if err != nil {
				return err
			}
			if decoded.FilePath == "" {
				decoded.FilePath = file.Path
			}
			ta = decoded
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			m.logger.Warnf("test generation for %s failed: %v", file.Path, err)
			continue
		}

		target := testFilePath(file.Path)
		var sb strings.Builder
		for _, tc := range ta.Tests {
			sb.WriteString(tc.Code)
			if !strings.HasSuffix(tc.Code, "\n") {
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
		if _, err := m.gateway.WriteFile(target, sb.String()); err != nil {
			return err
		}
		m.testArtifacts = append(m.testArtifacts, ta)
		m.logger.Infof("wrote %d tests for %s to %s", len(ta.Tests), file.Path, target)
	}
	return nil
}

// testFilePath maps a source file to its test file per stack convention:
// tests/test_<name>.py for Python, __tests__/<name>.test.js for JS/TS.
func testFilePath(source string) string {
	base := path.Base(source)
	switch prompts.Language(source) {
	case "javascript", "typescript":
		ext := path.Ext(base)
		return path.Join("__tests__", strings.TrimSuffix(base, ext)+".test"+ext)
	default:
		return path.Join("tests", "test_"+base)
	}
}

// runFinalizing writes the project manifest files and, when enabled,
// initializes a git repository with an initial commit.
func (m *Machine) runFinalizing(ctx context.Context) error {
	if err := m.writeManifests(); err != nil {
		return err
	}
	if m.plan.EnableDocker || m.cfg.Features.Docker {
		if err := m.writeDockerfile(); err != nil {
			return err
		}
		if err := m.writeCompose(); err != nil {
			return err
		}
	}
	if m.plan.EnableCICD {
		if err := m.writeCIWorkflow(); err != nil {
			return err
		}
	}
	if m.cfg.Features.Git {
		if err := m.initGit(ctx); err != nil {
			// A missing git binary should not void a generated codebase.
			m.logger.Warnf("git initialization failed: %v", err)
		}
	}
	return nil
}

func (m *Machine) writeManifests() error {
	if len(m.plan.RequiredPackages) > 0 {
		switch stackKind(m.plan.TechStack) {
		case "node":
			deps := make([]string, len(m.plan.RequiredPackages))
			for i, pkg := range m.plan.RequiredPackages {
				deps[i] = fmt.Sprintf("    %q: \"*\"", pkg)
			}
			manifest := fmt.Sprintf("{\n  \"name\": %q,\n  \"version\": \"0.1.0\",\n  \"dependencies\": {\n%s\n  }\n}\n",
				m.plan.Name, strings.Join(deps, ",\n"))
			if _, err := m.gateway.WriteFile("package.json", manifest); err != nil {
				return err
			}
		default:
			if _, err := m.gateway.WriteFile("requirements.txt", strings.Join(m.plan.RequiredPackages, "\n")+"\n"); err != nil {
				return err
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("# " + m.plan.Name + "\n\n")
	sb.WriteString(m.plan.Description + "\n")
	if len(m.plan.Features) > 0 {
		sb.WriteString("\n## Features\n\n")
		for _, feature := range m.plan.Features {
			sb.WriteString("- " + feature + "\n")
		}
	}
	if len(m.plan.Files) > 0 {
		sb.WriteString("\n## Layout\n\n")
		for _, file := range m.plan.Files {
			sb.WriteString(fmt.Sprintf("- `%s` - %s\n", file.Path, file.Purpose))
		}
	}
	_, err := m.gateway.WriteFile("README.md", sb.String())
	return err
}

func (m *Machine) writeDockerfile() error {
	var sb strings.Builder
	switch stackKind(m.plan.TechStack) {
	case "node":
		sb.WriteString("FROM node:20-slim\n\nWORKDIR /app\nCOPY package.json .\nRUN npm install\nCOPY . .\n\nCMD [\"node\", \"index.js\"]\n")
	default:
		sb.WriteString("FROM python:3.12-slim\n\nWORKDIR /app\nCOPY requirements.txt .\nRUN pip install --no-cache-dir -r requirements.txt\nCOPY . .\n\nCMD [\"python\", \"main.py\"]\n")
	}
	_, err := m.gateway.WriteFile("Dockerfile", sb.String())
	return err
}

func (m *Machine) writeCompose() error {
	var sb strings.Builder
	sb.WriteString("services:\n")
	sb.WriteString("  app:\n")
	sb.WriteString("    build: .\n")
	sb.WriteString(fmt.Sprintf("    container_name: %s\n", m.plan.Name))
	sb.WriteString("    restart: unless-stopped\n")
	_, err := m.gateway.WriteFile("docker-compose.yml", sb.String())
	return err
}

func (m *Machine) writeCIWorkflow() error {
	var sb strings.Builder
	sb.WriteString("name: ci\n\non: [push, pull_request]\n\njobs:\n  test:\n    runs-on: ubuntu-latest\n    steps:\n      - uses: actions/checkout@v4\n")
	switch stackKind(m.plan.TechStack) {
	case "node":
		sb.WriteString("      - uses: actions/setup-node@v4\n        with:\n          node-version: '20'\n      - run: npm install\n      - run: npm test\n")
	default:
		sb.WriteString("      - uses: actions/setup-python@v5\n        with:\n          python-version: '3.12'\n      - run: pip install -r requirements.txt\n      - run: python -m pytest\n")
	}
	_, err := m.gateway.WriteFile(".github/workflows/ci.yml", sb.String())
	return err
}

// initGit creates the repository and the initial commit in the project
// root. With the local runner, a host without git downgrades to a warning
// instead of a failed finalization.
func (m *Machine) initGit(ctx context.Context) error {
	if _, local := m.runner.(executor.LocalRunner); local {
		if _, err := script.Exec("git --version").String(); err != nil {
			m.logger.Warnf("git not found on host, skipping repository init")
			return nil
		}
	}
	for _, command := range []string{
		"git init -q",
		"git add -A",
		`git commit -q -m "Initial commit"`,
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := m.runner.Run(ctx, m.gateway.Root(), command)
		if err != nil {
			return fmt.Errorf("%s: %w (%s)", command, err, strings.TrimSpace(out))
		}
	}
	m.logger.Infof("initialized git repository at %s", m.gateway.Root())
	return nil
}

// stackKind collapses the plan's tech stack to a manifest family.
func stackKind(techStack []string) string {
	for _, entry := range techStack {
		switch strings.ToLower(entry) {
		case "node", "nodejs", "javascript", "typescript", "react", "express":
			return "node"
		}
	}
	return "python"
}
