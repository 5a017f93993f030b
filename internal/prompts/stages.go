// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package prompts builds the structured prompts each pipeline stage sends
// to the text-generation collaborator. Wording lives here and nowhere else.
package prompts

import (
	"fmt"
	"path/filepath"
	"strings"

	"promptforge/internal/artifact"
)

// Planner builds the Planning stage prompt from the raw user request.
// The collaborator must answer with a JSON Plan object.
func Planner(userPrompt string) string {
	var sb strings.Builder

	sb.WriteString("You are the PLANNER agent. Convert the user request into a complete engineering project plan.\n\n")
	sb.WriteString("Respond with a single JSON object, no prose, with these fields:\n")
	sb.WriteString("- name: project name\n")
	sb.WriteString("- description: one-line description\n")
	sb.WriteString("- techstack: array of technologies\n")
	sb.WriteString("- features: array of features to implement\n")
	sb.WriteString("- files: array of {path, purpose} covering the full file structure\n")
	sb.WriteString("- required_packages: array of package names (optional)\n")
	sb.WriteString("- enable_docker, enable_ci_cd: booleans (optional)\n\n")
	sb.WriteString("User request:\n")
	sb.WriteString(userPrompt)
	sb.WriteString("\n\nBe thorough and follow best practices for the chosen stack.\n")

	return sb.String()
}

// Architect builds the Architecting stage prompt from the serialized plan.
// The collaborator must answer with a JSON array of implementation tasks.
func Architect(planJSON string) string {
	var sb strings.Builder

	sb.WriteString("You are the ARCHITECT agent. Break this project plan into explicit implementation tasks.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Create one task per file in the plan; every filepath must come from the plan.\n")
	sb.WriteString("- Order tasks by dependency: base and utility files first.\n")
	sb.WriteString("- List each task's dependencies in depends_on as the filepaths it builds on.\n")
	sb.WriteString("- Each instruction must name the functions, classes and interfaces to implement,\n")
	sb.WriteString("  their inputs and outputs, and how they integrate with other files.\n")
	sb.WriteString("- Set priority (lower runs earlier among independent tasks) and complexity (low, medium, high).\n\n")
	sb.WriteString("Respond with JSON only: {\"implementation_steps\": [{filepath, instruction, depends_on, priority, complexity}, ...]}\n\n")
	sb.WriteString("Project plan:\n")
	sb.WriteString(planJSON)
	sb.WriteString("\n")

	return sb.String()
}

// CoderSystem is the system prompt for the tool-calling coding loop.
func CoderSystem() string {
	var sb strings.Builder

	sb.WriteString("You are the CODER agent, an expert software engineer implementing one task at a time.\n\n")
	sb.WriteString("You work by issuing exactly one tool call per turn. Respond with JSON only:\n")
	sb.WriteString(`  {"tool": "<name>", "args": {...}}` + "\n")
	sb.WriteString("or, when the task is fully implemented:\n")
	sb.WriteString(`  {"done": true, "summary": "<what you did>"}` + "\n\n")
	sb.WriteString("Write clean, well-documented code with proper error handling.\n")

	return sb.String()
}

// CoderTask renders one task for the coding loop, including prior
// tool-call history so the collaborator keeps its context across turns.
func CoderTask(task *artifact.Task, toolList string, history []string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Task %s: %s\n", task.ID, task.Instruction))
	sb.WriteString(fmt.Sprintf("Target file: %s\n", task.FilePath))
	if task.Complexity != "" {
		sb.WriteString(fmt.Sprintf("Estimated complexity: %s\n", task.Complexity))
	}
	sb.WriteString("\nAvailable tools:\n")
	sb.WriteString(toolList)

	if len(history) > 0 {
		sb.WriteString("\nTool calls so far:\n")
		for _, entry := range history {
			sb.WriteString("- ")
			sb.WriteString(entry)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nIssue your next tool call, or report done.\n")
	return sb.String()
}

// Reviewer builds the Reviewing stage prompt for one generated file.
// The collaborator must answer with a JSON quality report.
func Reviewer(path, code string) string {
	var sb strings.Builder

	sb.WriteString("You are the REVIEWER agent. Review this file for correctness, style and maintainability.\n\n")
	sb.WriteString(fmt.Sprintf("File: %s\n", path))
	sb.WriteString(fmt.Sprintf("```%s\n", Language(path)))
	sb.WriteString(code)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Respond with JSON only: {\"filepath\", \"quality_score\" (0-100), \"issues\": [...], \"suggestions\": [...], \"approved\": bool}\n")

	return sb.String()
}

// Tester builds the Testing stage prompt for one generated file.
// The collaborator must answer with a JSON test artifact.
func Tester(path, code string) string {
	var sb strings.Builder

	sb.WriteString("You are the TESTER agent. Write unit tests for this file.\n\n")
	sb.WriteString(fmt.Sprintf("File: %s\n", path))
	sb.WriteString(fmt.Sprintf("```%s\n", Language(path)))
	sb.WriteString(code)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Cover normal operation, edge cases and error paths.\n")
	sb.WriteString("Respond with JSON only: {\"filepath\", \"framework\", \"test_cases\": [{name, description, code}, ...]}\n")

	return sb.String()
}

var languageByExt = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".go":   "go",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".c":    "c",
	".cpp":  "cpp",
}

// Language maps a file path to a fenced-code-block language tag.
func Language(path string) string {
	if lang, ok := languageByExt[filepath.Ext(path)]; ok {
		return lang
	}
	return "text"
}
