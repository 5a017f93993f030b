// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError reports a malformed stage artifact. Fields lists every
// violation so the retry prompt can correct all of them at once.
type ValidationError struct {
	Artifact string
	Fields   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s artifact: %s", e.Artifact, strings.Join(e.Fields, "; "))
}

// DecodePlan parses raw collaborator output into a Plan. Shape and
// required-field presence only; semantic quality is the reviewer's job.
// Decoding the same input always yields the same result.
func DecodePlan(raw []byte) (*Plan, error) {
	var plan Plan
	if err := decodeJSON(raw, &plan); err != nil {
		return nil, &ValidationError{Artifact: "plan", Fields: []string{err.Error()}}
	}

	var violations []string
	if plan.Name == "" {
		violations = append(violations, "name: required")
	}
	if plan.Description == "" {
		violations = append(violations, "description: required")
	}
	if len(plan.TechStack) == 0 {
		violations = append(violations, "techstack: at least one entry required")
	}
	if len(plan.Files) == 0 {
		violations = append(violations, "files: at least one entry required")
	}
	for i, f := range plan.Files {
		if f.Path == "" {
			violations = append(violations, fmt.Sprintf("files[%d].path: required", i))
		}
		if f.Purpose == "" {
			violations = append(violations, fmt.Sprintf("files[%d].purpose: required", i))
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Artifact: "plan", Fields: violations}
	}
	return &plan, nil
}

// taskList matches both a bare JSON array and the wrapped form
// {"implementation_steps": [...]} the architect prompt asks for.
type taskList struct {
	Steps []Task `json:"implementation_steps"`
}

// DecodeTasks parses raw collaborator output into the Architecting stage
// task list. Dependency and cycle checks happen at graph construction,
// not here.
func DecodeTasks(raw []byte) ([]Task, error) {
	stripped := stripFences(raw)

	var tasks []Task
	if err := json.Unmarshal(stripped, &tasks); err != nil {
		var wrapped taskList
		if err2 := json.Unmarshal(stripped, &wrapped); err2 != nil {
			return nil, &ValidationError{Artifact: "tasks", Fields: []string{fmt.Sprintf("malformed JSON: %v", err)}}
		}
		tasks = wrapped.Steps
	}

	var violations []string
	if len(tasks) == 0 {
		violations = append(violations, "implementation_steps: at least one task required")
	}
	for i, task := range tasks {
		if task.FilePath == "" {
			violations = append(violations, fmt.Sprintf("implementation_steps[%d].filepath: required", i))
		}
		if task.Instruction == "" {
			violations = append(violations, fmt.Sprintf("implementation_steps[%d].instruction: required", i))
		}
		switch task.Complexity {
		case "", "low", "medium", "high":
		default:
			violations = append(violations, fmt.Sprintf("implementation_steps[%d].complexity: must be low, medium or high", i))
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Artifact: "tasks", Fields: violations}
	}
	return tasks, nil
}

// DecodeReport parses a Reviewing stage result for one file.
func DecodeReport(raw []byte) (*QualityReport, error) {
	var report QualityReport
	if err := decodeJSON(raw, &report); err != nil {
		return nil, &ValidationError{Artifact: "quality report", Fields: []string{err.Error()}}
	}

	var violations []string
	if report.FilePath == "" {
		violations = append(violations, "filepath: required")
	}
	if report.QualityScore < 0 || report.QualityScore > 100 {
		violations = append(violations, "quality_score: must be between 0 and 100")
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Artifact: "quality report", Fields: violations}
	}
	return &report, nil
}

// DecodeTestArtifact parses a Testing stage result for one file.
func DecodeTestArtifact(raw []byte) (*TestArtifact, error) {
	var ta TestArtifact
	if err := decodeJSON(raw, &ta); err != nil {
		return nil, &ValidationError{Artifact: "test artifact", Fields: []string{err.Error()}}
	}

	var violations []string
	if ta.FilePath == "" {
		violations = append(violations, "filepath: required")
	}
	if ta.Framework == "" {
		violations = append(violations, "framework: required")
	}
	if len(ta.Tests) == 0 {
		violations = append(violations, "test_cases: at least one test required")
	}
	for i, tc := range ta.Tests {
		if tc.Name == "" {
			violations = append(violations, fmt.Sprintf("test_cases[%d].name: required", i))
		}
		if tc.Code == "" {
			violations = append(violations, fmt.Sprintf("test_cases[%d].code: required", i))
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Artifact: "test artifact", Fields: violations}
	}
	return &ta, nil
}

func decodeJSON(raw []byte, v any) error {
	if err := json.Unmarshal(stripFences(raw), v); err != nil {
		return fmt.Errorf("malformed JSON: %v", err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence. Collaborators
// frequently wrap JSON in ```json blocks despite instructions.
func stripFences(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(trimmed, []byte("```")) {
		return trimmed
	}
	if idx := bytes.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := bytes.LastIndex(trimmed, []byte("```")); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return bytes.TrimSpace(trimmed)
}
