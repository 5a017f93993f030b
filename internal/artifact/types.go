// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package artifact defines the structured artifacts exchanged between
// pipeline stages and the validator that turns raw collaborator output
// into them.
package artifact

// TaskStatus tracks the lifecycle of one implementation task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

// FileSpec names one file the plan calls for and why it exists.
type FileSpec struct {
	Path    string `json:"path"`
	Purpose string `json:"purpose"`
}

// Plan is the Planning stage artifact. It is immutable once produced;
// every later stage only reads it.
type Plan struct {
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	TechStack        []string   `json:"techstack"`
	Features         []string   `json:"features"`
	Files            []FileSpec `json:"files"`
	RequiredPackages []string   `json:"required_packages,omitempty"`
	EnableDocker     bool       `json:"enable_docker,omitempty"`
	EnableCICD       bool       `json:"enable_ci_cd,omitempty"`
}

// HasFile reports whether the plan declares the given file path.
func (p *Plan) HasFile(path string) bool {
	for _, f := range p.Files {
		if f.Path == path {
			return true
		}
	}
	return false
}

// Task is one file-scoped unit of implementation work derived from the
// Plan by the Architecting stage. DependsOn holds task identifiers that
// must be done before this task becomes eligible.
type Task struct {
	ID          string     `json:"id,omitempty"`
	FilePath    string     `json:"filepath"`
	Instruction string     `json:"instruction"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Priority    int        `json:"priority,omitempty"`
	Complexity  string     `json:"complexity,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
}

// QualityReport is the optional Reviewing stage artifact for one file.
type QualityReport struct {
	FilePath     string   `json:"filepath"`
	QualityScore int      `json:"quality_score"`
	Issues       []string `json:"issues,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
	Approved     bool     `json:"approved"`
}

// TestCase is one generated test in a TestArtifact.
type TestCase struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code"`
}

// TestArtifact is the optional Testing stage artifact for one file.
type TestArtifact struct {
	FilePath  string     `json:"filepath"`
	Framework string     `json:"framework"`
	Tests     []TestCase `json:"test_cases"`
}
