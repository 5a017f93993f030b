// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package pipeline drives a project through the fixed generation stages:
// Planning, Architecting, Coding, Reviewing, Testing, Finalizing. Each
// stage boundary is checkpointed; an interrupted run resumes at the stage
// after the last completed one.
package pipeline

import "fmt"

// Stage is one pipeline state. The order is fixed; optional stages that
// are disabled by config become no-op transitions, not removed states.
type Stage string

const (
	StagePlanning     Stage = "planning"
	StageArchitecting Stage = "architecting"
	StageCoding       Stage = "coding"
	StageReviewing    Stage = "reviewing"
	StageTesting      Stage = "testing"
	StageFinalizing   Stage = "finalizing"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// next returns the stage after s in the fixed order.
func next(s Stage) Stage {
	switch s {
	case StagePlanning:
		return StageArchitecting
	case StageArchitecting:
		return StageCoding
	case StageCoding:
		return StageReviewing
	case StageReviewing:
		return StageTesting
	case StageTesting:
		return StageFinalizing
	case StageFinalizing:
		return StageDone
	default:
		return s
	}
}

// Terminal reports whether s is an end state.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// ParseStage validates a stage name read from a checkpoint.
func ParseStage(name string) (Stage, error) {
	switch s := Stage(name); s {
	case StagePlanning, StageArchitecting, StageCoding, StageReviewing,
		StageTesting, StageFinalizing, StageDone, StageFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown stage %q", name)
	}
}
