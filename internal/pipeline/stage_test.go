// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOrder(t *testing.T) {
	order := []Stage{
		StagePlanning, StageArchitecting, StageCoding,
		StageReviewing, StageTesting, StageFinalizing, StageDone,
	}
	for i := 0; i < len(order)-1; i++ {
		assert.Equal(t, order[i+1], next(order[i]))
	}
	assert.Equal(t, StageDone, next(StageDone))
	assert.Equal(t, StageFailed, next(StageFailed))
}

func TestTerminalStages(t *testing.T) {
	assert.True(t, StageDone.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageCoding.Terminal())
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("coding")
	require.NoError(t, err)
	assert.Equal(t, StageCoding, s)

	_, err = ParseStage("deploying")
	assert.Error(t, err)
}
