// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageForStack(t *testing.T) {
	tests := []struct {
		name  string
		stack []string
		want  string
	}{
		{"python default", []string{"python", "flask"}, "python:3.12-slim"},
		{"empty stack", nil, "python:3.12-slim"},
		{"node", []string{"typescript", "express"}, "node:20-slim"},
		{"go", []string{"golang"}, "golang:1.25"},
		{"case insensitive", []string{"Node"}, "node:20-slim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ImageForStack(tt.stack))
		})
	}
}
