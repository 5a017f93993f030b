// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package sandbox

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentWritesToSamePath(t *testing.T) {
	gw, err := New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)

	// Large enough that a torn write would be observable as a mix of
	// two payloads.
	payloads := make([]string, 8)
	for i := range payloads {
		line := fmt.Sprintf("writer-%d\n", i)
		for len(payloads[i]) < 64*1024 {
			payloads[i] += line
		}
	}

	var wg sync.WaitGroup
	for _, payload := range payloads {
		wg.Add(1)
		go func(payload string) {
			defer wg.Done()
			_, err := gw.WriteFile("shared.txt", payload)
			assert.NoError(t, err)
		}(payload)
	}
	wg.Wait()

	content, err := gw.ReadFile("shared.txt")
	require.NoError(t, err)

	// The file holds exactly one writer's payload, never an interleaving.
	assert.Contains(t, payloads, content)
}
