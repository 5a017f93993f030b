// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package executor

import (
	"fmt"
	"sync"
)

// BudgetExhausted reports that the run-wide iteration budget ran out
// before the task signalled completion.
type BudgetExhausted struct {
	Limit int
}

func (e *BudgetExhausted) Error() string {
	return fmt.Sprintf("iteration budget of %d exhausted", e.Limit)
}

// Budget is the global iteration allowance shared by every task in one
// run. Each reasoning/acting iteration consumes exactly one unit.
// Safe for concurrent tasks.
type Budget struct {
	mu        sync.Mutex
	limit     int
	remaining int
}

// NewBudget creates a budget with the given limit.
func NewBudget(limit int) *Budget {
	return &Budget{limit: limit, remaining: limit}
}

// Take consumes one unit. It reports false once the budget is exhausted.
func (b *Budget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Remaining returns the unconsumed units.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Limit returns the configured limit.
func (b *Budget) Limit() int {
	return b.limit
}
