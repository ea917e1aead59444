package testutils

import (
	"context"
	"sync"

	"github.com/evdnx/gomomentum/types"
)

// MockExecutor implements executor.Executor in-memory. When Block is set,
// Submit waits on Release (or ctx) before returning so tests can hold a
// submission in flight.
type MockExecutor struct {
	mu      sync.RWMutex
	intents []types.OrderIntent // captured for assertions

	Outcome types.RequestOutcome
	Err     error

	Block   bool
	Started chan struct{}
	Release chan struct{}
}

// NewMockExecutor creates an executor that reports success for every intent.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Outcome: types.RequestOutcome{Success: true, HTTPStatus: 200, FinalState: "success"},
		Started: make(chan struct{}, 16),
		Release: make(chan struct{}),
	}
}

// Submit records the intent and returns the configured outcome.
func (m *MockExecutor) Submit(ctx context.Context, intent types.OrderIntent) (types.RequestOutcome, error) {
	m.mu.Lock()
	m.intents = append(m.intents, intent)
	block := m.Block
	m.mu.Unlock()

	select {
	case m.Started <- struct{}{}:
	default:
	}
	if block {
		select {
		case <-m.Release:
		case <-ctx.Done():
			return types.RequestOutcome{}, ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Outcome, m.Err
}

// Intents returns a copy of all submitted intents.
func (m *MockExecutor) Intents() []types.OrderIntent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.OrderIntent, len(m.intents))
	copy(out, m.intents)
	return out
}
