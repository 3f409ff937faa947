package humanoid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

// mockExecutor records dispatched events instead of touching a browser.
// Sleeps are recorded but not performed, keeping tests fast.
type mockExecutor struct {
	t  *testing.T
	mu sync.Mutex

	dispatchedEvents []schemas.MouseEventData
	sentKeys         []string
	sleepDurations   []time.Duration

	dispatchErr error
}

func newMockExecutor(t *testing.T) *mockExecutor {
	return &mockExecutor{t: t}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleepDurations = append(m.sleepDurations, d)
	return ctx.Err()
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dispatchErr != nil {
		return m.dispatchErr
	}
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	return ctx.Err()
}

func (m *mockExecutor) SendKeys(ctx context.Context, data schemas.KeyEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentKeys = append(m.sentKeys, data.Key)
	return ctx.Err()
}

func (m *mockExecutor) events() []schemas.MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.MouseEventData, len(m.dispatchedEvents))
	copy(out, m.dispatchedEvents)
	return out
}

func (m *mockExecutor) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sentKeys))
	copy(out, m.sentKeys)
	return out
}
