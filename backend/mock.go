package backend

import (
	"context"
	"sync/atomic"
	"time"
)

// MockAgent is a scriptable in-memory Agent for tests and local development.
// It replays its Steps in order, optionally pausing between them, and can be
// configured to fail after a given number of steps.
type MockAgent struct {
	AgentName string
	Steps     []Step
	// FailAfter, when >= 0, stops the replay after that many steps and
	// reports Err (or a generic failure) on the error channel.
	FailAfter int
	Err       error
	// StepDelay inserts a pause before each step, useful for exercising
	// interleaving and cancellation.
	StepDelay time.Duration

	runs   atomic.Int64
	closed atomic.Int64
}

// NewMockAgent returns a MockAgent that replays steps verbatim.
func NewMockAgent(name string, steps ...Step) *MockAgent {
	return &MockAgent{AgentName: name, Steps: steps, FailAfter: -1}
}

// Name implements Agent.
func (m *MockAgent) Name() string { return m.AgentName }

// Runs reports how many times Run has been invoked.
func (m *MockAgent) Runs() int { return int(m.runs.Load()) }

// Closed reports how many times Close has been invoked.
func (m *MockAgent) Closed() int { return int(m.closed.Load()) }

// Run implements Agent by replaying the scripted steps.
func (m *MockAgent) Run(ctx context.Context, _ Prompt) (<-chan Step, <-chan error) {
	m.runs.Add(1)

	out := make(chan Step)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		for i, step := range m.Steps {
			if m.FailAfter >= 0 && i >= m.FailAfter {
				errCh <- m.failure()
				return
			}
			if m.StepDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.StepDelay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- step:
			}
		}

		if m.FailAfter >= 0 && m.FailAfter >= len(m.Steps) {
			errCh <- m.failure()
		}
	}()

	return out, errCh
}

// Close implements io.Closer.
func (m *MockAgent) Close() error {
	m.closed.Add(1)
	return nil
}

func (m *MockAgent) failure() error {
	if m.Err != nil {
		return m.Err
	}
	return &mockFailure{}
}

type mockFailure struct{}

func (*mockFailure) Error() string { return "mock backend failure" }
