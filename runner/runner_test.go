package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aditya-dange-m0/prod-fc/backend"
	"github.com/aditya-dange-m0/prod-fc/core"
)

// collect drains the event sequence to completion and returns the terminal
// error, if any.
func collect(t *testing.T, events <-chan core.Event, errs <-chan error) ([]core.Event, error) {
	t.Helper()

	var got []core.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got, <-errs
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("event stream did not finish; got %d events", len(got))
		}
	}
}

func types(events []core.Event) []core.Type {
	out := make([]core.Type, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestAdapter_AgentLifecycle(t *testing.T) {
	agent := backend.NewMockAgent("u1:p1",
		backend.Step{Kind: backend.StepThinking, Content: "Analyzing request"},
		backend.Step{Kind: backend.StepToolStart, ToolName: "search", ToolInput: map[string]any{"q": "go"}},
		backend.Step{Kind: backend.StepToolEnd, ToolName: "search", ToolOutput: map[string]any{"hits": 3.0}},
		backend.Step{Kind: backend.StepContent, Content: "Answer"},
	)

	adapter := New()
	events, errs := adapter.Start(context.Background(), agent, Run{
		SessionID:               "u1:p1",
		AgentID:                 "u1",
		Message:                 "hi",
		StreamIntermediateSteps: true,
		Role:                    RoleAgent,
	})

	got, err := collect(t, events, errs)
	require.NoError(t, err)

	assert.Equal(t, []core.Type{
		core.TypeAgentStarted,
		core.TypeAgentThinking,
		core.TypeToolStarted,
		core.TypeToolCompleted,
		core.TypeAgentResponse,
		core.TypeAgentCompleted,
	}, types(got))

	assert.Equal(t, "Agent processing: hi", got[0].Content)
	assert.Equal(t, "search", got[2].ToolName)
	assert.Equal(t, "Answer", got[4].Content)
	assert.Equal(t, "Agent execution completed", got[5].Content)
	for _, ev := range got {
		assert.Equal(t, "u1:p1", ev.SessionID)
		assert.Equal(t, "u1", ev.AgentID)
	}
}

func TestAdapter_SuppressesIntermediateSteps(t *testing.T) {
	agent := backend.NewMockAgent("u1:p1",
		backend.Step{Kind: backend.StepToolStart, ToolName: "search"},
		backend.Step{Kind: backend.StepToolEnd, ToolName: "search"},
		backend.Step{Kind: backend.StepContent, Content: "Answer"},
	)

	adapter := New()
	events, errs := adapter.Start(context.Background(), agent, Run{
		SessionID: "u1:p1",
		AgentID:   "u1",
		Message:   "hi",
		Role:      RoleAgent,
	})

	got, err := collect(t, events, errs)
	require.NoError(t, err)

	assert.Equal(t, []core.Type{
		core.TypeAgentStarted,
		core.TypeAgentResponse,
		core.TypeAgentCompleted,
	}, types(got), "tool events must be suppressed, content must still flow")
}

func TestAdapter_BackendFailureBecomesAgentError(t *testing.T) {
	agent := backend.NewMockAgent("u1:p1",
		backend.Step{Kind: backend.StepContent, Content: "partial"},
	)
	agent.FailAfter = 1
	agent.Err = errors.New("rate limited")

	adapter := New()
	events, errs := adapter.Start(context.Background(), agent, Run{
		SessionID: "u1:p1",
		AgentID:   "u1",
		Message:   "hi",
		Role:      RoleAgent,
	})

	got, err := collect(t, events, errs)
	require.Error(t, err)

	var berr *core.BackendError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "u1", berr.Agent)

	last := got[len(got)-1]
	assert.Equal(t, core.TypeAgentError, last.Type)
	require.NotNil(t, last.Error)
	assert.Equal(t, "backend_error", last.Error.Code)
	assert.Contains(t, last.Error.Message, "rate limited")

	// Exactly one terminal event, at the end.
	for _, ev := range got[:len(got)-1] {
		assert.False(t, ev.IsTerminal(), "terminal event must be last and unique")
	}
}

func TestAdapter_ImmediateFailureStillStarts(t *testing.T) {
	agent := backend.NewMockAgent("u1:p1")
	agent.FailAfter = 0

	adapter := New()
	events, errs := adapter.Start(context.Background(), agent, Run{
		SessionID: "u1:p1",
		AgentID:   "u1",
		Message:   "hi",
		Role:      RoleAgent,
	})

	got, err := collect(t, events, errs)
	require.Error(t, err)
	assert.Equal(t, []core.Type{core.TypeAgentStarted, core.TypeAgentError}, types(got))
}

func TestAdapter_CancellationEndsWithoutTerminal(t *testing.T) {
	agent := backend.NewMockAgent("u1:p1",
		backend.Step{Kind: backend.StepContent, Content: "a"},
		backend.Step{Kind: backend.StepContent, Content: "b"},
		backend.Step{Kind: backend.StepContent, Content: "c"},
	)
	agent.StepDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	adapter := New()
	events, errs := adapter.Start(ctx, agent, Run{
		SessionID: "u1:p1",
		AgentID:   "u1",
		Message:   "hi",
		Role:      RoleAgent,
	})

	// Read the preamble, then walk away.
	first := <-events
	assert.Equal(t, core.TypeAgentStarted, first.Type)
	cancel()

	got, err := collect(t, events, errs)
	require.NoError(t, err)
	for _, ev := range got {
		assert.False(t, ev.IsTerminal(), "cancelled run must not emit a terminal event")
	}
}

func TestAdapter_OrchestratorVocabulary(t *testing.T) {
	agent := backend.NewMockAgent("orchestrator:main",
		backend.Step{Kind: backend.StepThinking, Content: "Considering team"},
		backend.Step{Kind: backend.StepContent, Content: "Plan ready"},
		backend.Step{Kind: backend.StepRoute, Targets: []string{"research", "writer"}},
		backend.Step{Kind: backend.StepToolStart, ToolName: "scratch"},
	)

	adapter := New()
	events, errs := adapter.Start(context.Background(), agent, Run{
		SessionID:               "orchestrator:main",
		AgentID:                 "orchestrator",
		Message:                 "hi",
		StreamIntermediateSteps: true,
		Role:                    RoleOrchestrator,
	})

	got, err := collect(t, events, errs)
	require.NoError(t, err)

	assert.Equal(t, []core.Type{
		core.TypeOrchestratorThinking,
		core.TypeOrchestratorThinking,
		core.TypeOrchestratorRouting,
	}, types(got), "orchestrator runs emit no started, terminal, or tool events")

	routing := got[2]
	assert.Equal(t, "Routing to: research, writer", routing.Content)
	assert.Equal(t, []string{"research", "writer"}, routing.Metadata["target_agents"])
}

func TestAdapter_OrchestratorFailureOnlyOnErrorChannel(t *testing.T) {
	agent := backend.NewMockAgent("orchestrator:main",
		backend.Step{Kind: backend.StepThinking, Content: "Considering"},
	)
	agent.FailAfter = 1
	agent.Err = errors.New("routing model down")

	adapter := New()
	events, errs := adapter.Start(context.Background(), agent, Run{
		SessionID: "orchestrator:main",
		AgentID:   "orchestrator",
		Message:   "hi",
		Role:      RoleOrchestrator,
	})

	got, err := collect(t, events, errs)
	require.Error(t, err)
	for _, ev := range got {
		assert.NotEqual(t, core.TypeAgentError, ev.Type)
		assert.False(t, ev.IsTerminal(), "orchestrator failures must not produce stream terminals")
	}
}

func TestAdapter_BoundedBuffer(t *testing.T) {
	steps := make([]backend.Step, 8)
	for i := range steps {
		steps[i] = backend.Step{Kind: backend.StepContent, Content: "chunk"}
	}
	agent := backend.NewMockAgent("u1:p1", steps...)

	adapter := New(func(o *Options) { o.EventBufferSize = 2 })
	events, errs := adapter.Start(context.Background(), agent, Run{
		SessionID: "u1:p1",
		AgentID:   "u1",
		Message:   "hi",
		Role:      RoleAgent,
	})

	// A slow reader must still receive the complete ordered sequence.
	var got []core.Event
	for ev := range events {
		time.Sleep(time.Millisecond)
		got = append(got, ev)
	}
	require.NoError(t, <-errs)
	assert.Len(t, got, 10)
	assert.Equal(t, core.TypeAgentCompleted, got[len(got)-1].Type)
}
