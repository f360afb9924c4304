package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, steps <-chan Step, errs <-chan error) ([]Step, error) {
	t.Helper()

	var got []Step
	timeout := time.After(time.Second)
	for {
		select {
		case step, ok := <-steps:
			if !ok {
				return got, <-errs
			}
			got = append(got, step)
		case <-timeout:
			t.Fatalf("step stream did not finish; got %d steps", len(got))
		}
	}
}

func TestMockAgent_ReplaysSteps(t *testing.T) {
	agent := NewMockAgent("u1:p1",
		Step{Kind: StepThinking, Content: "hm"},
		Step{Kind: StepContent, Content: "done"},
	)

	steps, errs := agent.Run(context.Background(), Prompt{Message: "hi", Stream: true})
	got, err := drain(t, steps, errs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, StepThinking, got[0].Kind)
	assert.Equal(t, "done", got[1].Content)
	assert.Equal(t, 1, agent.Runs())
}

func TestMockAgent_FailAfter(t *testing.T) {
	agent := NewMockAgent("u1:p1",
		Step{Kind: StepContent, Content: "partial"},
		Step{Kind: StepContent, Content: "never sent"},
	)
	agent.FailAfter = 1
	agent.Err = errors.New("scripted failure")

	steps, errs := agent.Run(context.Background(), Prompt{Message: "hi"})
	got, err := drain(t, steps, errs)
	require.ErrorIs(t, err, agent.Err)
	require.Len(t, got, 1)
	assert.Equal(t, "partial", got[0].Content)
}

func TestMockAgent_CancellationStopsReplay(t *testing.T) {
	agent := NewMockAgent("u1:p1",
		Step{Kind: StepContent, Content: "a"},
		Step{Kind: StepContent, Content: "b"},
	)
	agent.StepDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps, errs := agent.Run(ctx, Prompt{Message: "hi"})
	got, err := drain(t, steps, errs)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMockAgent_Close(t *testing.T) {
	agent := NewMockAgent("u1:p1")
	require.NoError(t, agent.Close())
	require.NoError(t, agent.Close())
	assert.Equal(t, 2, agent.Closed())
}
