// Package runner implements the execution adapter: it drives exactly one
// backend invocation and translates the backend's native step notifications
// into the canonical event sequence, preserving arrival order.
//
// The returned event channel is a lazy, finite, non-restartable sequence
// consumed exactly once by the publisher. In agent mode the first event is
// always agent_started and, unless the run is cancelled, the last is exactly
// one terminal event: backend failures are converted into agent_error rather
// than ending the sequence silently. Cancellation propagates to the backend
// through ctx and terminates the sequence without a terminal event; the run
// is abandoned, not completed.
package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/aditya-dange-m0/prod-fc/backend"
	"github.com/aditya-dange-m0/prod-fc/core"
	"github.com/aditya-dange-m0/prod-fc/logging"
)

// Role selects the event vocabulary the adapter translates into.
type Role int

const (
	// RoleAgent produces the single-agent lifecycle: agent_started,
	// thinking/response/tool events, then a terminal event.
	RoleAgent Role = iota
	// RoleOrchestrator produces only orchestrator_thinking and
	// orchestrator_routing; the team multiplexer owns start and terminal
	// events for the enclosing team run.
	RoleOrchestrator
)

// Run describes one execution bound to a session.
type Run struct {
	SessionID string
	AgentID   string
	Message   string
	// StreamIntermediateSteps gates tool start/end events; response
	// content and lifecycle events always flow.
	StreamIntermediateSteps bool
	Role                    Role
	// StartedMetadata is attached to the agent_started preamble.
	StartedMetadata map[string]any
}

// Options configure an Adapter.
type Options struct {
	// EventBufferSize caps the emit channel. This is the bounded buffer
	// of the pipeline: when the subscriber stalls beyond it, production
	// blocks instead of buffering unboundedly.
	EventBufferSize int
	Logger          logging.Logger
}

// Adapter translates backend runs into event sequences. One Adapter is
// reusable across runs; each Start call drives an independent sequence.
type Adapter struct {
	bufferSize int
	logger     logging.Logger
}

// New constructs an Adapter with optional overrides.
func New(optFns ...func(o *Options)) *Adapter {
	opts := Options{
		EventBufferSize: 32,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{bufferSize: opts.EventBufferSize, logger: opts.Logger}
}

// Start begins one backend invocation and returns its event sequence plus a
// terminal error channel (buffered size 1, closed when the run ends). The
// error channel reports the backend failure that produced a terminal error
// event, or the run's final text on success is available to callers that
// watch the event stream itself.
func (a *Adapter) Start(ctx context.Context, agent backend.Agent, run Run) (<-chan core.Event, <-chan error) {
	out := make(chan core.Event, a.bufferSize)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if run.Role == RoleAgent {
			started := core.NewAgentStarted(
				run.SessionID,
				run.AgentID,
				fmt.Sprintf("Agent processing: %s", run.Message),
				run.StartedMetadata,
			)
			if !a.emit(ctx, out, started) {
				return
			}
		}

		steps, backendErrs := agent.Run(ctx, backend.Prompt{
			Message: run.Message,
			Stream:  true,
		})

		a.pump(ctx, out, steps, run)

		// The step stream is closed; fold in a late backend failure.
		if err := <-backendErrs; err != nil {
			a.fail(ctx, out, errCh, run, err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		if run.Role == RoleAgent {
			a.emit(ctx, out, core.NewAgentCompleted(run.SessionID, run.AgentID, "Agent execution completed"))
		}
	}()

	return out, errCh
}

// pump translates steps until the stream closes, ctx cancels, or emission
// fails.
func (a *Adapter) pump(ctx context.Context, out chan<- core.Event, steps <-chan backend.Step, run Run) {
	for {
		select {
		case <-ctx.Done():
			return
		case step, ok := <-steps:
			if !ok {
				return
			}
			ev, send := a.translate(step, run)
			if send && !a.emit(ctx, out, ev) {
				return
			}
		}
	}
}

// translate maps one backend step onto an event for the run's role. The
// second return is false for steps the run suppresses.
func (a *Adapter) translate(step backend.Step, run Run) (core.Event, bool) {
	if run.Role == RoleOrchestrator {
		switch step.Kind {
		case backend.StepThinking, backend.StepContent:
			return core.NewOrchestratorThinking(run.SessionID, run.AgentID, step.Content), true
		case backend.StepRoute:
			content := "Routing to: " + strings.Join(step.Targets, ", ")
			return core.NewOrchestratorRouting(run.SessionID, run.AgentID, content, step.Targets), true
		default:
			return core.Event{}, false
		}
	}

	switch step.Kind {
	case backend.StepThinking:
		return core.NewAgentThinking(run.SessionID, run.AgentID, step.Content), true
	case backend.StepContent:
		return core.NewAgentResponse(run.SessionID, run.AgentID, step.Content), true
	case backend.StepToolStart:
		if !run.StreamIntermediateSteps {
			return core.Event{}, false
		}
		return core.NewToolStarted(run.SessionID, run.AgentID, step.ToolName, step.ToolInput), true
	case backend.StepToolEnd:
		if !run.StreamIntermediateSteps {
			return core.Event{}, false
		}
		return core.NewToolCompleted(run.SessionID, run.AgentID, step.ToolName, step.ToolOutput), true
	default:
		return core.Event{}, false
	}
}

// fail converts a backend failure into the terminal error event (agent mode)
// and reports it on the error channel. Orchestrator failures surface only on
// the error channel; the multiplexer decides the team-level terminal.
func (a *Adapter) fail(ctx context.Context, out chan<- core.Event, errCh chan<- error, run Run, err error) {
	berr := &core.BackendError{Agent: run.AgentID, Err: err}
	a.logger.Warn("backend run failed", "session_id", run.SessionID, "agent_id", run.AgentID, "error", err)

	if run.Role == RoleAgent && ctx.Err() == nil {
		a.emit(ctx, out, core.NewAgentError(run.SessionID, run.AgentID, berr))
	}
	errCh <- berr
}

func (a *Adapter) emit(ctx context.Context, out chan<- core.Event, ev core.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
