// Package team implements the multiplexer for orchestrator-style runs: it
// drives the orchestrator's execution adapter to obtain routing decisions,
// fans out one adapter per routed sub-agent, and merges their event
// sequences into a single ordered stream attributed to the parent session.
//
// Merge policy: events from concurrent sub-agents are interleaved in arrival
// order with no global reordering; each event keeps its originating agent_id
// so the client can demultiplex. team_completed or team_error is emitted
// only after every spawned sub-agent has produced its terminal event. By
// default one sub-agent's failure does not cancel its siblings; WithFailFast
// switches to first-error cancellation.
package team

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aditya-dange-m0/prod-fc/backend"
	"github.com/aditya-dange-m0/prod-fc/core"
	"github.com/aditya-dange-m0/prod-fc/logging"
	"github.com/aditya-dange-m0/prod-fc/runner"
)

// OrchestratorID is the agent_id attached to orchestrator events.
const OrchestratorID = "orchestrator"

// Member is one sub-agent available for routing.
type Member struct {
	Name  string
	Agent backend.Agent
}

// Result is one sub-agent's contribution to consolidation.
type Result struct {
	AgentID string
	Content string
	Err     error
}

// Consolidator merges sub-agent results into the team_response content. The
// algorithm is backend dependent, so it is a pluggable policy.
type Consolidator interface {
	Consolidate(results []Result) string
}

// ConcatConsolidator is the default policy: it joins successful sub-agent
// results in routing order.
type ConcatConsolidator struct{}

// Consolidate implements Consolidator.
func (ConcatConsolidator) Consolidate(results []Result) string {
	var b strings.Builder
	b.WriteString("Team Response Summary:")
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		fmt.Fprintf(&b, "\n- %s: %s", res.AgentID, res.Content)
	}
	return b.String()
}

// Run describes one team request.
type Run struct {
	SessionID               string
	Message                 string
	StreamIntermediateSteps bool
}

// Options configure a Multiplexer.
type Options struct {
	// FailFast cancels sibling sub-agents on the first failure and ends
	// the run with team_error. Off by default: errors are isolated and
	// consolidation proceeds with the successful sub-agents.
	FailFast        bool
	Consolidator    Consolidator
	EventBufferSize int
	Logger          logging.Logger
}

// Multiplexer coordinates an orchestrator with its routable sub-agents. The
// orchestrator instance is borrowed per run (it lives in the session
// registry); the sub-agent roster is owned by the Multiplexer.
type Multiplexer struct {
	members []Member
	roster  map[string]backend.Agent
	adapter *runner.Adapter

	failFast     bool
	consolidator Consolidator
	bufferSize   int
	logger       logging.Logger
}

// New constructs a Multiplexer over the given sub-agent roster.
func New(members []Member, optFns ...func(o *Options)) *Multiplexer {
	opts := Options{
		Consolidator:    ConcatConsolidator{},
		EventBufferSize: 32,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	roster := make(map[string]backend.Agent, len(members))
	for _, m := range members {
		roster[m.Name] = m.Agent
	}

	return &Multiplexer{
		members: members,
		roster:  roster,
		adapter: runner.New(func(o *runner.Options) {
			o.EventBufferSize = opts.EventBufferSize
			o.Logger = opts.Logger
		}),
		failFast:     opts.FailFast,
		consolidator: opts.Consolidator,
		bufferSize:   opts.EventBufferSize,
		logger:       opts.Logger,
	}
}

// MemberNames returns the roster names in declaration order.
func (m *Multiplexer) MemberNames() []string {
	names := make([]string, len(m.members))
	for i, mem := range m.members {
		names[i] = mem.Name
	}
	return names
}

// Start begins a team run driven by the borrowed orchestrator instance and
// returns its merged event sequence: finite, consumed once, closed when the
// run ends. Cancellation via ctx terminates the sequence without a terminal
// event.
func (m *Multiplexer) Start(ctx context.Context, orchestrator backend.Agent, run Run) <-chan core.Event {
	out := make(chan core.Event, m.bufferSize)

	go func() {
		defer close(out)

		started := core.NewTeamStarted(run.SessionID, fmt.Sprintf("Team processing: %s", run.Message), m.MemberNames())
		if !emit(ctx, out, started) {
			return
		}

		targets, err := m.routePhase(ctx, out, orchestrator, run)
		if err != nil {
			emit(ctx, out, core.NewTeamError(run.SessionID, err))
			return
		}
		if ctx.Err() != nil {
			return
		}

		results, err := m.fanOut(ctx, out, run, targets)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// Fail-fast tripped: the join is complete, siblings were
			// cancelled, the team ends in error.
			emit(ctx, out, core.NewTeamError(run.SessionID, err))
			return
		}

		failures := 0
		var participants []string
		for _, res := range results {
			if res.Err != nil {
				failures++
				continue
			}
			participants = append(participants, res.AgentID)
		}

		if len(results) > 0 && failures == len(results) {
			emit(ctx, out, core.NewTeamError(run.SessionID, fmt.Errorf("all %d routed sub-agents failed", failures)))
			return
		}

		response := core.NewTeamResponse(run.SessionID, m.consolidator.Consolidate(results), participants)
		if !emit(ctx, out, response) {
			return
		}
		emit(ctx, out, core.NewTeamCompleted(run.SessionID, len(targets)))
	}()

	return out
}

// routePhase drives the orchestrator adapter, forwarding its events and
// extracting the routing decision. With no explicit decision the whole
// roster is routed, announced through a synthesized routing event.
func (m *Multiplexer) routePhase(ctx context.Context, out chan<- core.Event, orchestrator backend.Agent, run Run) ([]string, error) {
	events, errs := m.adapter.Start(ctx, orchestrator, runner.Run{
		SessionID: run.SessionID,
		AgentID:   OrchestratorID,
		Message:   run.Message,
		Role:      runner.RoleOrchestrator,
	})

	var targets []string
	for ev := range events {
		if ev.Type == core.TypeOrchestratorRouting {
			targets = routingTargets(ev)
		}
		if !emit(ctx, out, ev) {
			return nil, nil
		}
	}
	if err := <-errs; err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		targets = m.MemberNames()
		routing := core.NewOrchestratorRouting(
			run.SessionID,
			OrchestratorID,
			"Routing to all team members",
			targets,
		)
		if !emit(ctx, out, routing) {
			return nil, nil
		}
	}

	return targets, nil
}

// fanOut runs one execution adapter per routed target concurrently, merging
// their events into out in arrival order, and joins over all of them. The
// returned results are in routing order. The error is non-nil only under
// fail-fast.
func (m *Multiplexer) fanOut(ctx context.Context, out chan<- core.Event, run Run, targets []string) ([]Result, error) {
	g, childCtx := errgroup.WithContext(ctx)
	if !m.failFast {
		childCtx = ctx
	}

	var mu sync.Mutex
	results := make([]Result, 0, len(targets))

	for _, target := range targets {
		agent, ok := m.roster[target]
		if !ok {
			m.logger.Warn("routed target not in roster", "session_id", run.SessionID, "target", target)
			continue
		}

		g.Go(func() error {
			res := m.runChild(childCtx, out, run, target, agent)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			if m.failFast {
				return res.Err
			}
			return nil
		})
	}

	err := g.Wait()

	// Restore routing order for deterministic consolidation.
	ordered := make([]Result, 0, len(results))
	for _, target := range targets {
		for _, res := range results {
			if res.AgentID == target {
				ordered = append(ordered, res)
				break
			}
		}
	}

	return ordered, err
}

// runChild drives one sub-agent adapter to completion, forwarding its events
// and collecting its final text.
func (m *Multiplexer) runChild(ctx context.Context, out chan<- core.Event, run Run, name string, agent backend.Agent) Result {
	events, errs := m.adapter.Start(ctx, agent, runner.Run{
		SessionID:               run.SessionID,
		AgentID:                 name,
		Message:                 run.Message,
		StreamIntermediateSteps: run.StreamIntermediateSteps,
	})

	var final strings.Builder
	for ev := range events {
		if ev.Type == core.TypeAgentResponse {
			final.WriteString(ev.Content)
		}
		if !emit(ctx, out, ev) {
			break
		}
	}

	return Result{AgentID: name, Content: final.String(), Err: <-errs}
}

// routingTargets extracts the target list from a routing event's metadata.
func routingTargets(ev core.Event) []string {
	raw, ok := ev.Metadata["target_agents"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		targets := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				targets = append(targets, s)
			}
		}
		return targets
	default:
		return nil
	}
}

func emit(ctx context.Context, out chan<- core.Event, ev core.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
