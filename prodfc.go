// Package prodfc provides the high-level façade over the streaming
// orchestration core: the session registry, execution adapter, team
// multiplexer and stream publisher, wired together for the HTTP surface.
// Most applications interact with this package by:
//  1. Creating a Service via New() with a backend factory (and optionally a
//     team roster)
//  2. Running single-agent or team streams against a publisher.Sink
//  3. Using the maintenance surface (Health, Status, CleanupIdle)
//
// All defaults are safe for local development; production deployments
// supply provider-backed factories and a structured logger.
package prodfc

import (
	"context"
	"time"

	"github.com/aditya-dange-m0/prod-fc/backend"
	"github.com/aditya-dange-m0/prod-fc/core"
	"github.com/aditya-dange-m0/prod-fc/logging"
	"github.com/aditya-dange-m0/prod-fc/metrics"
	"github.com/aditya-dange-m0/prod-fc/publisher"
	"github.com/aditya-dange-m0/prod-fc/registry"
	"github.com/aditya-dange-m0/prod-fc/runner"
	"github.com/aditya-dange-m0/prod-fc/team"
)

// Version is reported by the health surface.
const Version = "1.0.0"

// Identity of the team run's parent session, matching the orchestrator's
// cache key in the original deployment.
const (
	TeamUserID    = "orchestrator"
	TeamProjectID = "main"
)

// Options configure the Service.
type Options struct {
	// Factory creates backend agents per session key; required.
	Factory backend.Factory
	// TeamMembers is the routable sub-agent roster for team runs.
	TeamMembers []team.Member
	// FailFast switches team runs to first-error cancellation.
	FailFast bool
	// Consolidator overrides the team_response consolidation policy.
	Consolidator team.Consolidator
	// EventBufferSize caps each run's emit channel (the pipeline's
	// bounded buffer).
	EventBufferSize int
	// OutcomeHistory bounds the registry's terminal-outcome LRU.
	OutcomeHistory int
	Logger         logging.Logger
}

// Service aggregates the orchestration core behind a small API consumed by
// the HTTP layer and the CLI.
type Service struct {
	registry *registry.Registry
	adapter  *runner.Adapter
	pub      *publisher.Publisher
	mux      *team.Multiplexer
	logger   logging.Logger
}

// AgentRequest is a single-agent run request.
type AgentRequest struct {
	Message                 string
	UserID                  string
	ProjectID               string
	StreamIntermediateSteps bool
}

// TeamRequest is a team run request.
type TeamRequest struct {
	Message                 string
	StreamIntermediateSteps bool
}

// Health is the health surface payload.
type Health struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	ActiveAgents int       `json:"active_agents"`
	Version      string    `json:"version"`
}

// New creates a Service with optional overrides.
func New(optFns ...func(o *Options)) *Service {
	opts := Options{
		EventBufferSize: 32,
		OutcomeHistory:  128,
		Consolidator:    team.ConcatConsolidator{},
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	reg := registry.New(opts.Factory, func(o *registry.Options) {
		o.OutcomeHistory = opts.OutcomeHistory
		o.Logger = opts.Logger
	})

	adapter := runner.New(func(o *runner.Options) {
		o.EventBufferSize = opts.EventBufferSize
		o.Logger = opts.Logger
	})

	mux := team.New(opts.TeamMembers, func(o *team.Options) {
		o.FailFast = opts.FailFast
		o.Consolidator = opts.Consolidator
		o.EventBufferSize = opts.EventBufferSize
		o.Logger = opts.Logger
	})

	return &Service{
		registry: reg,
		adapter:  adapter,
		pub: publisher.New(func(o *publisher.Options) {
			o.Logger = opts.Logger
		}),
		mux:    mux,
		logger: opts.Logger,
	}
}

// Registry exposes the session registry for the reaper and status surface.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Stream is one prepared run holding its acquired session. Exactly one of
// Publish or Abort must be called to return the session to the registry.
type Stream struct {
	svc   *Service
	sess  *registry.Session
	runID string
	kind  string
	start func(ctx context.Context) (<-chan core.Event, <-chan error)
}

// RunID identifies this run for tracking.
func (st *Stream) RunID() string { return st.runID }

// Publish drives the run and delivers its event sequence to sink. The run
// ends with a terminal event, or without one when cancel fires first (the
// subscriber disconnected; the run is abandoned, not completed).
func (st *Stream) Publish(ctx context.Context, cancel context.CancelFunc, sink publisher.Sink) {
	events, errs := st.start(ctx)
	last, delivered := st.svc.pub.Publish(ctx, cancel, events, sink)

	var runErr error
	if errs != nil {
		runErr = <-errs
	}

	st.svc.release(st.sess.Key, st.runID, st.kind, last, delivered, runErr)
}

// Abort releases the session without running. For callers whose transport
// setup fails between Begin and Publish.
func (st *Stream) Abort() {
	st.svc.release(st.sess.Key, st.runID, st.kind, core.Event{}, false, nil)
}

// BeginAgent acquires the session for a single-agent run. Failures here are
// request-level (core.ErrConcurrentRun, backend creation) and occur before
// any event is produced.
func (s *Service) BeginAgent(ctx context.Context, req AgentRequest) (*Stream, error) {
	sess, err := s.registry.Acquire(ctx, req.UserID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	return &Stream{
		svc:   s,
		sess:  sess,
		runID: core.NewID(),
		kind:  "agent",
		start: func(ctx context.Context) (<-chan core.Event, <-chan error) {
			return s.adapter.Start(ctx, sess.Agent, runner.Run{
				SessionID:               sess.Key,
				AgentID:                 req.UserID,
				Message:                 req.Message,
				StreamIntermediateSteps: req.StreamIntermediateSteps,
				StartedMetadata:         map[string]any{"project_id": req.ProjectID},
			})
		},
	}, nil
}

// BeginTeam acquires the orchestrator's session for a team run, sharing the
// one-run-per-key discipline with the registry.
func (s *Service) BeginTeam(ctx context.Context, req TeamRequest) (*Stream, error) {
	sess, err := s.registry.Acquire(ctx, TeamUserID, TeamProjectID)
	if err != nil {
		return nil, err
	}

	return &Stream{
		svc:   s,
		sess:  sess,
		runID: core.NewID(),
		kind:  "team",
		start: func(ctx context.Context) (<-chan core.Event, <-chan error) {
			events := s.mux.Start(ctx, sess.Agent, team.Run{
				SessionID:               sess.Key,
				Message:                 req.Message,
				StreamIntermediateSteps: req.StreamIntermediateSteps,
			})
			return events, nil
		},
	}, nil
}

// release returns the session to the registry with the run's terminal
// outcome and records run metrics.
func (s *Service) release(key, runID, kind string, last core.Event, delivered bool, runErr error) {
	outcome := registry.Outcome{RunID: runID, FinishedAt: time.Now()}

	switch {
	case delivered && last.IsTerminal() && last.Error == nil:
		outcome.Success = true
		metrics.RunsTotal.WithLabelValues(kind, "completed").Inc()
	case delivered && last.IsTerminal():
		outcome.Error = last.Error.Message
		metrics.RunsTotal.WithLabelValues(kind, "error").Inc()
	default:
		// No terminal event was delivered: the subscriber disconnected
		// (or never attached) and the run was abandoned.
		outcome.Error = "run abandoned before terminal event"
		metrics.RunsTotal.WithLabelValues(kind, "abandoned").Inc()
	}
	if runErr != nil && outcome.Error == "" {
		outcome.Error = runErr.Error()
	}

	s.registry.Release(key, outcome)
}

// Health reports service liveness and cached session count.
func (s *Service) Health() Health {
	return Health{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		ActiveAgents: s.registry.Len(),
		Version:      Version,
	}
}

// Status lists per-session summaries.
func (s *Service) Status() []registry.Status { return s.registry.ListStatus() }

// CleanupIdle evicts sessions idle longer than ttl and returns the count.
func (s *Service) CleanupIdle(ttl time.Duration) int { return s.registry.CleanupIdle(ttl) }
