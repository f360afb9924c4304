package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aditya-dange-m0/prod-fc/backend"
	"github.com/aditya-dange-m0/prod-fc/core"
	"github.com/aditya-dange-m0/prod-fc/logging"
	"github.com/aditya-dange-m0/prod-fc/metrics"
)

// State is the lifecycle state of a cached session.
type State string

const (
	// StateIdle means the session's backend instance is cached and free
	// for the next run.
	StateIdle State = "idle"
	// StateRunning means exactly one run currently borrows the backend
	// instance. Running sessions are never evicted.
	StateRunning State = "running"
	// StateEvicting marks a session mid-teardown.
	StateEvicting State = "evicting"
)

// Key derives the session identity from its composite parts.
func Key(userID, projectID string) string { return userID + ":" + projectID }

// Outcome records how a run ended, kept for the status surface.
type Outcome struct {
	RunID      string    `json:"run_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Session is the public view of one cached entry handed to a run. The run
// borrows Agent for its duration and must not retain it past Release.
type Session struct {
	Key       string
	UserID    string
	ProjectID string
	Agent     backend.Agent
}

// Status is one row of the status surface.
type Status struct {
	Key          string    `json:"key"`
	State        State     `json:"state"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	LastOutcome  *Outcome  `json:"last_outcome,omitempty"`
}

// entry is the registry-private record; all fields are guarded by the
// registry mutex.
type entry struct {
	session      *Session
	state        State
	lastActivity time.Time
	createdAt    time.Time
}

// Options configure a Registry.
type Options struct {
	// OutcomeHistory bounds the LRU of per-key terminal outcomes.
	OutcomeHistory int
	Logger         logging.Logger
}

// Registry is the keyed cache of backend agent instances. Safe for
// concurrent use.
type Registry struct {
	factory  backend.Factory
	logger   logging.Logger
	outcomes *lru.Cache[string, Outcome]

	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs a Registry backed by the given factory. The factory is the
// only point that creates backend instances; the cache exists to amortize it.
func New(factory backend.Factory, optFns ...func(o *Options)) *Registry {
	opts := Options{
		OutcomeHistory: 128,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	outcomes, _ := lru.New[string, Outcome](opts.OutcomeHistory)

	return &Registry{
		factory:  factory,
		logger:   opts.Logger,
		outcomes: outcomes,
		entries:  make(map[string]*entry),
	}
}

// Acquire returns the cached session for (userID, projectID), creating one
// lazily on first use, and transitions it to running. It fails with
// core.ErrConcurrentRun while another run holds the key: at most one run
// executes per key, which bounds memory and preserves per-user ordering.
func (r *Registry) Acquire(ctx context.Context, userID, projectID string) (*Session, error) {
	key := Key(userID, projectID)

	r.mu.Lock()
	if ent, ok := r.entries[key]; ok {
		switch ent.state {
		case StateRunning:
			r.mu.Unlock()
			return nil, fmt.Errorf("acquire %s: %w", key, core.ErrConcurrentRun)
		case StateEvicting:
			// Teardown in progress; the caller races a reaper sweep.
			r.mu.Unlock()
			return nil, fmt.Errorf("acquire %s: session is being evicted", key)
		}
		ent.state = StateRunning
		ent.lastActivity = time.Now()
		r.mu.Unlock()
		return ent.session, nil
	}

	// Reserve the key before the (expensive) factory call so concurrent
	// acquirers of the same key see the one-run-per-key conflict instead
	// of racing duplicate creations.
	now := time.Now()
	ent := &entry{
		session:      &Session{Key: key, UserID: userID, ProjectID: projectID},
		state:        StateRunning,
		lastActivity: now,
		createdAt:    now,
	}
	r.entries[key] = ent
	r.mu.Unlock()

	agent, err := r.factory(ctx, userID, projectID)
	if err != nil {
		r.mu.Lock()
		delete(r.entries, key)
		r.mu.Unlock()
		return nil, fmt.Errorf("create backend for %s: %w", key, err)
	}

	r.mu.Lock()
	ent.session.Agent = agent
	r.mu.Unlock()

	metrics.SessionsCreated.Inc()
	metrics.SessionsActive.Inc()
	r.logger.Info("session created", "key", key)

	return ent.session, nil
}

// Release transitions a running session back to idle and records the run's
// terminal outcome. Releasing an unknown key is a no-op.
func (r *Registry) Release(key string, outcome Outcome) {
	r.mu.Lock()
	if ent, ok := r.entries[key]; ok && ent.state == StateRunning {
		ent.state = StateIdle
		ent.lastActivity = time.Now()
	}
	r.mu.Unlock()

	r.outcomes.Add(key, outcome)
}

// Evict removes and disposes an idle session. It returns false, leaving the
// session untouched, when the session is running or unknown: a live run is
// never evicted out from under its client.
func (r *Registry) Evict(key string) bool {
	r.mu.Lock()
	ent, ok := r.entries[key]
	if !ok || ent.state != StateIdle {
		r.mu.Unlock()
		return false
	}
	ent.state = StateEvicting
	delete(r.entries, key)
	r.mu.Unlock()

	if ent.session.Agent != nil {
		if err := ent.session.Agent.Close(); err != nil {
			r.logger.Warn("backend teardown failed", "key", key, "error", err)
		}
	}

	metrics.SessionsActive.Dec()
	r.logger.Info("session evicted", "key", key)

	return true
}

// ListStatus returns a snapshot summary of every cached session.
func (r *Registry) ListStatus() []Status {
	r.mu.Lock()
	statuses := make([]Status, 0, len(r.entries))
	for key, ent := range r.entries {
		st := Status{
			Key:          key,
			State:        ent.state,
			LastActivity: ent.lastActivity,
			CreatedAt:    ent.createdAt,
		}
		if out, ok := r.outcomes.Get(key); ok {
			o := out
			st.LastOutcome = &o
		}
		statuses = append(statuses, st)
	}
	r.mu.Unlock()
	return statuses
}

// Len reports the number of cached sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
