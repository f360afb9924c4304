package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for run-level conflicts. They are rejected before any
// event is produced and never surfaced as stream events.
var (
	// ErrConcurrentRun signals that a run was requested for a session key
	// that already has a run in flight. The second request is rejected;
	// it may be retried once the first run releases the session.
	ErrConcurrentRun = errors.New("session already has a run in flight")

	// ErrSessionRunning signals an attempt to evict a session that is
	// currently running. Eviction is refused; the session stays live.
	ErrSessionRunning = errors.New("session is running and cannot be evicted")

	// ErrSinkClosed signals that the subscriber disconnected. It cancels
	// the run upstream and is not treated as a failure of the core.
	ErrSinkClosed = errors.New("event sink closed")
)

// BackendError wraps a failure of the external model/tool backend. It is
// caught at the execution adapter boundary and converted into a terminal
// error event; it never escapes a run as an unhandled failure.
type BackendError struct {
	Agent string
	Err   error
}

func (e *BackendError) Error() string {
	if e.Agent != "" {
		return fmt.Sprintf("backend %s: %v", e.Agent, e.Err)
	}
	return fmt.Sprintf("backend: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// errorCode maps an error to the structured code carried on error events.
func errorCode(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return "backend_error"
	}
	return "internal_error"
}
