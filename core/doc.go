// Package core defines the canonical streaming event model shared by every
// component of the service: the Event record, its event-type vocabulary, and
// the error taxonomy for run-level failures.
//
// Events are immutable after construction. Their total order is established
// by emission order into the publisher, never by timestamp: under concurrent
// sub-agent execution timestamps may collide.
package core
