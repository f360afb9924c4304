// Package publisher delivers one run's event sequence to exactly one
// subscriber in emission order. Back-pressure is inherited from the bounded
// emit channels upstream: when the sink stalls, this loop stops reading and
// production blocks once the buffer fills. A sink failure means the
// subscriber is gone; the run is cancelled upstream and Publish returns
// normally, because a disconnect is not a failure of the core.
package publisher

import (
	"context"

	"github.com/aditya-dange-m0/prod-fc/core"
	"github.com/aditya-dange-m0/prod-fc/logging"
	"github.com/aditya-dange-m0/prod-fc/metrics"
)

// Sink accepts events for one subscriber. Send returns an error once the
// subscriber can no longer accept events (disconnect, write failure).
type Sink interface {
	Send(ev core.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev core.Event) error

// Send implements Sink.
func (f SinkFunc) Send(ev core.Event) error { return f(ev) }

// Options configure a Publisher.
type Options struct {
	Logger logging.Logger
}

// Publisher forwards event sequences to sinks. Safe for concurrent use; one
// Publish call serves one run.
type Publisher struct {
	logger logging.Logger
}

// New constructs a Publisher.
func New(optFns ...func(o *Options)) *Publisher {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Publisher{logger: opts.Logger}
}

// Publish forwards events to sink until the sequence ends. On sink failure
// it invokes cancel to stop production, drains the remaining buffered
// events so the producer's goroutines unblock, and returns normally. The
// returned event is the last one delivered; ok is false when nothing was
// delivered.
func (p *Publisher) Publish(ctx context.Context, cancel context.CancelFunc, events <-chan core.Event, sink Sink) (last core.Event, ok bool) {
	for ev := range events {
		if err := sink.Send(ev); err != nil {
			p.logger.Debug("sink closed, cancelling run", "session_id", ev.SessionID, "error", err)
			cancel()
			for range events {
				// Drain so upstream emitters observe cancellation
				// at their next suspension point.
			}
			return last, ok
		}
		metrics.EventsEmitted.WithLabelValues(string(ev.Type)).Inc()
		last, ok = ev, true
	}
	return last, ok
}
