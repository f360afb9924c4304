// Package metrics exposes the service's Prometheus collectors. Collectors
// are registered on the default registry and served by the HTTP layer at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks backend instances currently cached.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prodfc_sessions_active",
		Help: "Number of cached agent sessions.",
	})

	// SessionsCreated counts backend instance creations, the expensive
	// operation the session cache amortizes.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prodfc_sessions_created_total",
		Help: "Total agent sessions created.",
	})

	// RunsTotal counts started runs by kind (agent, team) and outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodfc_runs_total",
		Help: "Total runs by kind and outcome.",
	}, []string{"kind", "outcome"})

	// EventsEmitted counts events emitted into publishers by type.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodfc_events_emitted_total",
		Help: "Total stream events emitted by event type.",
	}, []string{"event_type"})
)
