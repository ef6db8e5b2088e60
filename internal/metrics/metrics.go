// Package metrics keeps Prometheus collectors for handoffs and sessions.
// Collectors live in a private registry that can be written out as a
// node-exporter textfile.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arach/fabric/internal/handoff"
	"github.com/arach/fabric/internal/session"
)

// Metrics holds the fabric collectors.
type Metrics struct {
	HandoffsTotal    *prometheus.CounterVec
	HandoffDuration  *prometheus.HistogramVec
	SnapshotFiles    prometheus.Histogram
	SessionEvents    *prometheus.CounterVec
	ProviderSwitches prometheus.Counter

	registry *prometheus.Registry
	now      func() time.Time

	mu      sync.Mutex
	started map[string]time.Time
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		HandoffsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabric_handoffs_total",
				Help: "Handoff operations by outcome",
			},
			[]string{"op", "target", "status"},
		),
		HandoffDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fabric_handoff_duration_seconds",
				Help:    "Duration of handoff operations in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"op"},
		),
		SnapshotFiles: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fabric_snapshot_files",
				Help:    "Files captured per handoff snapshot",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		SessionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabric_session_events_total",
				Help: "Session transitions by type",
			},
			[]string{"type"},
		),
		ProviderSwitches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fabric_provider_switches_total",
				Help: "Fallback provider switches after rate limiting",
			},
		),
		registry: reg,
		now:      time.Now,
		started:  make(map[string]time.Time),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func runKey(e handoff.Event) string {
	return string(e.Op) + "/" + e.TokenID
}

// ObserveHandoff records one handoff event. Subscribe it with
// Manager.OnEvent.
func (m *Metrics) ObserveHandoff(e handoff.Event) {
	switch e.Type {
	case handoff.EventInitiated:
		m.mu.Lock()
		m.started[runKey(e)] = m.now()
		m.mu.Unlock()

	case handoff.EventSnapshotCreated:
		m.SnapshotFiles.Observe(float64(e.Files))

	case handoff.EventCompleted, handoff.EventFailed:
		status := "success"
		if e.Type == handoff.EventFailed {
			status = "failure"
		}
		m.HandoffsTotal.WithLabelValues(string(e.Op), string(e.Target), status).Inc()

		m.mu.Lock()
		start, ok := m.started[runKey(e)]
		delete(m.started, runKey(e))
		m.mu.Unlock()
		if ok {
			m.HandoffDuration.WithLabelValues(string(e.Op)).Observe(m.now().Sub(start).Seconds())
		}
	}
}

// ObserveSession records one session event. Subscribe it with
// Session.OnEvent.
func (m *Metrics) ObserveSession(e session.Event) {
	m.SessionEvents.WithLabelValues(string(e.Type)).Inc()
	if e.Type == session.EventProviderSwitched {
		m.ProviderSwitches.Inc()
	}
}

// WriteTextfile writes the current values in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
