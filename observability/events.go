package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"escrowledger/core/events"
)

type eventMetrics struct {
	escrowEvents *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			escrowEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowledger",
				Subsystem: "events",
				Name:      "escrow_total",
				Help:      "Count of escrow lifecycle events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.escrowEvents)
	})
	return eventRegistry
}

// RecordEscrowEvent increments the event counter for the supplied event type.
func (m *eventMetrics) RecordEscrowEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.escrowEvents.WithLabelValues(normalized).Inc()
}

// MeteredEmitter decorates an events.Emitter with prometheus counters. A nil
// next emitter records metrics and drops the event.
type MeteredEmitter struct {
	next events.Emitter
}

// NewMeteredEmitter wraps the supplied emitter with event metrics.
func NewMeteredEmitter(next events.Emitter) *MeteredEmitter {
	return &MeteredEmitter{next: next}
}

// Emit implements events.Emitter.
func (m *MeteredEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Events().RecordEscrowEvent(evt.EventType())
	if m != nil && m.next != nil {
		m.next.Emit(evt)
	}
}
