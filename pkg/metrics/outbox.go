package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox relay outcomes.
const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxParked    = "parked"
)

// OutboxMetrics tracks the relay from outbox_events to the broker. A nil
// value is a no-op.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentloop_outbox_events_total",
			Help: "Outbox rows handled by the relay, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rentloop_outbox_batch_duration_seconds",
			Help:    "Time spent relaying one locked batch.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}
	reg.MustRegister(m.events, m.batches)
	return m
}

func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveBatch records a batch that relayed at least one row.
func (m *OutboxMetrics) ObserveBatch(took time.Duration) {
	if m == nil {
		return
	}
	m.batches.Observe(took.Seconds())
}
