package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// WebhookMetrics counts provider webhook deliveries by event type and outcome.
type WebhookMetrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhook_events_total",
		Help: "Stripe webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_webhook_duration_seconds",
		Help:    "Time spent handling Stripe webhook events.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	reg.MustRegister(events, duration)
	return &WebhookMetrics{events: events, duration: duration}
}

// IncEvent records one delivery of eventType with the given outcome.
func (w *WebhookMetrics) IncEvent(eventType, outcome string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveDuration records handler latency for eventType.
func (w *WebhookMetrics) ObserveDuration(eventType string, d time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(eventType)).Observe(d.Seconds())
}
