package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProviderMetrics tracks outbound billing provider calls.
type ProviderMetrics struct {
	calls        *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	swallowed    prometheus.Counter
}

// NewProviderMetrics registers provider metrics on the provided registerer.
func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	if reg == nil {
		return &ProviderMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_provider_calls_total",
		Help: "Outbound billing provider calls by operation and result.",
	}, []string{"operation", "result"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "billing_provider_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"breaker"})
	swallowed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_provider_cancel_failures_total",
		Help: "Provider cancellations that failed while the local cancellation proceeded.",
	})
	reg.MustRegister(calls, breakerState, swallowed)
	return &ProviderMetrics{calls: calls, breakerState: breakerState, swallowed: swallowed}
}

// IncCall records the result of a provider operation.
func (p *ProviderMetrics) IncCall(operation string, err error) {
	if p == nil || p.calls == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.calls.WithLabelValues(normalizeLabel(operation), result).Inc()
}

// SetBreakerState records the numeric state for the named breaker.
func (p *ProviderMetrics) SetBreakerState(name string, state int) {
	if p == nil || p.breakerState == nil {
		return
	}
	p.breakerState.WithLabelValues(normalizeLabel(name)).Set(float64(state))
}

// IncSwallowedCancelFailure counts provider cancel errors that did not block local state.
func (p *ProviderMetrics) IncSwallowedCancelFailure() {
	if p == nil || p.swallowed == nil {
		return
	}
	p.swallowed.Inc()
}
