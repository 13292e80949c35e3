package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "test-job"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_success_total", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_failure_total", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestWebhookMetricsCountsByTypeAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.IncEvent("invoice.paid", OutcomeProcessed)
	m.IncEvent("invoice.paid", OutcomeProcessed)
	m.IncEvent("", OutcomeIgnored)
	m.ObserveDuration("invoice.paid", 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "stripe_webhook_events_total", "type", "invoice.paid"); err != nil {
		t.Fatalf("fetch events: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 processed events, got %f", got)
	}
	if _, err := fetchCounterValue(mfs, "stripe_webhook_events_total", "type", "unknown"); err != nil {
		t.Fatalf("expected empty type to normalize to unknown: %v", err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var webhook *WebhookMetrics
	webhook.IncEvent("x", OutcomeFailed)
	webhook.ObserveDuration("x", time.Second)

	var provider *ProviderMetrics
	provider.IncCall("cancel_subscription", nil)
	provider.SetBreakerState("stripe", 2)
	provider.IncSwallowedCancelFailure()

	NewProviderMetrics(nil).IncCall("create_customer", nil)
}
