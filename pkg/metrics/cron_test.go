package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	metrics.ObserveRun("order-expiry", 250*time.Millisecond, finished, nil)
	metrics.ObserveRun("order-expiry", time.Second, finished, errors.New("db down"))
	metrics.IncSkippedCycle()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "rentloop_cron_job_runs_total", "result", "success"); err != nil || got != 1 {
		t.Fatalf("expected success=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "rentloop_cron_job_runs_total", "result", "failure"); err != nil || got != 1 {
		t.Fatalf("expected failure=1, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "rentloop_cron_job_duration_seconds", "job", "order-expiry"); err != nil || got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f (%v)", got, err)
	}
	gauge := findMetricFamily(mfs, "rentloop_cron_job_last_success_timestamp_seconds")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != float64(finished.Unix()) {
		t.Fatalf("expected last success gauge at %d", finished.Unix())
	}
	skipped := findMetricFamily(mfs, "rentloop_cron_cycles_skipped_total")
	if skipped == nil || skipped.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one skipped cycle")
	}
}

func TestOrderMetricsCountsTransitionsAndWebhooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOrderMetrics(reg)
	metrics.IncTransition("completed")
	metrics.IncTransition("completed")
	metrics.IncWebhook("COMPLETE", "processed")
	metrics.AddExpired(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "rentloop_order_transitions_total", "status", "completed"); err != nil || got != 2 {
		t.Fatalf("expected completed=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "rentloop_payment_webhooks_total", "outcome", "processed"); err != nil || got != 1 {
		t.Fatalf("expected processed=1, got %f (%v)", got, err)
	}
	mf := findMetricFamily(mfs, "rentloop_orders_expired_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Fatalf("expected expired counter of 3")
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var orders *OrderMetrics
	orders.IncTransition("completed")
	orders.IncWebhook("COMPLETE", "processed")
	orders.AddExpired(1)
	cron := NewCronJobMetrics(nil)
	cron.ObserveRun("job", time.Second, time.Now(), nil)
	cron.IncSkippedCycle()
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
