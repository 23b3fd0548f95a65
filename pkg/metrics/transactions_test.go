package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestTransactionMetricsExportsLifecycleCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewTransactionMetrics(reg)

	metrics.IncSubmitted()
	metrics.IncSubmitted()
	metrics.IncResolved("approved")
	metrics.IncUpdate("ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "transactions_resolved_total", "outcome", "approved"); err != nil {
		t.Fatalf("fetch resolved: %v", err)
	} else if got != 1 {
		t.Fatalf("expected resolved=1, got %f", got)
	}

	if got, err := fetchGaugeValue(mfs, "transactions_pending"); err != nil {
		t.Fatalf("fetch pending: %v", err)
	} else if got != 1 {
		t.Fatalf("expected pending=1 after two submits and one resolve, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "chat_updates_total", "result", "ok"); err != nil {
		t.Fatalf("fetch updates: %v", err)
	} else if got != 1 {
		t.Fatalf("expected updates=1, got %f", got)
	}
}

func TestTransactionMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewTransactionMetrics(nil)
	metrics.IncSubmitted()
	metrics.IncResolved("rejected")
	metrics.IncUpdate("")
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

func fetchGaugeValue(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	if len(mf.GetMetric()) == 0 {
		return 0, fmt.Errorf("metric %q has no samples", name)
	}
	return mf.GetMetric()[0].GetGauge().GetValue(), nil
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
