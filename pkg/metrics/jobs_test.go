package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewJobMetrics(nil)
	m.ObserveDuration("intake", time.Second)
	m.IncSuccess("intake")
	m.IncFailure("intake")
}

func TestJobMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.IncSuccess("pending-sweep")
	m.ObserveDuration("pending-sweep", 50*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestDispatchMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	m.IncSent("registration_confirm")
	m.IncRetried("bib_number")
	m.IncFailed("")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 3 {
		t.Fatalf("expected 3 metric families, got %d", len(families))
	}
}
