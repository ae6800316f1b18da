package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics counts sweep outcomes per notification kind.
type DispatchMetrics struct {
	sent    *prometheus.CounterVec
	retried *prometheus.CounterVec
	failed  *prometheus.CounterVec
}

// NewDispatchMetrics registers the dispatch sweep metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_sent_total",
		Help: "Dispatch items delivered to the sender.",
	}, []string{"kind"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_retried_total",
		Help: "Dispatch items returned to pending after a send failure.",
	}, []string{"kind"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_failed_total",
		Help: "Dispatch items that exhausted their retry budget.",
	}, []string{"kind"})
	reg.MustRegister(sent, retried, failed)
	return &DispatchMetrics{sent: sent, retried: retried, failed: failed}
}

// IncSent increments the delivered counter for the given kind.
func (d *DispatchMetrics) IncSent(kind string) {
	if d == nil || d.sent == nil {
		return
	}
	d.sent.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncRetried increments the retried counter for the given kind.
func (d *DispatchMetrics) IncRetried(kind string) {
	if d == nil || d.retried == nil {
		return
	}
	d.retried.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncFailed increments the terminal failure counter for the given kind.
func (d *DispatchMetrics) IncFailed(kind string) {
	if d == nil || d.failed == nil {
		return
	}
	d.failed.WithLabelValues(normalizeLabel(kind)).Inc()
}
