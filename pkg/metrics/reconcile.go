package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcileMetrics counts the outcomes of payment reconciliation.
type ReconcileMetrics struct {
	applied  *prometheus.CounterVec
	rejected *prometheus.CounterVec
	closed   prometheus.Counter
}

// NewReconcileMetrics registers the reconciliation counters on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_applied_total",
		Help: "Payments recorded against a billing cycle.",
	}, []string{"source"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_rejected_total",
		Help: "Payment confirmations that were not applied.",
	}, []string{"reason"})
	closed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cycles_closed_total",
		Help: "Billing cycles closed because every member paid.",
	})
	reg.MustRegister(applied, rejected, closed)
	return &ReconcileMetrics{
		applied:  applied,
		rejected: rejected,
		closed:   closed,
	}
}

// IncApplied records an applied payment from the given source.
func (r *ReconcileMetrics) IncApplied(source string) {
	if r == nil || r.applied == nil {
		return
	}
	r.applied.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncRejected records a confirmation that was ignored.
func (r *ReconcileMetrics) IncRejected(reason string) {
	if r == nil || r.rejected == nil {
		return
	}
	r.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncClosed records a cycle closed by reconciliation.
func (r *ReconcileMetrics) IncClosed() {
	if r == nil || r.closed == nil {
		return
	}
	r.closed.Inc()
}
