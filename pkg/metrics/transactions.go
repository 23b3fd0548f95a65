package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TransactionMetrics records payment claim lifecycle counts.
type TransactionMetrics struct {
	submitted prometheus.Counter
	resolved  *prometheus.CounterVec
	pending   prometheus.Gauge
	updates   *prometheus.CounterVec
}

// NewTransactionMetrics registers the workflow metrics on the provided registerer.
func NewTransactionMetrics(reg prometheus.Registerer) *TransactionMetrics {
	if reg == nil {
		return &TransactionMetrics{}
	}
	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transactions_submitted_total",
		Help: "Proof-of-payment submissions registered.",
	})
	resolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_resolved_total",
		Help: "Transactions resolved by the admin, by outcome.",
	}, []string{"outcome"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transactions_pending",
		Help: "Transactions currently awaiting review.",
	})
	updates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_updates_total",
		Help: "Inbound chat updates processed, by result.",
	}, []string{"result"})
	reg.MustRegister(submitted, resolved, pending, updates)
	return &TransactionMetrics{
		submitted: submitted,
		resolved:  resolved,
		pending:   pending,
		updates:   updates,
	}
}

// IncSubmitted records a new pending transaction.
func (m *TransactionMetrics) IncSubmitted() {
	if m == nil || m.submitted == nil {
		return
	}
	m.submitted.Inc()
	m.pending.Inc()
}

// IncResolved records a terminal transition for the given outcome label.
func (m *TransactionMetrics) IncResolved(outcome string) {
	if m == nil || m.resolved == nil {
		return
	}
	m.resolved.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.pending.Dec()
}

// IncUpdate records a processed inbound update result ("ok", "failed", "dropped").
func (m *TransactionMetrics) IncUpdate(result string) {
	if m == nil || m.updates == nil {
		return
	}
	m.updates.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
