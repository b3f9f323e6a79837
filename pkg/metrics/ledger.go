package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts wallet postings and the reasons postings were refused.
type LedgerMetrics struct {
	postings  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	conflicts prometheus.Counter
	drift     prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_postings_total",
		Help: "Wallet transactions appended to the ledger.",
	}, []string{"type"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_rejected_total",
		Help: "Postings refused before reaching the ledger.",
	}, []string{"reason"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ledger_version_conflicts_total",
		Help: "Optimistic version checks that lost a race.",
	})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ledger_reconcile_drift_total",
		Help: "Wallets whose cached balances disagree with a ledger replay.",
	})
	reg.MustRegister(postings, rejected, conflicts, drift)
	return &LedgerMetrics{
		postings:  postings,
		rejected:  rejected,
		conflicts: conflicts,
		drift:     drift,
	}
}

func (m *LedgerMetrics) IncPosting(txType string) {
	if m == nil || m.postings == nil {
		return
	}
	m.postings.WithLabelValues(normalizeLabel(txType)).Inc()
}

func (m *LedgerMetrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *LedgerMetrics) IncDrift() {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Inc()
}
