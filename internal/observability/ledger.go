package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics menghitung pergerakan stok, alert, dan penomoran dokumen.
type LedgerMetrics struct {
	movements          *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	alertsOpened       *prometheus.CounterVec
	alertsResolved     prometheus.Counter
	numberingRetries   *prometheus.CounterVec
	numberingExhausted *prometheus.CounterVec
}

// NewLedgerMetrics registers the collectors on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_stock_movements_total",
			Help: "Committed stock movements by transaction type.",
		}, []string{"type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_stock_rejections_total",
			Help: "Rolled back stock movements by reason.",
		}, []string{"reason"}),
		alertsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_stock_alerts_opened_total",
			Help: "Stock alerts opened by alert type.",
		}, []string{"alert_type"}),
		alertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_stock_alerts_resolved_total",
			Help: "Stock alerts resolved after replenishment.",
		}),
		numberingRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_numbering_retries_total",
			Help: "Document inserts retried after a number collision.",
		}, []string{"doc_type"}),
		numberingExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_numbering_exhausted_total",
			Help: "Document inserts that gave up after the retry bound.",
		}, []string{"doc_type"}),
	}
	reg.MustRegister(m.movements, m.rejections, m.alertsOpened, m.alertsResolved, m.numberingRetries, m.numberingExhausted)
	return m
}

// StockMovement counts a committed movement of the given transaction type.
func (m *LedgerMetrics) StockMovement(txType string) {
	if m != nil {
		m.movements.WithLabelValues(txType).Inc()
	}
}

// StockRejected counts a rolled back movement by rejection reason.
func (m *LedgerMetrics) StockRejected(reason string) {
	if m != nil {
		m.rejections.WithLabelValues(reason).Inc()
	}
}

// AlertOpened counts a newly opened stock alert.
func (m *LedgerMetrics) AlertOpened(alertType string) {
	if m != nil {
		m.alertsOpened.WithLabelValues(alertType).Inc()
	}
}

// AlertResolved adds count resolved alerts; non-positive counts are ignored.
func (m *LedgerMetrics) AlertResolved(count int) {
	if m != nil && count > 0 {
		m.alertsResolved.Add(float64(count))
	}
}

// NumberingRetry counts a document insert retried after a number collision.
func (m *LedgerMetrics) NumberingRetry(docType string) {
	if m != nil {
		m.numberingRetries.WithLabelValues(docType).Inc()
	}
}

// NumberingExhausted counts a document insert that ran out of attempts.
func (m *LedgerMetrics) NumberingExhausted(docType string) {
	if m != nil {
		m.numberingExhausted.WithLabelValues(docType).Inc()
	}
}
