package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks billing and settlement outcomes. All methods are
// nil-safe so wiring metrics stays optional in tests and workers.
type EngineMetrics struct {
	billingRuns     *prometheus.CounterVec
	billingItems    *prometheus.CounterVec
	transfers       *prometheus.CounterVec
	billingDuration *prometheus.HistogramVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	billingRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_runs_total",
		Help: "Billing batch runs by model and outcome.",
	}, []string{"model", "outcome"})
	billingItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_items_total",
		Help: "Individual billed subscriptions by model and outcome.",
	}, []string{"model", "outcome"})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transfers_total",
		Help: "Settlement transfer items by outcome.",
	}, []string{"outcome"})
	billingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_run_duration_seconds",
		Help:    "Duration of billing batch runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})
	reg.MustRegister(billingRuns, billingItems, transfers, billingDuration)
	return &EngineMetrics{
		billingRuns:     billingRuns,
		billingItems:    billingItems,
		transfers:       transfers,
		billingDuration: billingDuration,
	}
}

// IncBillingRun counts one billing batch run.
func (m *EngineMetrics) IncBillingRun(model, outcome string) {
	if m == nil || m.billingRuns == nil {
		return
	}
	m.billingRuns.WithLabelValues(model, outcome).Inc()
}

// IncBillingItem counts one billed subscription.
func (m *EngineMetrics) IncBillingItem(model, outcome string) {
	if m == nil || m.billingItems == nil {
		return
	}
	m.billingItems.WithLabelValues(model, outcome).Inc()
}

// IncTransfer counts one settlement item.
func (m *EngineMetrics) IncTransfer(outcome string) {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
}

// ObserveBillingDuration records a billing run's wall time.
func (m *EngineMetrics) ObserveBillingDuration(model string, d time.Duration) {
	if m == nil || m.billingDuration == nil {
		return
	}
	m.billingDuration.WithLabelValues(model).Observe(d.Seconds())
}
