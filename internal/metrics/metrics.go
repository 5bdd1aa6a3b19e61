// Package metrics exposes settlement and transfer counters to Prometheus.
// Every method is safe on a nil *Metrics so callers can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "topup_ledger"

// Settlement sources.
const (
	SourceWebhook = "webhook"
	SourceVerify  = "verify"
)

type Metrics struct {
	settlementsTotal  *prometheus.CounterVec
	creditedMinor     prometheus.Counter
	transfersTotal    *prometheus.CounterVec
	transferredMinor  prometheus.Counter
	webhookEvents     *prometheus.CounterVec
	providerDurations *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		settlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_total",
				Help:      "Settlement attempts partitioned by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		creditedMinor: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_credited_minor_total",
				Help:      "Sum of top-up credits in minor units.",
			},
		),
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_total",
				Help:      "Wallet transfers partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		transferredMinor: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_moved_minor_total",
				Help:      "Sum of completed transfer amounts in minor units.",
			},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Provider webhook deliveries by event type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		providerDurations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency of payment provider calls.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "outcome"},
		),
	}
}

// ObserveSettlement counts one settlement attempt. credited is the amount
// added to the wallet, zero unless outcome is "credited".
func (m *Metrics) ObserveSettlement(source, outcome string, credited int64) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(source, outcome).Inc()
	if credited > 0 {
		m.creditedMinor.Add(float64(credited))
	}
}

func (m *Metrics) ObserveTransfer(outcome string, amount int64) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" && amount > 0 {
		m.transferredMinor.Add(float64(amount))
	}
}

func (m *Metrics) ObserveWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// ObserveProviderRequest satisfies provider.Observer.
func (m *Metrics) ObserveProviderRequest(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerDurations.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}
