package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics counts settlement outcomes and rejected webhooks per
// provider.
type PaymentMetrics struct {
	settled   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	refunded  *prometheus.CounterVec
	forwarded *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Payments settled successfully.",
	}, []string{"provider"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Payments settled as failed.",
	}, []string{"provider"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_rejected_total",
		Help: "Webhooks rejected before settlement, by reason.",
	}, []string{"provider", "reason"})
	refunded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_refunded_total",
		Help: "Payments refunded.",
	}, []string{"provider"})
	forwarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supplier_orders_forwarded_total",
		Help: "Supplier orders placed by the forwarding dispatcher.",
	}, []string{"supplier"})
	reg.MustRegister(settled, failed, rejected, refunded, forwarded)
	return &PaymentMetrics{
		settled:   settled,
		failed:    failed,
		rejected:  rejected,
		refunded:  refunded,
		forwarded: forwarded,
	}
}

// IncSettled increments the settled counter for the provider.
func (p *PaymentMetrics) IncSettled(provider string) {
	if p == nil || p.settled == nil {
		return
	}
	p.settled.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFailed increments the failed counter for the provider.
func (p *PaymentMetrics) IncFailed(provider string) {
	if p == nil || p.failed == nil {
		return
	}
	p.failed.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncRejected increments the webhook rejection counter.
func (p *PaymentMetrics) IncRejected(provider, reason string) {
	if p == nil || p.rejected == nil {
		return
	}
	p.rejected.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

// IncRefunded increments the refunded counter for the provider.
func (p *PaymentMetrics) IncRefunded(provider string) {
	if p == nil || p.refunded == nil {
		return
	}
	p.refunded.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncForwarded increments the supplier forwarding counter.
func (p *PaymentMetrics) IncForwarded(supplier string) {
	if p == nil || p.forwarded == nil {
		return
	}
	p.forwarded.WithLabelValues(normalizeLabel(supplier)).Inc()
}
