package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts order transitions and gateway notifications.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	expired     prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentloop_order_transitions_total",
		Help: "Order status transitions by target status.",
	}, []string{"status"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentloop_payment_webhooks_total",
		Help: "Payment gateway notifications by payment status and outcome.",
	}, []string{"payment_status", "outcome"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rentloop_orders_expired_total",
		Help: "Orders moved to expired by the expiry sweep.",
	})
	reg.MustRegister(transitions, webhooks, expired)
	return &OrderMetrics{
		transitions: transitions,
		webhooks:    webhooks,
		expired:     expired,
	}
}

// IncTransition records an order entering status.
func (m *OrderMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncWebhook records the outcome of a gateway notification.
func (m *OrderMetrics) IncWebhook(paymentStatus, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(paymentStatus), normalizeLabel(outcome)).Inc()
}

// AddExpired adds n to the expired orders counter.
func (m *OrderMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}
