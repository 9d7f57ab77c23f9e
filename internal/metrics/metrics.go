// Package metrics defines the prometheus collectors for the payment and
// dispatch paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the module's collectors. Pass a dedicated registry in
// tests to assert on counter values with testutil.
type Metrics struct {
	OrdersCreated   *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	CallbackResults *prometheus.CounterVec
	Dispatches      *prometheus.CounterVec
	SettleDuration  *prometheus.HistogramVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_orders_created_total",
			Help: "Orders created, by payment method.",
		}, []string{"method"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_order_transitions_total",
			Help: "Order status transitions, by prior and next status.",
		}, []string{"from", "to"}),
		CallbackResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Gateway callbacks handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_dispatches_total",
			Help: "Dispatched plugin messages, by method and outcome.",
		}, []string{"method", "outcome"}),
		SettleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_settle_duration_seconds",
			Help:    "Gateway settle call duration, by payment method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.OrdersCreated, m.Transitions, m.CallbackResults, m.Dispatches, m.SettleDuration)
	return m
}
