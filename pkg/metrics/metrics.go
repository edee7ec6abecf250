package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the settlement collectors. A nil *Metrics is a no-op so
// services and tests can run without a registry.
type Metrics struct {
	paymentTransitions *prometheus.CounterVec
	rpcCalls           *prometheus.CounterVec
	rpcDuration        *prometheus.HistogramVec
	breakerState       *prometheus.GaugeVec
	ledgerOps          *prometheus.CounterVec
	withdrawals        *prometheus.CounterVec
	pollDuration       prometheus.Histogram
	webhookDeliveries  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		paymentTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement",
				Name:      "payment_transitions_total",
				Help:      "Payment status transitions",
			},
			[]string{"from", "to"},
		),
		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement",
				Name:      "rpc_calls_total",
				Help:      "Chain RPC calls by outcome",
			},
			[]string{"network", "op", "outcome"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "settlement",
				Name:      "rpc_call_duration_seconds",
				Help:      "Chain RPC call latency",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"network", "op"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "settlement",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per endpoint (0 closed, 1 half-open, 2 open)",
			},
			[]string{"endpoint"},
		),
		ledgerOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement",
				Name:      "ledger_operations_total",
				Help:      "Balance ledger operations by kind and result",
			},
			[]string{"kind", "result"},
		),
		withdrawals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement",
				Name:      "withdrawals_total",
				Help:      "Withdrawal status changes",
			},
			[]string{"status"},
		),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "settlement",
				Name:      "monitor_poll_duration_seconds",
				Help:      "Duration of one confirmation monitor sweep",
				Buckets:   prometheus.DefBuckets,
			},
		),
		webhookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement",
				Name:      "webhook_deliveries_total",
				Help:      "Merchant webhook deliveries by result",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.paymentTransitions,
			m.rpcCalls,
			m.rpcDuration,
			m.breakerState,
			m.ledgerOps,
			m.withdrawals,
			m.pollDuration,
			m.webhookDeliveries,
		)
	}
	return m
}

func (m *Metrics) PaymentTransition(from, to string) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(from, to).Inc()
}

// RPCCall records one chain call. err==nil counts as "ok".
func (m *Metrics) RPCCall(network, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.rpcCalls.WithLabelValues(network, op, outcome).Inc()
	m.rpcDuration.WithLabelValues(network, op).Observe(time.Since(started).Seconds())
}

// RPCRejected counts calls short-circuited by an open breaker or the rate limiter.
func (m *Metrics) RPCRejected(network, op, reason string) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(network, op, reason).Inc()
}

// BreakerState maps closed/half-open/open to 0/1/2.
func (m *Metrics) BreakerState(endpoint, state string) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(endpoint).Set(v)
}

func (m *Metrics) LedgerOp(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.ledgerOps.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Withdrawal(status string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(status).Inc()
}

// ObservePoll returns a func that records the sweep duration when called.
func (m *Metrics) ObservePoll() func() {
	if m == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.pollDuration)
	return func() { timer.ObserveDuration() }
}

func (m *Metrics) WebhookDelivery(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.webhookDeliveries.WithLabelValues(result).Inc()
}
