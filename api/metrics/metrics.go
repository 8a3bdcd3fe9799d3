package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fanvault"

// Metrics exposes Prometheus collectors for payment reconciliation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	webhookEvents      *prometheus.CounterVec
	ledgerMutations    *prometheus.CounterVec
	accessDecisions    *prometheus.CounterVec
	checkoutSessions   *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	rpcDuration        *prometheus.HistogramVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the instance registered with the global Prometheus registry.
// Collectors are created once so repeated bootstraps in one process do not panic.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics using the provided registerer. Tests pass a
// fresh prometheus.NewRegistry(). Registration errors other than an identical
// collector already being present panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripe",
			Name:      "webhook_events_total",
			Help:      "Provider events received, by event kind and outcome.",
		}, []string{"kind", "outcome"}),
		ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripe",
			Name:      "ledger_mutations_total",
			Help:      "Conditional ledger writes, by entity and whether they took effect.",
		}, []string{"entity", "result"}),
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripe",
			Name:      "access_decisions_total",
			Help:      "Access resolutions, by reason.",
		}, []string{"reason"}),
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripe",
			Name:      "checkout_sessions_total",
			Help:      "Checkout sessions created, by intent and fund routing.",
		}, []string{"intent", "routing"}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripe",
			Name:      "side_effect_failures_total",
			Help:      "Best-effort provider calls that failed and were skipped.",
		}, []string{"effect"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Duration of API calls, by method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}

	m.webhookEvents = registerCounterVec(reg, m.webhookEvents)
	m.ledgerMutations = registerCounterVec(reg, m.ledgerMutations)
	m.accessDecisions = registerCounterVec(reg, m.accessDecisions)
	m.checkoutSessions = registerCounterVec(reg, m.checkoutSessions)
	m.sideEffectFailures = registerCounterVec(reg, m.sideEffectFailures)
	if err := reg.Register(m.rpcDuration); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		m.rpcDuration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	return m
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}

// IncWebhookEvent counts a received provider event.
func (m *Metrics) IncWebhookEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

// IncLedgerMutation counts a conditional write; applied is false when the guard rejected it.
func (m *Metrics) IncLedgerMutation(entity string, applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "skipped"
	}
	m.ledgerMutations.WithLabelValues(entity, result).Inc()
}

func (m *Metrics) IncAccessDecision(reason string) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(reason).Inc()
}

// IncCheckoutSession counts a created session; routing is "connect" or "platform".
func (m *Metrics) IncCheckoutSession(intent, routing string) {
	if m == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(intent, routing).Inc()
}

func (m *Metrics) IncSideEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(effect).Inc()
}

// ObserveRPC records the duration of one API call.
func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcDuration.WithLabelValues(method, code).Observe(d.Seconds())
}
