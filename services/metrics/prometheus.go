// Package metricsvc records domain events as Prometheus metrics.
package metricsvc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/xpcamp/core"
)

const namespace = "xpcamp"

type PrometheusMetrics struct {
	grants           prometheus.Counter
	grantedXP        prometheus.Counter
	purchases        prometheus.Counter
	spentXP          prometheus.Histogram
	rejectedPurchase *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
}

var _ core.Metrics = (*PrometheusMetrics)(nil)

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		grants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "xp",
			Name:      "grants_total",
			Help:      "Number of XP grants.",
		}),
		grantedXP: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "xp",
			Name:      "granted_total",
			Help:      "XP granted to students.",
		}),
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "purchases_total",
			Help:      "Number of completed purchases.",
		}),
		spentXP: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "purchase_xp_cost",
			Help:      "XP cost of completed purchases.",
			Buckets:   []float64{0, 10, 25, 50, 100, 250, 500, 1000},
		}),
		rejectedPurchase: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "purchases_rejected_total",
			Help:      "Number of purchases rejected by a business rule, by reason.",
		}, []string{"reason"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_conflicts_total",
			Help:      "Number of guarded writes that lost a race to a concurrent transaction, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(m.grants, m.grantedXP, m.purchases, m.spentXP, m.rejectedPurchase, m.conflicts)
	return m
}

func (m *PrometheusMetrics) ObserveGrant(amount int) {
	m.grants.Inc()
	m.grantedXP.Add(float64(amount))
}

func (m *PrometheusMetrics) ObservePurchase(xpCost int) {
	m.purchases.Inc()
	m.spentXP.Observe(float64(xpCost))
}

func (m *PrometheusMetrics) ObservePurchaseRejected(reason string) {
	m.rejectedPurchase.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) ObserveConflict(operation, outcome string) {
	m.conflicts.WithLabelValues(operation, outcome).Inc()
}
