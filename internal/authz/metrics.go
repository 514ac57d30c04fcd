package authz

import (
	"time"

	"github.com/hugh/orgauth/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	StageSession = "session"
	StageContext = "context"
)

// Metrics records authorization outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	decisions *prometheus.CounterVec
	resolve   *prometheus.HistogramVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Permission checks by permission category and outcome.",
		}, []string{"permission_category", "outcome"}),
		resolve: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authz_resolve_duration_seconds",
			Help:    "Latency of session and tenant context resolution.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"stage"}),
	}
	registerer.MustRegister(m.decisions, m.resolve)
	return m
}

// OtherCategory labels decisions on permissions outside the built-in catalog.
const OtherCategory = "other"

// ObserveDecision counts a permission check. The permission name comes from
// callers, so only cataloged categories become label values.
func (m *Metrics) ObserveDecision(permission string, err error) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.decisions.WithLabelValues(decisionCategory(permission), outcome).Inc()
}

func decisionCategory(permission string) string {
	category := store.PermissionCategory(permission)
	if !store.IsCatalogCategory(category) {
		return OtherCategory
	}
	return category
}

func (m *Metrics) ObserveResolve(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.resolve.WithLabelValues(stage).Observe(d.Seconds())
}
