package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/doctor-go/doctor/breaker"
)

// PrometheusCollector records the same events as OTelCollector against a
// caller-supplied registry, never the package-global DefaultRegisterer,
// so a process embedding multiple Doctor instances can scope each one's
// metrics independently.
type PrometheusCollector struct {
	tested     *prometheus.CounterVec
	admitted   *prometheus.CounterVec
	denied     *prometheus.CounterVec
	lockEvents *prometheus.CounterVec
	status     *prometheus.GaugeVec
}

// NewPrometheusCollector registers its instruments on reg and returns the
// collector.
func NewPrometheusCollector(reg *prometheus.Registry) *PrometheusCollector {
	c := &PrometheusCollector{
		tested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doctor_tested_total",
			Help: "Number of admission tests performed, by endpoint.",
		}, []string{"endpoint"}),
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doctor_admitted_total",
			Help: "Number of admission tests that allowed the call.",
		}, []string{"endpoint"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doctor_denied_total",
			Help: "Number of admission tests that denied the call.",
		}, []string{"endpoint"}),
		lockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doctor_lock_transitions_total",
			Help: "Number of lock/unlock state transitions, by endpoint and direction.",
		}, []string{"endpoint", "direction"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "doctor_endpoint_status",
			Help: "Current lock status per endpoint (0=unlocked, 1=locked, 2=recover).",
		}, []string{"endpoint"}),
	}
	reg.MustRegister(c.tested, c.admitted, c.denied, c.lockEvents, c.status)
	return c
}

// Attach registers this collector on every relevant Doctor observer hook.
func (c *PrometheusCollector) Attach(register interface {
	OnLock(func(breaker.TestContext))
	OnUnlock(func(breaker.TestContext))
	OnTested(func(breaker.TestContext))
	OnTestedOK(func(breaker.TestContext))
	OnTestedBad(func(breaker.TestContext))
}) {
	register.OnTested(c.onTested)
	register.OnTestedOK(c.onTestedOK)
	register.OnTestedBad(c.onTestedBad)
	register.OnLock(func(tc breaker.TestContext) { c.onLockChange(tc, "lock") })
	register.OnUnlock(func(tc breaker.TestContext) { c.onLockChange(tc, "unlock") })
}

func (c *PrometheusCollector) onTested(tc breaker.TestContext) {
	c.tested.WithLabelValues(tc.Key()).Inc()
	c.status.WithLabelValues(tc.Key()).Set(float64(tc.Status))
}

func (c *PrometheusCollector) onTestedOK(tc breaker.TestContext) {
	c.admitted.WithLabelValues(tc.Key()).Inc()
}

func (c *PrometheusCollector) onTestedBad(tc breaker.TestContext) {
	c.denied.WithLabelValues(tc.Key()).Inc()
}

func (c *PrometheusCollector) onLockChange(tc breaker.TestContext, direction string) {
	c.lockEvents.WithLabelValues(tc.Key(), direction).Inc()
}
