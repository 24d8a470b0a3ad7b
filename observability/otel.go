// Package observability adapts the breaker package's observer callbacks
// to two metrics backends: OpenTelemetry and Prometheus. Neither backend
// polls; both are driven entirely by the observer calls the health tester
// already makes, so instrumenting a Doctor costs nothing beyond the
// handful of counter/gauge increments done inline with each Test call.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/doctor-go/doctor/breaker"
)

// OTelCollector records Doctor observer events as OpenTelemetry
// instruments, keyed by the endpoint's "service.endpoint" identity.
type OTelCollector struct {
	ctx context.Context

	tested     metric.Int64Counter
	admitted   metric.Int64Counter
	denied     metric.Int64Counter
	lockEvents metric.Int64Counter
}

// NewOTelCollector creates instruments on the given meter. Pass
// otel.Meter("doctor") (or a service-specific name) from the caller's
// configured MeterProvider.
func NewOTelCollector(ctx context.Context, meter metric.Meter) (*OTelCollector, error) {
	tested, err := meter.Int64Counter("doctor.tested",
		metric.WithDescription("Number of admission tests performed, by endpoint"))
	if err != nil {
		return nil, err
	}
	admitted, err := meter.Int64Counter("doctor.admitted",
		metric.WithDescription("Number of admission tests that allowed the call"))
	if err != nil {
		return nil, err
	}
	denied, err := meter.Int64Counter("doctor.denied",
		metric.WithDescription("Number of admission tests that denied the call"))
	if err != nil {
		return nil, err
	}
	lockEvents, err := meter.Int64Counter("doctor.lock_transitions",
		metric.WithDescription("Number of lock/unlock state transitions, by endpoint and direction"))
	if err != nil {
		return nil, err
	}

	return &OTelCollector{
		ctx:        ctx,
		tested:     tested,
		admitted:   admitted,
		denied:     denied,
		lockEvents: lockEvents,
	}, nil
}

// Attach registers this collector on every relevant Doctor observer hook.
func (c *OTelCollector) Attach(register interface {
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

func (c *OTelCollector) endpointAttr(tc breaker.TestContext) attribute.KeyValue {
	return attribute.String("endpoint", tc.Key())
}

func (c *OTelCollector) onTested(tc breaker.TestContext) {
	c.tested.Add(c.ctx, 1, metric.WithAttributes(c.endpointAttr(tc)))
}

func (c *OTelCollector) onTestedOK(tc breaker.TestContext) {
	c.admitted.Add(c.ctx, 1, metric.WithAttributes(c.endpointAttr(tc)))
}

func (c *OTelCollector) onTestedBad(tc breaker.TestContext) {
	c.denied.Add(c.ctx, 1, metric.WithAttributes(c.endpointAttr(tc)))
}

func (c *OTelCollector) onLockChange(tc breaker.TestContext, direction string) {
	c.lockEvents.Add(c.ctx, 1, metric.WithAttributes(
		c.endpointAttr(tc),
		attribute.String("direction", direction),
	))
}
