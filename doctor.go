// Package doctor wires the metrics store and the health tester together
// into the single object a service embeds: one Doctor per process,
// guarding every downstream endpoint it's told about.
package doctor

import (
	"errors"

	"github.com/doctor-go/doctor/breaker"
	"github.com/doctor-go/doctor/doctorconfig"
	"github.com/doctor-go/doctor/doctorlog"
	"github.com/doctor-go/doctor/internal/clock"
	"github.com/doctor-go/doctor/metrics"
)

// ErrCircuitOpen is wrapped by transport adapters when Test denies a call,
// so callers can errors.Is it regardless of the transport in front of it.
var ErrCircuitOpen = errors.New("doctor: circuit open")

// Doctor is the process-local admission gate: a metrics store feeding a
// health tester, one pair of (service, endpoint) keyed counters and lock
// records per downstream dependency.
type Doctor struct {
	cfg     doctorconfig.Config
	metrics *metrics.Store
	health  *breaker.HealthTester
	logger  doctorlog.Logger
}

// Option configures a Doctor during New.
type Option func(*doctorOptions)

type doctorOptions struct {
	now    clock.Clock
	rnd    clock.Rand
	logger doctorlog.Logger
}

// WithClock overrides the time source shared by the metrics store and the
// health tester. Intended for tests.
func WithClock(now clock.Clock) Option {
	return func(o *doctorOptions) { o.now = now }
}

// WithRand overrides the randomness source the health tester consults
// during gradual recovery. Intended for tests.
func WithRand(rnd clock.Rand) Option {
	return func(o *doctorOptions) { o.rnd = rnd }
}

// WithDoctorLogger attaches a logger used for observer-panic diagnostics.
func WithDoctorLogger(logger doctorlog.Logger) Option {
	return func(o *doctorOptions) { o.logger = logger }
}

// New builds a Doctor from a validated configuration record.
func New(cfg doctorconfig.Config, opts ...Option) *Doctor {
	o := &doctorOptions{now: clock.Real{}, rnd: clock.SystemRand{}, logger: doctorlog.NoOp{}}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	store := metrics.NewStore(cfg.MetricsRollingSize, cfg.MetricsGranularity, o.now)
	thresholds := breaker.Thresholds{
		MinRecovery:     cfg.HealthMinRecoveryTime,
		MaxRecovery:     cfg.HealthMaxRecoveryTime,
		RequestVolume:   cfg.HealthThresholdRequest,
		TimeoutRatio:    cfg.HealthThresholdTimeout,
		SysExcRatio:     cfg.HealthThresholdSysExc,
		UnknownExcRatio: cfg.HealthThresholdUnknownExc,
	}
	health := breaker.New(store, thresholds, o.now, o.rnd, o.logger)

	return &Doctor{cfg: cfg, metrics: store, health: health, logger: o.logger}
}

// Test decides whether to admit the next call to (service, endpoint).
// Callers denied admission should fail fast without invoking the
// downstream dependency, and typically wrap ErrCircuitOpen in whatever
// error type their transport uses.
func (d *Doctor) Test(service, endpoint string) bool {
	return d.health.Test(service, endpoint)
}

// RecordCalled marks that a call to (service, endpoint) was made, win or
// lose. Callers should record this once per attempt regardless of outcome.
func (d *Doctor) RecordCalled(service, endpoint string) {
	d.metrics.RecordCalled(service, endpoint)
}

// RecordOK marks a call as a success.
func (d *Doctor) RecordOK(service, endpoint string) {
	d.metrics.RecordOK(service, endpoint)
}

// RecordUserExc marks a call as an application-level error: the
// downstream dependency is still considered healthy.
func (d *Doctor) RecordUserExc(service, endpoint string) {
	d.metrics.RecordUserExc(service, endpoint)
}

// RecordTimeout marks a call as timed out.
func (d *Doctor) RecordTimeout(service, endpoint string) {
	d.metrics.RecordTimeout(service, endpoint)
}

// RecordSysExc marks a call as failing with a system/infrastructure error.
func (d *Doctor) RecordSysExc(service, endpoint string) {
	d.metrics.RecordSysExc(service, endpoint)
}

// RecordUnknownExc marks a call as failing with an unclassified error.
func (d *Doctor) RecordUnknownExc(service, endpoint string) {
	d.metrics.RecordUnknownExc(service, endpoint)
}

// IsHealthy exposes the underlying ratio check directly, without going
// through the lock state machine. Useful for dashboards and health
// endpoints that want the raw signal Test itself consults.
func (d *Doctor) IsHealthy(service, endpoint string) bool {
	return d.health.IsHealthy(service, endpoint)
}

// Status reports an endpoint's current lock status, for inspection.
func (d *Doctor) Status(service, endpoint string) (breaker.Status, bool) {
	status, _ := d.health.Status(service, endpoint)
	return status, status != breaker.Unlocked
}

// OnLock registers an observer fired whenever an endpoint locks.
func (d *Doctor) OnLock(fn func(breaker.TestContext)) { d.health.OnLock(fn) }

// OnUnlock registers an observer fired whenever an endpoint unlocks.
func (d *Doctor) OnUnlock(fn func(breaker.TestContext)) { d.health.OnUnlock(fn) }

// OnTested registers an observer fired on every Test call.
func (d *Doctor) OnTested(fn func(breaker.TestContext)) { d.health.OnTested(fn) }

// OnTestedOK registers an observer fired when Test admits.
func (d *Doctor) OnTestedOK(fn func(breaker.TestContext)) { d.health.OnTestedOK(fn) }

// OnTestedBad registers an observer fired when Test denies.
func (d *Doctor) OnTestedBad(fn func(breaker.TestContext)) { d.health.OnTestedBad(fn) }
