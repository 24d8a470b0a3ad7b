// Package breaker implements the per-endpoint admission gate: a
// three-state circuit breaker (Unlocked/Locked/Recover) that consults a
// metrics.Store before every call and decides whether to admit or deny
// it, locking endpoints whose error ratios cross configured thresholds
// and gradually re-admitting them once they recover.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doctor-go/doctor/doctorlog"
	"github.com/doctor-go/doctor/internal/clock"
	"github.com/doctor-go/doctor/metrics"
)

// Status is the state of an endpoint's circuit.
type Status int

const (
	// Unlocked admits every call; it is the initial state of every
	// endpoint the first time it is tested.
	Unlocked Status = iota
	// Locked denies every call until the minimum recovery time has
	// elapsed and the endpoint's metrics look healthy again.
	Locked
	// Recover admits calls gradually while watching the outcome of the
	// probe call released when the endpoint left Locked.
	Recover
)

// String renders the status for logs and tests.
func (s Status) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	case Recover:
		return "recover"
	default:
		return "unknown"
	}
}

// Transition describes whether a Test call changed an endpoint's lock
// status, and to what. TransitionNone means the call did not move the
// endpoint into Locked or Unlocked: either its status stayed the same, or
// it went from Locked to Recover (the Recover destination is never
// reported as a transition; only Locked/Unlocked destinations are
// observable).
type Transition int

const (
	// TransitionNone indicates the call did not lock or unlock the
	// endpoint (a Locked->Recover move also reports TransitionNone).
	TransitionNone Transition = iota
	// TransitionLocked indicates the endpoint just became Locked.
	TransitionLocked
	// TransitionUnlocked indicates the endpoint just became Unlocked.
	TransitionUnlocked
)

// TestContext is the immutable record of one Test call, passed to every
// observer.
type TestContext struct {
	Service  string
	Endpoint string

	// ProbeID is set when this call is the single admitted probe of a
	// Locked->Recover transition, so callers can correlate its eventual
	// recorded outcome with the recovery decision it drives.
	ProbeID uuid.UUID

	Admit       bool
	HealthOkNow bool

	Status      Status // status after this call, i.e. post-transition
	LockedAt    time.Time
	LockChanged Transition

	StartAt time.Time
	EndAt   time.Time
}

// Key returns the canonical "service.endpoint" identifier for this test.
func (tc TestContext) Key() string {
	return fmt.Sprintf("%s.%s", tc.Service, tc.Endpoint)
}

// Thresholds bundles the admission-gate tunables from the configuration
// record (doctorconfig.Config's Health* fields), kept decoupled from that
// package so breaker has no import-time dependency on configuration
// loading concerns.
type Thresholds struct {
	MinRecovery     time.Duration
	MaxRecovery     time.Duration
	RequestVolume   int64
	TimeoutRatio    float64
	SysExcRatio     float64
	UnknownExcRatio float64
}

// Observer is called with the outcome of every Test. Implementations
// must not block; a panicking observer is recovered and logged, never
// allowed to corrupt lock state or propagate to the caller.
type Observer func(TestContext)

type endpointLock struct {
	mu       sync.Mutex
	lockedAt time.Time
	status   Status
}

// HealthTester is the admission gate: one endpointLock per (service,
// endpoint) pair, consulted before every call.
type HealthTester struct {
	thresholds Thresholds
	metricsRef *metrics.Store
	now        clock.Clock
	rnd        clock.Rand
	logger     doctorlog.Logger

	locksMu sync.Mutex
	locks   map[string]*endpointLock

	obsMu       sync.Mutex
	onLock      []Observer
	onUnlock    []Observer
	onTested    []Observer
	onTestedOK  []Observer
	onTestedBad []Observer
}

// New creates a HealthTester over the given metrics store. now and rnd
// are the injectable time and randomness sources; pass nil for either to
// use the real clock / math/rand.
func New(store *metrics.Store, thresholds Thresholds, now clock.Clock, rnd clock.Rand, logger doctorlog.Logger) *HealthTester {
	if now == nil {
		now = clock.Real{}
	}
	if rnd == nil {
		rnd = clock.SystemRand{}
	}
	if logger == nil {
		logger = doctorlog.NoOp{}
	}
	return &HealthTester{
		thresholds: thresholds,
		metricsRef: store,
		now:        now,
		rnd:        rnd,
		logger:     logger,
		locks:      make(map[string]*endpointLock),
	}
}

// OnLock registers an observer fired whenever an endpoint transitions
// into Locked.
func (h *HealthTester) OnLock(fn Observer) { h.register(&h.onLock, fn) }

// OnUnlock registers an observer fired whenever an endpoint transitions
// into Unlocked.
func (h *HealthTester) OnUnlock(fn Observer) { h.register(&h.onUnlock, fn) }

// OnTested registers an observer fired on every Test call.
func (h *HealthTester) OnTested(fn Observer) { h.register(&h.onTested, fn) }

// OnTestedOK registers an observer fired when a Test call admits.
func (h *HealthTester) OnTestedOK(fn Observer) { h.register(&h.onTestedOK, fn) }

// OnTestedBad registers an observer fired when a Test call denies.
func (h *HealthTester) OnTestedBad(fn Observer) { h.register(&h.onTestedBad, fn) }

func (h *HealthTester) register(slot *[]Observer, fn Observer) {
	if fn == nil {
		return
	}
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	*slot = append(*slot, fn)
}

func (h *HealthTester) getLock(key string) *endpointLock {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	l, ok := h.locks[key]
	if !ok {
		l = &endpointLock{status: Unlocked}
		h.locks[key] = l
	}
	return l
}

// IsHealthy reports whether an endpoint's recent metrics are within the
// configured error ratios. Endpoints with at most threshold requests in
// the window are always considered healthy — the ratio checks only apply
// once the request count is strictly above the threshold.
func (h *HealthTester) IsHealthy(service, endpoint string) bool {
	requests := h.metricsRef.Get(metrics.RequestKey(service, endpoint), 0)
	if requests <= h.thresholds.RequestVolume {
		return true
	}
	timeouts := h.metricsRef.Get(metrics.TimeoutKey(service, endpoint), 0)
	sysExc := h.metricsRef.Get(metrics.SysExcKey(service, endpoint), 0)
	unknownExc := h.metricsRef.Get(metrics.UnknownExcKey(service, endpoint), 0)

	r := float64(requests)
	return float64(timeouts)/r < h.thresholds.TimeoutRatio &&
		float64(sysExc)/r < h.thresholds.SysExcRatio &&
		float64(unknownExc)/r < h.thresholds.UnknownExcRatio
}

// Status returns an endpoint's current lock status and, if locked or
// recovering, the time it was locked. Intended for inspection/telemetry,
// not for decision-making (use Test for that).
func (h *HealthTester) Status(service, endpoint string) (Status, time.Time) {
	l := h.getLock(fmt.Sprintf("%s.%s", service, endpoint))
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status, l.lockedAt
}

// Test decides whether to admit the next call to (service, endpoint),
// updating that endpoint's lock state as a side effect, and fires the
// registered observers with the outcome. The whole decision — reading
// the current lock, evaluating health, and committing the new lock
// value — happens under a single per-endpoint mutex, so concurrent
// callers never both observe and act on the same stale transition.
func (h *HealthTester) Test(service, endpoint string) bool {
	key := fmt.Sprintf("%s.%s", service, endpoint)
	lock := h.getLock(key)

	startAt := h.now.Now()

	lock.mu.Lock()
	healthOk := h.IsHealthy(service, endpoint)
	status := lock.status
	lockedAt := lock.lockedAt
	now := startAt

	var (
		admit       bool
		lockChanged = TransitionNone
		probeID     uuid.UUID
	)

	switch status {
	case Locked:
		switch {
		case !healthOk:
			admit = false
		case now.Sub(lockedAt) < h.thresholds.MinRecovery:
			admit = false
		default:
			lock.status = Recover
			status = Recover
			admit = true
			probeID = uuid.New()
		}

	case Recover:
		if h.metricsRef.LatestState(service, endpoint) {
			span := now.Sub(lockedAt)
			if span >= h.thresholds.MaxRecovery {
				lock.status = Unlocked
				lock.lockedAt = time.Time{}
				status = Unlocked
				lockedAt = time.Time{}
				lockChanged = TransitionUnlocked
				admit = true
			} else if h.rnd.Float64() < float64(span)/float64(h.thresholds.MaxRecovery) {
				admit = true
			} else {
				admit = false
			}
		} else {
			lock.status = Locked
			lock.lockedAt = now
			status = Locked
			lockedAt = now
			lockChanged = TransitionLocked
			admit = false
		}

	default: // Unlocked
		if !healthOk {
			lock.status = Locked
			lock.lockedAt = now
			status = Locked
			lockedAt = now
			lockChanged = TransitionLocked
			admit = false
		} else {
			admit = true
		}
	}
	lock.mu.Unlock()

	tc := TestContext{
		Service:     service,
		Endpoint:    endpoint,
		ProbeID:     probeID,
		Admit:       admit,
		HealthOkNow: healthOk,
		Status:      status,
		LockedAt:    lockedAt,
		LockChanged: lockChanged,
		StartAt:     startAt,
		EndAt:       h.now.Now(),
	}

	h.fire(tc)
	return admit
}

// fire dispatches observers in a fixed order: state-change (lock/unlock)
// before tested, before tested-ok/tested-bad.
func (h *HealthTester) fire(tc TestContext) {
	h.obsMu.Lock()
	var stateObservers []Observer
	switch tc.LockChanged {
	case TransitionLocked:
		stateObservers = append(stateObservers, h.onLock...)
	case TransitionUnlocked:
		stateObservers = append(stateObservers, h.onUnlock...)
	}
	tested := append([]Observer(nil), h.onTested...)
	var resultObservers []Observer
	if tc.Admit {
		resultObservers = append(resultObservers, h.onTestedOK...)
	} else {
		resultObservers = append(resultObservers, h.onTestedBad...)
	}
	h.obsMu.Unlock()

	h.callAll(stateObservers, tc)
	h.callAll(tested, tc)
	h.callAll(resultObservers, tc)
}

func (h *HealthTester) callAll(observers []Observer, tc TestContext) {
	for _, obs := range observers {
		h.safeCall(obs, tc)
	}
}

func (h *HealthTester) safeCall(obs Observer, tc TestContext) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("health observer panicked", map[string]interface{}{
				"endpoint": tc.Key(),
				"panic":    fmt.Sprintf("%v", r),
			})
		}
	}()
	obs(tc)
}
