package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/doctor-go/doctor/internal/clock"
)

// Store aggregates per-endpoint RollingCounters and tracks the latest
// definitive call outcome per endpoint. Counters are created lazily on
// first write, using the window shape given at construction.
type Store struct {
	mu          sync.Mutex
	counters    map[string]*RollingCounter
	latestState map[string]bool

	windowSize  int
	granularity time.Duration
	now         clock.Clock
}

// endpointKey is the canonical "<service>.<endpoint>" key used for the
// request counter and the latestState map.
func endpointKey(service, endpoint string) string {
	return fmt.Sprintf("%s.%s", service, endpoint)
}

// NewStore creates an empty Store. windowSize and granularity configure
// every RollingCounter it creates on demand; now is the injectable clock
// shared with those counters.
func NewStore(windowSize int, granularity time.Duration, now clock.Clock) *Store {
	if now == nil {
		now = clock.Real{}
	}
	return &Store{
		counters:    make(map[string]*RollingCounter),
		latestState: make(map[string]bool),
		windowSize:  windowSize,
		granularity: granularity,
		now:         now,
	}
}

// Get returns the current value of the counter at key, or def if the
// counter has never been written to.
func (s *Store) Get(key string, def int64) int64 {
	s.mu.Lock()
	c, ok := s.counters[key]
	s.mu.Unlock()
	if !ok {
		return def
	}
	return c.Value()
}

// Incr increments the counter at key by v, creating it with the store's
// configured window shape on first use.
func (s *Store) Incr(key string, v int64) {
	s.mu.Lock()
	c, ok := s.counters[key]
	if !ok {
		c = NewRollingCounter(s.windowSize, s.granularity, s.now)
		s.counters[key] = c
	}
	s.mu.Unlock()
	c.Increment(v)
}

// LatestState reports the most recent definitive outcome recorded for an
// endpoint. Absent is treated as false ("no recent observation"), per the
// specification's recovery-decision rule.
func (s *Store) LatestState(service, endpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestState[endpointKey(service, endpoint)]
}

// RecordCalled increments the endpoint's request counter.
func (s *Store) RecordCalled(service, endpoint string) {
	s.Incr(endpointKey(service, endpoint), 1)
}

// RecordOK marks the endpoint's latest call as healthy.
func (s *Store) RecordOK(service, endpoint string) {
	s.setLatestState(service, endpoint, true)
}

// RecordUserExc marks the endpoint's latest call as healthy: an
// application-expected error is not an infrastructure failure, so it
// does not count against recovery the way a system/unknown error does.
func (s *Store) RecordUserExc(service, endpoint string) {
	s.setLatestState(service, endpoint, true)
}

// RecordTimeout increments the endpoint's timeout counter. It
// deliberately does not touch latestState: a timed-out probe during
// RECOVER leaves the previous definitive outcome in place, affecting
// admission only indirectly through IsHealthy's ratio checks.
func (s *Store) RecordTimeout(service, endpoint string) {
	s.Incr(endpointKey(service, endpoint)+".timeout", 1)
}

// RecordSysExc increments the endpoint's system-error counter and marks
// its latest call as unhealthy.
func (s *Store) RecordSysExc(service, endpoint string) {
	s.Incr(endpointKey(service, endpoint)+".sys_exc", 1)
	s.setLatestState(service, endpoint, false)
}

// RecordUnknownExc increments the endpoint's unknown-error counter and
// marks its latest call as unhealthy.
func (s *Store) RecordUnknownExc(service, endpoint string) {
	s.Incr(endpointKey(service, endpoint)+".unkwn_exc", 1)
	s.setLatestState(service, endpoint, false)
}

func (s *Store) setLatestState(service, endpoint string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestState[endpointKey(service, endpoint)] = ok
}

// RequestKey, TimeoutKey, SysExcKey and UnknownExcKey expose the key
// scheme so the breaker package's IsHealthy can read the same counters
// Store writes to.
func RequestKey(service, endpoint string) string    { return endpointKey(service, endpoint) }
func TimeoutKey(service, endpoint string) string    { return endpointKey(service, endpoint) + ".timeout" }
func SysExcKey(service, endpoint string) string     { return endpointKey(service, endpoint) + ".sys_exc" }
func UnknownExcKey(service, endpoint string) string { return endpointKey(service, endpoint) + ".unkwn_exc" }
