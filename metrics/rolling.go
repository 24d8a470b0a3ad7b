// Package metrics implements the in-process counter substrate the
// breaker package reads to judge endpoint health: a sliding-window
// rolling counter with no background timer, and a store keyed by
// "<service>.<endpoint>" that tracks both counts and the latest
// definitive outcome per endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/doctor-go/doctor/internal/clock"
)

// RollingCounter is a fixed-length sliding window over wall-clock time,
// like a FIFO queue of per-slot counts:
//
//	1 2 0 3 [4 5 1 2 4 2] 3 4 ...   (time passing ->)
//	        +---- window ----+
//
// Its value is the sum of the slots currently in the window. There is no
// goroutine advancing the window on a timer: every Increment/Value call
// first aligns the window to "now" by shifting out however many whole
// granularities have elapsed since the last alignment.
type RollingCounter struct {
	mu          sync.Mutex
	windowSize  int
	granularity time.Duration
	slots       []int64
	clock       time.Time
	now         clock.Clock
}

// NewRollingCounter creates a counter with windowSize slots of the given
// granularity, all zeroed, aligned to now.
func NewRollingCounter(windowSize int, granularity time.Duration, now clock.Clock) *RollingCounter {
	if windowSize <= 0 {
		windowSize = 1
	}
	if now == nil {
		now = clock.Real{}
	}
	return &RollingCounter{
		windowSize:  windowSize,
		granularity: granularity,
		slots:       make([]int64, windowSize),
		clock:       now.Now(),
		now:         now,
	}
}

// Increment aligns the window, then adds v to the current (rightmost)
// slot.
func (r *RollingCounter) Increment(v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alignLocked()
	r.slots[len(r.slots)-1] += v
}

// Value aligns the window, then returns the sum of all slots.
func (r *RollingCounter) Value() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alignLocked()
	return r.sumLocked()
}

// Clear zeroes every slot. It deliberately does not touch the alignment
// clock: the next Increment/Value still computes its shift from the
// previous alignment time, not from the moment of Clear.
func (r *RollingCounter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		r.slots[i] = 0
	}
}

func (r *RollingCounter) sumLocked() int64 {
	var total int64
	for _, v := range r.slots {
		total += v
	}
	return total
}

// alignLocked implements the lazy window advance: compute how many whole
// granularities have elapsed since the last alignment and shift that many
// zero slots in from the right, discarding the oldest. A negative or zero
// shift (including non-monotonic clock regressions) is a no-op.
func (r *RollingCounter) alignLocked() {
	now := r.now.Now()
	n := int(now.Sub(r.clock) / r.granularity)
	if n <= 0 {
		return
	}
	r.shiftLocked(n)
	r.clock = now
}

func (r *RollingCounter) shiftLocked(n int) {
	if n <= 0 {
		return
	}
	if n >= r.windowSize {
		for i := range r.slots {
			r.slots[i] = 0
		}
		return
	}
	copy(r.slots, r.slots[n:])
	for i := r.windowSize - n; i < r.windowSize; i++ {
		r.slots[i] = 0
	}
}
