// SPDX-License-Identifier:Apache-2.0

package selector

import (
	"sync"
	"time"
)

// Timer is a one-shot Selectable timer. Restarting it after it fires gives
// periodic behavior; callers that want a different period call SetInterval
// before Start. Every firing must be answered with Start or Stop by the
// handler that observes it.
//
// Timers dispatch ahead of data sources (priority 1 vs 0) when both are
// ready in the same wakeup.
type Timer struct {
	events chan struct{}

	mu       sync.Mutex
	interval time.Duration
	gen      int
	armed    bool
	fired    bool
}

func NewTimer() *Timer {
	return &Timer{events: make(chan struct{}, 1)}
}

// SetInterval sets the duration used by the next Start.
func (t *Timer) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
}

// Interval returns the currently configured duration.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Start arms the timer with the configured interval. A timer that was
// already armed is restarted; a pending firing that has not been dispatched
// yet is discarded.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarm()
	t.armed = true
	gen := t.gen
	time.AfterFunc(t.interval, func() { t.fire(gen) })
}

// Stop disarms the timer and discards any undispatched firing, so no stale
// firing can be observed after Stop returns.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarm()
}

// disarm invalidates any in-flight firing and clears pending readiness.
// Callers hold t.mu.
func (t *Timer) disarm() {
	t.gen++
	t.armed = false
	t.fired = false
	select {
	case <-t.events:
	default:
	}
}

func (t *Timer) fire(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		// Stopped or restarted while the firing was in flight.
		return
	}
	t.armed = false
	t.fired = true
	select {
	case t.events <- struct{}{}:
	default:
	}
}

func (t *Timer) Events() <-chan struct{} { return t.events }

func (t *Timer) Readable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *Timer) Priority() int { return 1 }
