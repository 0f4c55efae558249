// SPDX-License-Identifier:Apache-2.0

package selector

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

// fakeSource is a hand-driven Selectable for tests.
type fakeSource struct {
	events   chan struct{}
	pending  int
	priority int
}

func newFakeSource(priority int) *fakeSource {
	return &fakeSource{events: make(chan struct{}, 1), priority: priority}
}

func (f *fakeSource) push() {
	f.pending++
	select {
	case f.events <- struct{}{}:
	default:
	}
}

func (f *fakeSource) drain() { f.pending = 0 }

func (f *fakeSource) Events() <-chan struct{} { return f.events }
func (f *fakeSource) Readable() bool         { return f.pending > 0 }
func (f *fakeSource) Priority() int          { return f.priority }

func TestSelectDispatchesReadySource(t *testing.T) {
	s := New()
	src := newFakeSource(0)
	s.Add(src)

	src.push()
	got, err := s.Select(Forever)
	if err != nil {
		t.Fatalf("Select: %s", err)
	}
	if got != src {
		t.Fatalf("Select returned wrong source: got %v, want %v", got, src)
	}
}

func TestSelectTimeout(t *testing.T) {
	s := New()
	s.Add(newFakeSource(0))

	start := time.Now()
	_, err := s.Select(20 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Select: got err %v, want ErrTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Select returned before the timeout elapsed")
	}
}

// Timers dispatch before data sources when both are ready in one wakeup,
// and the data source is not starved: it is dispatched by the next call.
func TestSelectTieBreakTimersFirst(t *testing.T) {
	s := New()
	data := newFakeSource(0)
	timer := newFakeSource(1)
	s.Add(data) // registered first, lower priority
	s.Add(timer)

	data.push()
	timer.push()

	got, err := s.Select(Forever)
	if err != nil {
		t.Fatalf("Select: %s", err)
	}
	if got != timer {
		t.Fatal("simultaneous wakeup did not dispatch the timer first")
	}
	timer.drain()

	got, err = s.Select(Forever)
	if err != nil {
		t.Fatalf("Select: %s", err)
	}
	if got != data {
		t.Fatal("data source was starved after timer dispatch")
	}
}

func TestSelectTieBreakRegistrationOrder(t *testing.T) {
	s := New()
	a := newFakeSource(0)
	b := newFakeSource(0)
	s.Add(a)
	s.Add(b)

	b.push()
	a.push()

	got, err := s.Select(Forever)
	if err != nil {
		t.Fatalf("Select: %s", err)
	}
	if got != a {
		t.Fatal("equal-priority tie not broken by registration order")
	}
}

func TestRemovePurgesPendingReadiness(t *testing.T) {
	s := New()
	a := newFakeSource(0)
	b := newFakeSource(0)
	s.Add(a)
	s.Add(b)

	a.push()
	b.push()

	got, err := s.Select(Forever)
	if err != nil {
		t.Fatalf("Select: %s", err)
	}
	if got != a {
		t.Fatalf("Select returned wrong source first: %v", got)
	}
	a.drain()

	// b is ready and already woken; removing it must prevent dispatch.
	s.Remove(b)
	_, err = s.Select(10 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("removed source was dispatched: err %v", err)
	}
}

func TestRemoveUnregisteredIsNoop(t *testing.T) {
	s := New()
	a := newFakeSource(0)
	s.Add(a)
	s.Remove(newFakeSource(0)) // never registered

	a.push()
	got, err := s.Select(Forever)
	if err != nil || got != a {
		t.Fatalf("Select after no-op Remove: got %v, err %v", got, err)
	}
}

func TestAddTwiceRegistersOnce(t *testing.T) {
	s := New()
	a := newFakeSource(0)
	s.Add(a)
	s.Add(a)
	if len(s.members) != 1 {
		t.Fatalf("double Add registered %d members, want 1", len(s.members))
	}
}

func TestTimerFires(t *testing.T) {
	s := New()
	tm := NewTimer()
	tm.SetInterval(10 * time.Millisecond)
	tm.Start()
	s.Add(tm)

	got, err := s.Select(time.Second)
	if err != nil {
		t.Fatalf("Select: %s", err)
	}
	if got != tm {
		t.Fatalf("Select returned %v, want the timer", got)
	}
}

func TestStoppedTimerNeverDispatches(t *testing.T) {
	s := New()
	tm := NewTimer()
	tm.SetInterval(5 * time.Millisecond)
	tm.Start()
	s.Add(tm)

	// Let it fire, then stop before dispatch: the firing must be discarded.
	time.Sleep(20 * time.Millisecond)
	tm.Stop()

	_, err := s.Select(20 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("stale timer firing was dispatched: err %v", err)
	}
}

func TestTimerRestartDiscardsPendingFiring(t *testing.T) {
	tm := NewTimer()
	tm.SetInterval(time.Millisecond)
	tm.Start()
	time.Sleep(10 * time.Millisecond)
	if !tm.Readable() {
		t.Fatal("timer did not fire")
	}

	tm.SetInterval(time.Hour)
	tm.Start()
	if tm.Readable() {
		t.Fatal("restart kept a stale firing pending")
	}
}
