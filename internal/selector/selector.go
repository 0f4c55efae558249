// SPDX-License-Identifier:Apache-2.0

// Package selector implements a single-threaded event multiplexer: a set of
// registered event sources, one blocking wait, one source dispatched per
// wakeup. Handlers run on the caller's goroutine, so no locking is needed
// around state they share.
package selector

import (
	"reflect"
	"time"

	"github.com/pkg/errors"
)

// Forever makes Select block until a source becomes ready.
const Forever time.Duration = -1

// ErrTimeout is returned by Select when the timeout elapses before any
// source becomes ready.
var ErrTimeout = errors.New("select timed out")

// A Selectable is an event source that can be registered with a Selector.
//
// The source owns a readiness channel and delivers one token on it each time
// it transitions from idle to readable. Spurious tokens are tolerated: the
// Selector re-checks Readable before dispatching.
type Selectable interface {
	// Events returns the readiness channel.
	Events() <-chan struct{}
	// Readable reports whether the source currently has pending events.
	Readable() bool
	// Priority orders sources that are ready in the same wakeup; higher
	// wins. Ties are broken by registration order.
	Priority() int
}

// Selector multiplexes a dynamic set of Selectables.
//
// When several sources are ready in a single wakeup the dispatch order is
// deterministic: timers (higher priority) before data sources, registration
// order within equal priority. Sources left ready are dispatched by
// subsequent Select calls before blocking again, so no ready source is
// starved.
type Selector struct {
	members []Selectable // sorted by priority desc, registration order within
	ready   []Selectable // woken but not yet dispatched, in dispatch order
}

func New() *Selector {
	return &Selector{}
}

// Add registers a source. Adding a source that is already registered is a
// no-op.
func (s *Selector) Add(sel Selectable) {
	for _, m := range s.members {
		if m == sel {
			return
		}
	}
	// Insert before the first member with a lower priority, keeping
	// registration order within equal priorities.
	at := len(s.members)
	for i, m := range s.members {
		if m.Priority() < sel.Priority() {
			at = i
			break
		}
	}
	s.members = append(s.members, nil)
	copy(s.members[at+1:], s.members[at:])
	s.members[at] = sel
}

// Remove deregisters a source. Removing a source that is not registered is a
// no-op. Any pending readiness for the source is discarded, so a removed
// source is never dispatched again.
func (s *Selector) Remove(sel Selectable) {
	for i, m := range s.members {
		if m == sel {
			s.members = append(s.members[:i], s.members[i+1:]...)
			break
		}
	}
	for i, r := range s.ready {
		if r == sel {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			break
		}
	}
}

// Registered reports whether a source is currently part of the set.
func (s *Selector) Registered(sel Selectable) bool {
	for _, m := range s.members {
		if m == sel {
			return true
		}
	}
	return false
}

// Select blocks until one registered source is ready, or until the timeout
// elapses (timeout < 0 blocks forever). Exactly one source is returned per
// call.
func (s *Selector) Select(timeout time.Duration) (Selectable, error) {
	// Deliver leftovers from an earlier wakeup first.
	if sel := s.takeReady(); sel != nil {
		return sel, nil
	}

	cases := make([]reflect.SelectCase, 0, len(s.members)+1)
	for _, m := range s.members {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(m.Events()),
		})
	}
	timeoutIdx := -1
	if timeout >= 0 {
		timeoutIdx = len(cases)
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(time.After(timeout)),
		})
	}

	for {
		// A closed channel counts as a wakeup too; Readable decides below.
		chosen, _, _ := reflect.Select(cases)
		if chosen == timeoutIdx {
			return nil, ErrTimeout
		}
		woken := s.members[chosen]

		// Sweep the whole member set in dispatch order so simultaneous
		// wakeups are ordered deterministically.
		for _, m := range s.members {
			if m == woken || drain(m.Events()) {
				if m.Readable() && !s.pending(m) {
					s.ready = append(s.ready, m)
				}
			}
		}
		if sel := s.takeReady(); sel != nil {
			return sel, nil
		}
		// The token was stale (e.g. a timer stopped after firing); keep
		// waiting.
	}
}

func (s *Selector) takeReady() Selectable {
	for len(s.ready) > 0 {
		sel := s.ready[0]
		s.ready = s.ready[1:]
		if sel.Readable() {
			return sel
		}
	}
	return nil
}

func (s *Selector) pending(sel Selectable) bool {
	for _, r := range s.ready {
		if r == sel {
			return true
		}
	}
	return false
}

func drain(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
