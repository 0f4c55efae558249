// SPDX-License-Identifier:Apache-2.0

// Package linkmon watches the kernel for interface state changes and feeds
// them into the event loop, alongside the updates arriving over the FPM
// channel. The route translator needs the ifindex/name mapping even for
// interfaces the routing stack never mentions.
package linkmon

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
)

// Monitor is a selector.Selectable kernel event source. The loop calls
// Process to forward all buffered updates to the handler, in arrival order.
type Monitor struct {
	logger  log.Logger
	handler func(netlink.LinkUpdate)
	done    chan struct{}
	events  chan struct{}

	mu      sync.Mutex
	pending *queue.Queue
}

func New(logger log.Logger, handler func(netlink.LinkUpdate)) (*Monitor, error) {
	m := newMonitor(logger, handler)
	updates := make(chan netlink.LinkUpdate, 64)
	if err := netlink.LinkSubscribe(updates, m.done); err != nil {
		return nil, errors.Wrap(err, "subscribing to kernel link updates")
	}
	go m.pump(updates)
	return m, nil
}

func newMonitor(logger log.Logger, handler func(netlink.LinkUpdate)) *Monitor {
	return &Monitor{
		logger:  logger,
		handler: handler,
		done:    make(chan struct{}),
		events:  make(chan struct{}, 1),
		pending: queue.New(),
	}
}

func (m *Monitor) pump(updates <-chan netlink.LinkUpdate) {
	for u := range updates {
		m.enqueue(u)
	}
	level.Debug(m.logger).Log("op", "pump", "msg", "kernel link subscription ended")
}

func (m *Monitor) enqueue(u netlink.LinkUpdate) {
	m.mu.Lock()
	m.pending.Add(u)
	m.mu.Unlock()
	select {
	case m.events <- struct{}{}:
	default:
	}
}

// Process forwards all buffered link updates to the handler.
func (m *Monitor) Process() error {
	m.mu.Lock()
	updates := make([]netlink.LinkUpdate, 0, m.pending.Length())
	for m.pending.Length() > 0 {
		updates = append(updates, m.pending.Remove().(netlink.LinkUpdate))
	}
	m.mu.Unlock()

	for i := range updates {
		m.handler(updates[i])
	}
	return nil
}

func (m *Monitor) Events() <-chan struct{} { return m.events }

func (m *Monitor) Readable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Length() > 0
}

func (m *Monitor) Priority() int { return 0 }

func (m *Monitor) Close() error {
	close(m.done)
	return nil
}
