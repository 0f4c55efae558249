// SPDX-License-Identifier:Apache-2.0

// Package syncd runs the bridge's event loop: a single goroutine multiplexes
// the FPM link, the kernel notifier, the config watcher, the optional route
// response channel and the warm-restart timers, and decides when the
// buffered route writes are flushed to the datastore.
package syncd

import (
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"syscall"

	"github.com/openrouting/fpmbridge/internal/fpm"
	"github.com/openrouting/fpmbridge/internal/routesync"
	"github.com/openrouting/fpmbridge/internal/selector"
	"github.com/openrouting/fpmbridge/internal/swss"
)

// Pipeline is the buffered write path into the datastore; the loop controls
// its flush timing.
type Pipeline interface {
	Size() int
	IdleTime() time.Duration
	Flush() error
}

// Translator is the route translator collaborator. The loop never touches
// route contents itself; it only drives the translator's lifecycle hooks.
type Translator interface {
	CheckAndRunRestoration() (bool, error)
	RestartTimer() time.Duration
	HoldTimer() time.Duration
	State() routesync.WarmRestartState
	SetState(routesync.WarmRestartState)
	IsReconciled() bool
	OnReconciliationEnd(routesync.StateWriter) error
	OnRouteResponse(key string, fieldValues map[string]string)
	SetSuppressionEnabled(bool)
	IsSuppressionEnabled() bool
	MarkRoutesResolved(routesync.StateWriter) error
}

// Link is one established upstream connection. Recv returns
// fpm.ErrConnectionClosed once the peer is gone and the buffer is drained.
type Link interface {
	selector.Selectable
	Recv() ([]syscall.NetlinkMessage, error)
	Close() error
}

// Dispatcher fans netlink messages out to their handlers.
type Dispatcher interface {
	Dispatch(msg syscall.NetlinkMessage)
}

// ConfigWatcher yields ordered change batches from the device metadata
// table.
type ConfigWatcher interface {
	selector.Selectable
	Pops() []swss.KeyOpFieldsValues
}

// ResponseChannel yields ordered route-programming responses.
type ResponseChannel interface {
	selector.Selectable
	Pops() []swss.Notification
	Close() error
}

// KernelSource feeds kernel-originated events to its handler when Process
// is called.
type KernelSource interface {
	selector.Selectable
	Process() error
}

// StateGetter reads fields from a datastore table.
type StateGetter interface {
	Hget(key, field string) (string, error)
}

// Config wires the collaborators of a Daemon.
type Config struct {
	Logger log.Logger

	// Accept blocks until the routing stack connects.
	Accept     func() (Link, error)
	Dispatcher Dispatcher
	Translator Translator
	Pipeline   Pipeline

	// Kernel is optional; without it only FPM-originated link updates feed
	// the translator.
	Kernel        KernelSource
	ConfigWatcher ConfigWatcher

	// NewResponseChannel creates the route response source when
	// suppression is switched on.
	NewResponseChannel func() (ResponseChannel, error)

	// BGPStateTable exposes the per-address-family EOIU convergence flags.
	BGPStateTable StateGetter
	// RouteTable is the direct (unbuffered) view of the route table, used
	// by reconciliation and by suppression teardown.
	RouteTable routesync.StateWriter
}

// Daemon is the connection lifecycle manager: it owns the outer reconnect
// loop and rebuilds the event set and timers for every upstream session,
// while the translator's long-lived state carries across.
type Daemon struct {
	cfg         Config
	flush       *FlushController
	suppression *suppressionController
}

func New(cfg Config) *Daemon {
	return &Daemon{
		cfg:   cfg,
		flush: NewFlushController(cfg.Logger, cfg.Pipeline),
		suppression: &suppressionController{
			logger:     cfg.Logger,
			sync:       cfg.Translator,
			routeTable: cfg.RouteTable,
			newChannel: cfg.NewResponseChannel,
		},
	}
}

// Run accepts upstream connections forever. A lost connection is the normal
// case and restarts the session; any other error is fatal and returned.
func (d *Daemon) Run() error {
	for {
		err := d.runSession()
		if errors.Is(err, fpm.ErrConnectionClosed) {
			level.Info(d.cfg.Logger).Log("event", "disconnected", "msg", "fpm connection lost, reconnecting")
			stats.reconnects.Inc()
			continue
		}
		return err
	}
}

func (d *Daemon) runSession() error {
	cfg := d.cfg

	// Writes buffered by a previous, now-abandoned session must reach the
	// datastore before any new event can produce more.
	if err := cfg.Pipeline.Flush(); err != nil {
		return err
	}

	level.Info(cfg.Logger).Log("event", "waiting", "msg", "waiting for fpm connection")
	link, err := cfg.Accept()
	if err != nil {
		return err
	}
	defer link.Close()

	sel := selector.New()
	warm := newWarmRestart(cfg)
	defer warm.stopTimers()

	sel.Add(link)
	if cfg.Kernel != nil {
		sel.Add(cfg.Kernel)
	}
	sel.Add(cfg.ConfigWatcher)
	if err := d.suppression.attach(sel); err != nil {
		return err
	}
	if err := warm.start(sel); err != nil {
		return err
	}

	timeout := selector.Forever
	for {
		fired, err := sel.Select(timeout)
		timedOut := errors.Is(err, selector.ErrTimeout)
		if err != nil && !timedOut {
			return err
		}

		// handled marks events that must not trigger the default flush
		// path, matching the warm-restart suspension rules.
		handled := false
		switch {
		case timedOut:
			stats.events.WithLabelValues("timeout").Inc()

		case warm.owns(fired):
			stats.events.WithLabelValues("timer").Inc()
			if err := warm.handle(sel, fired); err != nil {
				return err
			}
			handled = true

		case fired == link:
			stats.events.WithLabelValues("fpm").Inc()
			msgs, err := link.Recv()
			for i := range msgs {
				cfg.Dispatcher.Dispatch(msgs[i])
			}
			if err != nil {
				return err
			}

		case cfg.Kernel != nil && fired == cfg.Kernel:
			stats.events.WithLabelValues("kernel").Inc()
			if err := cfg.Kernel.Process(); err != nil {
				return err
			}

		case fired == cfg.ConfigWatcher:
			stats.events.WithLabelValues("config").Inc()
			if err := d.suppression.handleConfig(sel, cfg.ConfigWatcher.Pops()); err != nil {
				return err
			}
			handled = true

		case d.suppression.owns(fired):
			stats.events.WithLabelValues("response").Inc()
			d.suppression.handleResponses()
			handled = true

		default:
			// Unclaimed sources cannot make progress; drop them rather
			// than spin.
			level.Error(cfg.Logger).Log("op", "dispatch", "msg", "event from unknown source, removing it")
			sel.Remove(fired)
			handled = true
		}

		if handled || !warm.flushAllowed() {
			continue
		}
		next, err := d.flush.Recompute()
		if err != nil {
			return err
		}
		timeout = next
	}
}
