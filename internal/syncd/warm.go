// SPDX-License-Identifier:Apache-2.0

package syncd

import (
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/openrouting/fpmbridge/internal/routesync"
	"github.com/openrouting/fpmbridge/internal/selector"
)

const (
	// Bound on the whole reconciliation cycle when the routing application
	// has no timer configured.
	defaultRestartInterval = 120 * time.Second
	// Hold after EOIU is observed, before reconciliation runs.
	defaultEoiuHold = 3 * time.Second

	// The EOIU probe first waits out initial churn, then polls.
	eoiuProbeInitialDelay = 5 * time.Second
	eoiuProbeInterval     = time.Second

	eoiuKeyV4      = "IPv4|eoiu"
	eoiuKeyV6      = "IPv6|eoiu"
	eoiuStateField = "state"
	eoiuReached    = "reached"
)

// warmRestart drives one session's reconciliation timers. The durable state
// lives in the translator; these timers are rebuilt on every reconnect.
//
// Three timers cooperate: deadline bounds the whole cycle, probe polls for
// EOIU convergence, hold delays reconciliation briefly once convergence is
// seen. Either deadline or hold firing ends the cycle; the translator
// guarantees the end runs its effects only once.
type warmRestart struct {
	logger     log.Logger
	sync       Translator
	bgpState   StateGetter
	routeTable routesync.StateWriter
	pipeline   Pipeline

	enabled  bool
	deadline *selector.Timer
	probe    *selector.Timer
	hold     *selector.Timer
}

func newWarmRestart(cfg Config) *warmRestart {
	return &warmRestart{
		logger:     cfg.Logger,
		sync:       cfg.Translator,
		bgpState:   cfg.BGPStateTable,
		routeTable: cfg.RouteTable,
		pipeline:   cfg.Pipeline,
		deadline:   selector.NewTimer(),
		probe:      selector.NewTimer(),
		hold:       selector.NewTimer(),
	}
}

func (w *warmRestart) start(sel *selector.Selector) error {
	started, err := w.sync.CheckAndRunRestoration()
	if err != nil {
		return err
	}
	if !started {
		// Reconciled is terminal for the process: a later session must not
		// knock the translator back to disabled.
		if !w.sync.IsReconciled() {
			w.sync.SetState(routesync.StateDisabled)
		}
		return nil
	}
	w.enabled = true

	interval := w.sync.RestartTimer()
	if interval == 0 {
		interval = defaultRestartInterval
	}
	w.deadline.SetInterval(interval)
	w.deadline.Start()
	sel.Add(w.deadline)
	level.Info(w.logger).Log("event", "restartTimerStarted", "interval", interval)

	w.probe.SetInterval(eoiuProbeInitialDelay)
	w.probe.Start()
	sel.Add(w.probe)
	level.Info(w.logger).Log("event", "eoiuProbeStarted")

	w.sync.SetState(routesync.StateRestoring)
	return nil
}

func (w *warmRestart) owns(s selector.Selectable) bool {
	return s == w.deadline || s == w.probe || s == w.hold
}

func (w *warmRestart) handle(sel *selector.Selector, fired selector.Selectable) error {
	switch fired {
	case w.deadline:
		level.Info(w.logger).Log("event", "restartTimerExpired", "msg", "warm-restart deadline reached")
		return w.finish(sel, w.deadline)
	case w.hold:
		level.Info(w.logger).Log("event", "eoiuHoldExpired", "msg", "EOIU hold timer expired")
		return w.finish(sel, w.hold)
	case w.probe:
		return w.checkEoiu(sel)
	}
	return nil
}

// finish ends the reconciliation cycle. Both the deadline and the hold timer
// route here; the translator's idempotence makes the second arrival a no-op,
// but the fired timer is always deregistered and the accumulated writes
// flushed.
func (w *warmRestart) finish(sel *selector.Selector, fired *selector.Timer) error {
	if err := w.sync.OnReconciliationEnd(w.routeTable); err != nil {
		return err
	}
	fired.Stop()
	sel.Remove(fired)
	if err := w.pipeline.Flush(); err != nil {
		return err
	}
	stats.flushes.WithLabelValues("reconciliation").Inc()
	return nil
}

func (w *warmRestart) checkEoiu(sel *selector.Selector) error {
	if w.sync.State() != routesync.StateRestoring {
		// Reconciliation ended some other way; the probe has nothing left
		// to do.
		w.probe.Stop()
		sel.Remove(w.probe)
		return nil
	}

	if w.eoiuReached() {
		hold := w.sync.HoldTimer()
		if hold == 0 {
			hold = defaultEoiuHold
		}
		w.hold.SetInterval(hold)
		w.hold.Start()
		sel.Add(w.hold)
		w.probe.Stop()
		sel.Remove(w.probe)
		level.Info(w.logger).Log("event", "eoiuHoldStarted", "interval", hold)
		return nil
	}

	w.probe.SetInterval(eoiuProbeInterval)
	w.probe.Start()
	level.Debug(w.logger).Log("event", "eoiuProbeRestarted")
	return nil
}

// eoiuReached reports whether both address families have converged. A
// datastore hiccup reads as not-converged; the probe retries anyway.
func (w *warmRestart) eoiuReached() bool {
	for _, key := range []string{eoiuKeyV4, eoiuKeyV6} {
		v, err := w.bgpState.Hget(key, eoiuStateField)
		if err != nil {
			level.Warn(w.logger).Log("op", "eoiuCheck", "key", key, "error", err)
			return false
		}
		if v != eoiuReached {
			level.Debug(w.logger).Log("op", "eoiuCheck", "key", key, "state", v)
			return false
		}
	}
	level.Info(w.logger).Log("event", "eoiuReached", "msg", "EOIU reached for both address families")
	return true
}

// flushAllowed reports whether default pipeline flushing may run: always
// when warm restart is off, otherwise only once reconciliation has ended.
func (w *warmRestart) flushAllowed() bool {
	return !w.enabled || w.sync.IsReconciled()
}

func (w *warmRestart) stopTimers() {
	w.deadline.Stop()
	w.probe.Stop()
	w.hold.Stop()
}
