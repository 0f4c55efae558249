// SPDX-License-Identifier:Apache-2.0

package routesync

import (
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// WarmRestartState tracks the restart-recovery cycle of the route table.
type WarmRestartState int

const (
	// StateDisabled: warm restart is off, routes flow through normally.
	StateDisabled WarmRestartState = iota
	// StateRestoring: the previous route snapshot has been restored and we
	// are waiting for the routing stack to converge.
	StateRestoring
	// StateReconciled: reconciliation ran; terminal for the process
	// lifetime.
	StateReconciled
)

func (s WarmRestartState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateRestoring:
		return "restoring"
	case StateReconciled:
		return "reconciled"
	}
	return "unknown"
}

// ConfigReader reads fields of the warm-restart configuration table.
type ConfigReader interface {
	Hget(key, field string) (string, error)
}

// KeysReader lists the keys of the persisted route table snapshot.
type KeysReader interface {
	Keys() ([]string, error)
}

const warmRestartApp = "bgp"

// WarmRestartHelper owns warm-restart state and the restored-route
// bookkeeping. It lives as long as the process: upstream reconnects rebuild
// timers and event sources, never this.
type WarmRestartHelper struct {
	logger     log.Logger
	cfg        ConfigReader
	stateTable StateWriter
	snapshot   KeysReader

	state          WarmRestartState
	restorationRan bool
	restored       map[string]struct{}
	seen           map[string]struct{}
}

func NewWarmRestartHelper(logger log.Logger, cfg ConfigReader, stateTable StateWriter, snapshot KeysReader) *WarmRestartHelper {
	return &WarmRestartHelper{
		logger:     logger,
		cfg:        cfg,
		stateTable: stateTable,
		snapshot:   snapshot,
		restored:   map[string]struct{}{},
		seen:       map[string]struct{}{},
	}
}

// CheckAndRunRestoration reports whether a restart-recovery cycle should
// run, executing the restoration step the first time it is needed.
// Restoration never runs twice, and a helper that already reconciled never
// starts another cycle.
func (h *WarmRestartHelper) CheckAndRunRestoration() (bool, error) {
	if h.state == StateReconciled {
		return false, nil
	}
	enabled, err := h.cfg.Hget(warmRestartApp, "enable")
	if err != nil {
		return false, err
	}
	if enabled != "true" {
		return false, nil
	}
	if !h.restorationRan {
		keys, err := h.snapshot.Keys()
		if err != nil {
			return false, errors.Wrap(err, "reading route snapshot")
		}
		for _, k := range keys {
			h.restored[k] = struct{}{}
		}
		h.restorationRan = true
		level.Info(h.logger).Log("op", "restoration", "routes", len(keys), "msg", "restored route snapshot")
	}
	return true, nil
}

// RestartTimer returns the configured bound on the whole reconciliation
// cycle, or zero if unset.
func (h *WarmRestartHelper) RestartTimer() time.Duration {
	return h.configuredSeconds("bgp_timer")
}

// HoldTimer returns the configured post-convergence hold interval, or zero
// if unset.
func (h *WarmRestartHelper) HoldTimer() time.Duration {
	return h.configuredSeconds("eoiu_hold_timer")
}

func (h *WarmRestartHelper) configuredSeconds(field string) time.Duration {
	v, err := h.cfg.Hget(warmRestartApp, field)
	if err != nil || v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func (h *WarmRestartHelper) State() WarmRestartState { return h.state }

// SetState moves the helper to the given state. Reconciled is terminal: the
// helper never regresses out of it, including across upstream reconnects.
func (h *WarmRestartHelper) SetState(s WarmRestartState) {
	if h.state == StateReconciled && s != StateReconciled {
		return
	}
	if h.state != s {
		level.Info(h.logger).Log("event", "warmRestartState", "state", s)
	}
	h.state = s
}

func (h *WarmRestartHelper) IsReconciled() bool {
	return h.state == StateReconciled
}

// RecordSeen notes a route key refreshed by the new routing-stack session;
// reconciliation keeps such routes and drops the rest of the snapshot.
func (h *WarmRestartHelper) RecordSeen(key string) {
	if h.state != StateRestoring {
		return
	}
	h.seen[key] = struct{}{}
}

// OnReconciliationEnd removes restored routes the new session never
// re-announced and records completion. Its side effects run at most once per
// restart cycle: a second invocation is a guarded no-op, whichever timer
// triggered it.
func (h *WarmRestartHelper) OnReconciliationEnd(table StateWriter) error {
	if h.state == StateReconciled {
		return nil
	}

	stale := 0
	for k := range h.restored {
		if _, ok := h.seen[k]; ok {
			continue
		}
		if err := table.Del(k); err != nil {
			return errors.Wrapf(err, "dropping stale route %s", k)
		}
		stale++
	}
	if err := h.stateTable.Hset(warmRestartApp, "state", "reconciled"); err != nil {
		return errors.Wrap(err, "recording reconciliation")
	}
	h.SetState(StateReconciled)
	level.Info(h.logger).Log("op", "reconcile", "stale", stale, "kept", len(h.seen), "msg", "warm-restart reconciliation finished")
	return nil
}
