// SPDX-License-Identifier:Apache-2.0

package routesync

import "time"

// Warm-restart entry points, delegated to the helper so the event loop can
// treat the translator as a single collaborator.

func (rs *RouteSync) CheckAndRunRestoration() (bool, error) {
	return rs.warm.CheckAndRunRestoration()
}

func (rs *RouteSync) RestartTimer() time.Duration { return rs.warm.RestartTimer() }

func (rs *RouteSync) HoldTimer() time.Duration { return rs.warm.HoldTimer() }

func (rs *RouteSync) State() WarmRestartState { return rs.warm.State() }

func (rs *RouteSync) SetState(s WarmRestartState) { rs.warm.SetState(s) }

func (rs *RouteSync) IsReconciled() bool { return rs.warm.IsReconciled() }

func (rs *RouteSync) OnReconciliationEnd(table StateWriter) error {
	return rs.warm.OnReconciliationEnd(table)
}
