// SPDX-License-Identifier:Apache-2.0

package routesync

import (
	"github.com/go-kit/log/level"
)

// Response field carrying the result of a route programming request.
const (
	responseCodeField = "err_str"
	responseSuccess   = "SWSS_RC_SUCCESS"
)

// SetSuppressionEnabled toggles fib-suppression mode for routes translated
// from now on; routes already pending keep their state.
func (rs *RouteSync) SetSuppressionEnabled(enabled bool) {
	rs.suppressionEnabled = enabled
	level.Info(rs.logger).Log("event", "suppression", "enabled", enabled)
}

// IsSuppressionEnabled reports whether fib-suppression mode is on.
func (rs *RouteSync) IsSuppressionEnabled() bool {
	return rs.suppressionEnabled
}

// OnRouteResponse consumes one route-programming response from the
// notification channel: a successfully programmed route stops being
// suppressed.
func (rs *RouteSync) OnRouteResponse(key string, fieldValues map[string]string) {
	code := fieldValues[responseCodeField]
	if code != responseSuccess {
		level.Warn(rs.logger).Log("op", "routeResponse", "key", key, "code", code, "msg", "route programming failed")
		return
	}
	if _, ok := rs.pendingOffload[key]; !ok {
		// A response for a route we no longer track; stale but harmless.
		return
	}
	delete(rs.pendingOffload, key)
	stats.offloaded.Inc()
	level.Debug(rs.logger).Log("event", "routeOffloaded", "key", key)
}

// MarkRoutesResolved marks every route still pending an offload confirmation
// as resolved in the given table. Used when suppression is being switched
// off: responses in flight at that moment would otherwise leave routes stuck
// suppressed.
func (rs *RouteSync) MarkRoutesResolved(table StateWriter) error {
	for key := range rs.pendingOffload {
		if err := table.Hset(key, "offloaded", "true"); err != nil {
			return err
		}
	}
	n := len(rs.pendingOffload)
	rs.pendingOffload = map[string]struct{}{}
	level.Info(rs.logger).Log("event", "routesResolved", "count", n, "msg", "marked all pending routes as offloaded")
	return nil
}

// PendingOffload returns how many routes await an offload confirmation.
func (rs *RouteSync) PendingOffload() int {
	return len(rs.pendingOffload)
}
