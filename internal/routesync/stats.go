// SPDX-License-Identifier:Apache-2.0

package routesync

import (
	"github.com/prometheus/client_golang/prometheus"
)

var stats = metrics{
	routes: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fpmbridge",
		Subsystem: "routesync",
		Name:      "route_updates_total",
		Help:      "Route updates translated into datastore writes.",
	}, []string{"op"}),

	offloaded: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fpmbridge",
		Subsystem: "routesync",
		Name:      "routes_offloaded_total",
		Help:      "Route programming confirmations received on the response channel.",
	}),
}

type metrics struct {
	routes    *prometheus.CounterVec
	offloaded prometheus.Counter
}

func init() {
	prometheus.MustRegister(stats.routes)
	prometheus.MustRegister(stats.offloaded)
}
