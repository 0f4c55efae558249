// SPDX-License-Identifier:Apache-2.0

package syncd

import (
	"github.com/prometheus/client_golang/prometheus"
)

var stats = metrics{
	reconnects: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fpmbridge",
		Subsystem: "syncd",
		Name:      "reconnects_total",
		Help:      "Number of times the FPM connection was lost and re-accepted.",
	}),

	events: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fpmbridge",
		Subsystem: "syncd",
		Name:      "events_total",
		Help:      "Event loop wakeups, partitioned by source.",
	}, []string{"source"}),

	flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fpmbridge",
		Subsystem: "syncd",
		Name:      "pipeline_flushes_total",
		Help:      "Pipeline flushes, partitioned by reason.",
	}, []string{"reason"}),

	suppression: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fpmbridge",
		Subsystem: "syncd",
		Name:      "suppression_enabled",
		Help:      "Whether fib-suppression is currently enabled (1) or not (0).",
	}),

	selectTimeout: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fpmbridge",
		Subsystem: "syncd",
		Name:      "select_timeout_seconds",
		Help:      "Current event loop select timeout; -1 when blocking indefinitely.",
	}),
}

type metrics struct {
	reconnects    prometheus.Counter
	events        *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	suppression   prometheus.Gauge
	selectTimeout prometheus.Gauge
}

func init() {
	prometheus.MustRegister(stats.reconnects)
	prometheus.MustRegister(stats.events)
	prometheus.MustRegister(stats.flushes)
	prometheus.MustRegister(stats.suppression)
	prometheus.MustRegister(stats.selectTimeout)
}
