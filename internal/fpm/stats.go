// SPDX-License-Identifier:Apache-2.0

package fpm

import (
	"github.com/prometheus/client_golang/prometheus"
)

var stats = metrics{
	connections: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fpmbridge",
		Subsystem: "fpm",
		Name:      "connections_total",
		Help:      "Number of FPM client connections accepted.",
	}),

	frames: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fpmbridge",
		Subsystem: "fpm",
		Name:      "frames_total",
		Help:      "Number of FPM frames received.",
	}),

	messages: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fpmbridge",
		Subsystem: "fpm",
		Name:      "netlink_messages_total",
		Help:      "Number of netlink messages carried by received FPM frames.",
	}),
}

type metrics struct {
	connections prometheus.Counter
	frames      prometheus.Counter
	messages    prometheus.Counter
}

func init() {
	prometheus.MustRegister(stats.connections)
	prometheus.MustRegister(stats.frames)
	prometheus.MustRegister(stats.messages)
}
