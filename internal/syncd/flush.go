// SPDX-License-Identifier:Apache-2.0

package syncd

import (
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/openrouting/fpmbridge/internal/selector"
)

const (
	// flushTimeout bounds how long a buffered write may wait for its flush.
	flushTimeout = 500 * time.Millisecond
	// lowTrafficThreshold: below this many buffered writes the pipeline is
	// flushed immediately; batching only pays off under sustained load.
	lowTrafficThreshold = 500
)

// FlushController decides, once per loop iteration, whether the pipeline is
// flushed now or later, and returns the select timeout that guarantees the
// "later" actually happens.
type FlushController struct {
	logger   log.Logger
	pipeline Pipeline
}

func NewFlushController(logger log.Logger, pipeline Pipeline) *FlushController {
	return &FlushController{logger: logger, pipeline: pipeline}
}

// Recompute flushes or defers. The returned duration is the next select
// timeout: selector.Forever when nothing is pending, otherwise the remaining
// slack of the oldest buffered write. An idle time of zero or less means the
// clock misbehaved and is treated as flush-now.
func (c *FlushController) Recompute() (time.Duration, error) {
	remaining := c.pipeline.Size()
	if remaining == 0 {
		stats.selectTimeout.Set(-1)
		return selector.Forever, nil
	}

	idle := c.pipeline.IdleTime()
	if remaining < lowTrafficThreshold || idle >= flushTimeout || idle <= 0 {
		if err := c.pipeline.Flush(); err != nil {
			return 0, err
		}
		stats.flushes.WithLabelValues("default").Inc()
		level.Debug(c.logger).Log("op", "flush", "writes", remaining, "msg", "pipeline flushed")
		stats.selectTimeout.Set(-1)
		return selector.Forever, nil
	}

	next := flushTimeout - idle
	stats.selectTimeout.Set(next.Seconds())
	return next, nil
}
