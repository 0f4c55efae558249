// SPDX-License-Identifier:Apache-2.0

package syncd

import (
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/openrouting/fpmbridge/internal/selector"
)

type fakePipeline struct {
	size       int
	idle       time.Duration
	flushSizes []int
	flushErr   error
}

func (p *fakePipeline) Size() int               { return p.size }
func (p *fakePipeline) IdleTime() time.Duration { return p.idle }

func (p *fakePipeline) Flush() error {
	if p.flushErr != nil {
		return p.flushErr
	}
	p.flushSizes = append(p.flushSizes, p.size)
	p.size = 0
	return nil
}

func TestRecompute(t *testing.T) {
	tests := []struct {
		desc        string
		size        int
		idle        time.Duration
		wantTimeout time.Duration
		wantFlush   bool
	}{
		{
			desc:        "empty pipeline waits forever",
			size:        0,
			wantTimeout: selector.Forever,
		},
		{
			desc:        "busy pipeline defers by the remaining slack",
			size:        600,
			idle:        100 * time.Millisecond,
			wantTimeout: 400 * time.Millisecond,
		},
		{
			desc:        "small batch flushes immediately",
			size:        10,
			idle:        50 * time.Millisecond,
			wantTimeout: selector.Forever,
			wantFlush:   true,
		},
		{
			desc:        "stale batch flushes",
			size:        600,
			idle:        600 * time.Millisecond,
			wantTimeout: selector.Forever,
			wantFlush:   true,
		},
		{
			desc:        "clock anomaly flushes",
			size:        600,
			idle:        -time.Second,
			wantTimeout: selector.Forever,
			wantFlush:   true,
		},
	}

	for _, test := range tests {
		pipe := &fakePipeline{size: test.size, idle: test.idle}
		c := NewFlushController(log.NewNopLogger(), pipe)

		got, err := c.Recompute()
		if err != nil {
			t.Fatalf("%q: Recompute: %v", test.desc, err)
		}
		if got != test.wantTimeout {
			t.Errorf("%q: got timeout %v, want %v", test.desc, got, test.wantTimeout)
		}
		if flushed := len(pipe.flushSizes) > 0; flushed != test.wantFlush {
			t.Errorf("%q: flushed=%v, want %v", test.desc, flushed, test.wantFlush)
		}
	}
}

func TestRecomputeFlushError(t *testing.T) {
	boom := errors.New("boom")
	pipe := &fakePipeline{size: 1, idle: time.Millisecond, flushErr: boom}
	c := NewFlushController(log.NewNopLogger(), pipe)

	if _, err := c.Recompute(); !errors.Is(err, boom) {
		t.Fatalf("got error %v, want %v", err, boom)
	}
}
