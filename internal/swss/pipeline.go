// SPDX-License-Identifier:Apache-2.0

package swss

import (
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Pipeline buffers table writes and sends them to the datastore in one
// round trip on Flush. It reports how many writes are buffered and how long
// they have been sitting there; the caller decides when to flush.
//
// Idle time is measured on the monotonic clock from the last flush.
type Pipeline struct {
	db        *DB
	table     string
	pipe      redis.Pipeliner
	size      int
	lastFlush time.Time
}

func NewPipeline(db *DB, table string) *Pipeline {
	return &Pipeline{
		db:        db,
		table:     table,
		pipe:      db.client.Pipeline(),
		lastFlush: time.Now(),
	}
}

// Hset buffers a write of all given fields of one entry.
func (p *Pipeline) Hset(key string, fieldValues map[string]string) {
	p.pipe.HSet(p.db.ctx, p.table+p.db.separator+key, fieldValues)
	p.size++
}

// Del buffers a deletion of one entry.
func (p *Pipeline) Del(key string) {
	p.pipe.Del(p.db.ctx, p.table+p.db.separator+key)
	p.size++
}

// Size returns the number of buffered writes.
func (p *Pipeline) Size() int { return p.size }

// IdleTime returns the time elapsed since the last flush.
func (p *Pipeline) IdleTime() time.Duration {
	return time.Since(p.lastFlush)
}

// Flush sends all buffered writes. Flushing an empty pipeline just resets
// the idle clock.
func (p *Pipeline) Flush() error {
	p.lastFlush = time.Now()
	if p.size == 0 {
		return nil
	}
	n := p.size
	p.size = 0
	if _, err := p.pipe.Exec(p.db.ctx); err != nil {
		return errors.Wrapf(err, "flushing %d writes to %s", n, p.table)
	}
	return nil
}
