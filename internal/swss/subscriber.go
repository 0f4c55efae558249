// SPDX-License-Identifier:Apache-2.0

package swss

import (
	"strings"
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Operations reported by SubscriberTable.
const (
	SetOp = "SET"
	DelOp = "DEL"
)

// KeyOpFieldsValues is one ordered change record from a watched table.
type KeyOpFieldsValues struct {
	Key         string
	Op          string
	FieldValues map[string]string
}

// SubscriberTable watches one table for changes via keyspace notifications
// and buffers them for the event loop. It is a selector.Selectable; the loop
// drains it with Pops.
//
// The Redis server must have keyspace events enabled (notify-keyspace-events
// includes "Kg$"), which the platform's datastore bootstrap does.
type SubscriberTable struct {
	table  *Table
	pubsub *redis.PubSub
	events chan struct{}

	mu      sync.Mutex
	pending *queue.Queue
}

func NewSubscriberTable(db *DB, tableName string) (*SubscriberTable, error) {
	pubsub := db.client.PSubscribe(db.ctx, db.keyspacePattern(tableName))
	if _, err := pubsub.Receive(db.ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrapf(err, "subscribing to %s keyspace events", tableName)
	}
	s := &SubscriberTable{
		table:   db.Table(tableName),
		pubsub:  pubsub,
		events:  make(chan struct{}, 1),
		pending: queue.New(),
	}
	go s.run()
	return s, nil
}

func (s *SubscriberTable) run() {
	prefix := "__keyspace@"
	for msg := range s.pubsub.Channel() {
		if !strings.HasPrefix(msg.Channel, prefix) {
			continue
		}
		_, after, ok := strings.Cut(msg.Channel, "__:")
		if !ok {
			continue
		}
		key, ok := s.entryKey(after)
		if !ok {
			continue
		}

		entry := KeyOpFieldsValues{Key: key, Op: DelOp}
		switch msg.Payload {
		case "hset", "hdel":
			fvs, err := s.table.Getall(key)
			if err != nil || len(fvs) == 0 {
				// Entry vanished between the event and the read.
				break
			}
			entry = KeyOpFieldsValues{Key: key, Op: SetOp, FieldValues: fvs}
		case "del":
		default:
			continue
		}

		s.mu.Lock()
		s.pending.Add(entry)
		s.mu.Unlock()
		s.notify()
	}
}

// entryKey strips the table prefix from a notified redis key.
func (s *SubscriberTable) entryKey(redisKey string) (string, bool) {
	prefix := s.table.name + s.table.db.separator
	if !strings.HasPrefix(redisKey, prefix) {
		return "", false
	}
	return redisKey[len(prefix):], true
}

func (s *SubscriberTable) notify() {
	select {
	case s.events <- struct{}{}:
	default:
	}
}

// Pops drains all buffered change records in arrival order.
func (s *SubscriberTable) Pops() []KeyOpFieldsValues {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KeyOpFieldsValues, 0, s.pending.Length())
	for s.pending.Length() > 0 {
		out = append(out, s.pending.Remove().(KeyOpFieldsValues))
	}
	return out
}

func (s *SubscriberTable) Events() <-chan struct{} { return s.events }

func (s *SubscriberTable) Readable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length() > 0
}

func (s *SubscriberTable) Priority() int { return 0 }

func (s *SubscriberTable) Close() error {
	return s.pubsub.Close()
}
