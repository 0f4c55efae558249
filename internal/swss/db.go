// SPDX-License-Identifier:Apache-2.0

// Package swss talks to the shared platform datastore: a Redis server
// holding the APPL/CONFIG/STATE databases, with the table conventions used
// by the rest of the platform (hash per table entry, "|" separator for
// config and state tables, ":" for application tables).
package swss

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Logical database names and their Redis database numbers.
var databases = map[string]struct {
	id        int
	separator string
}{
	"APPL_DB":       {0, ":"},
	"CONFIG_DB":     {4, "|"},
	"STATE_DB":      {6, "|"},
	"APPL_STATE_DB": {14, "|"},
}

// DB is a handle on one logical database. The context passed at construction
// is the daemon-lifetime context used for all commands issued through the
// handle.
type DB struct {
	ctx       context.Context
	client    *redis.Client
	name      string
	id        int
	separator string
}

func NewDB(ctx context.Context, addr, name string) (*DB, error) {
	meta, ok := databases[name]
	if !ok {
		return nil, errors.Errorf("unknown database %q", name)
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   meta.id,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "connecting to %s at %s", name, addr)
	}
	return &DB{
		ctx:       ctx,
		client:    client,
		name:      name,
		id:        meta.id,
		separator: meta.separator,
	}, nil
}

func (db *DB) Name() string { return db.name }

// Table returns a view over one table of the database.
func (db *DB) Table(name string) *Table {
	return &Table{db: db, name: name}
}

func (db *DB) keyspacePattern(table string) string {
	return "__keyspace@" + strconv.Itoa(db.id) + "__:" + table + db.separator + "*"
}

func (db *DB) Close() error {
	return db.client.Close()
}

// Table addresses entries of one table. Entry keys are scoped by the table
// name and the database's separator.
type Table struct {
	db   *DB
	name string
}

func (t *Table) redisKey(key string) string {
	return t.name + t.db.separator + key
}

// Hget reads one field of an entry. A missing entry or field yields an empty
// value, not an error.
func (t *Table) Hget(key, field string) (string, error) {
	v, err := t.db.client.HGet(t.db.ctx, t.redisKey(key), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "hget %s %s", t.redisKey(key), field)
	}
	return v, nil
}

// Getall reads all fields of an entry.
func (t *Table) Getall(key string) (map[string]string, error) {
	fvs, err := t.db.client.HGetAll(t.db.ctx, t.redisKey(key)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "hgetall %s", t.redisKey(key))
	}
	return fvs, nil
}

func (t *Table) Hset(key, field, value string) error {
	return errors.Wrapf(t.db.client.HSet(t.db.ctx, t.redisKey(key), field, value).Err(),
		"hset %s %s", t.redisKey(key), field)
}

func (t *Table) Del(key string) error {
	return errors.Wrapf(t.db.client.Del(t.db.ctx, t.redisKey(key)).Err(),
		"del %s", t.redisKey(key))
}

// Keys lists the entry keys of the table, with the table prefix stripped.
func (t *Table) Keys() ([]string, error) {
	prefix := t.name + t.db.separator
	raw, err := t.db.client.Keys(t.db.ctx, prefix+"*").Result()
	if err != nil {
		return nil, errors.Wrapf(err, "keys %s*", prefix)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k[len(prefix):])
	}
	return keys, nil
}
