// SPDX-License-Identifier:Apache-2.0

package swss

import (
	"encoding/json"
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Notification is one message from a notification channel: an entry key and
// the fields the producer attached to it.
type Notification struct {
	Key         string            `json:"key"`
	FieldValues map[string]string `json:"fieldValues"`
}

// NotificationConsumer receives ordered notifications from a well-known
// pub/sub channel and buffers them for the event loop. It is a
// selector.Selectable; the loop drains it with Pops.
type NotificationConsumer struct {
	channel string
	pubsub  *redis.PubSub
	events  chan struct{}

	mu      sync.Mutex
	pending *queue.Queue
}

func NewNotificationConsumer(db *DB, channel string) (*NotificationConsumer, error) {
	pubsub := db.client.Subscribe(db.ctx, channel)
	if _, err := pubsub.Receive(db.ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrapf(err, "subscribing to %s", channel)
	}
	c := &NotificationConsumer{
		channel: channel,
		pubsub:  pubsub,
		events:  make(chan struct{}, 1),
		pending: queue.New(),
	}
	go c.run()
	return c, nil
}

func (c *NotificationConsumer) run() {
	for msg := range c.pubsub.Channel() {
		var n Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			// Not ours to interpret; drop it.
			continue
		}
		c.mu.Lock()
		c.pending.Add(n)
		c.mu.Unlock()
		c.notify()
	}
}

func (c *NotificationConsumer) notify() {
	select {
	case c.events <- struct{}{}:
	default:
	}
}

// Pops drains all buffered notifications in arrival order.
func (c *NotificationConsumer) Pops() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, c.pending.Length())
	for c.pending.Length() > 0 {
		out = append(out, c.pending.Remove().(Notification))
	}
	return out
}

func (c *NotificationConsumer) Events() <-chan struct{} { return c.events }

func (c *NotificationConsumer) Readable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Length() > 0
}

func (c *NotificationConsumer) Priority() int { return 0 }

func (c *NotificationConsumer) Close() error {
	return c.pubsub.Close()
}
