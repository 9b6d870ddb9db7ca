package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// alertStream keeps a durable, trimmed history of alerts.
const (
	alertStream        = keyPrefix + ":alerts"
	streamMaxLen int64 = 10000
)

// EventBus publishes operator alerts to Redis. It satisfies notify.Sender so
// alerts reach Pub/Sub subscribers alongside Telegram and Discord.
type EventBus struct {
	rdb *redis.Client
	now func() time.Time
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying(), now: time.Now}
}

// Send publishes the alert on EventsChannel and appends it to the alert stream.
func (b *EventBus) Send(ctx context.Context, title, message string) error {
	data, err := json.Marshal(map[string]string{
		"title":   title,
		"message": message,
		"ts":      b.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal alert: %w", err)
	}
	if err := b.rdb.Publish(ctx, EventsChannel, envelope("alert", data)).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", EventsChannel, err)
	}
	args := &redis.XAddArgs{
		Stream: alertStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": data,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", alertStream, err)
	}
	return nil
}

// Name returns the sender identifier.
func (b *EventBus) Name() string { return "redis" }

// Subscribe returns a channel of raw payloads published on channel. The
// returned channel is closed when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the channel includes glob-style wildcards, in
// which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}
