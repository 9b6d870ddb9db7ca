package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// statusTTL expires a mirrored snapshot if the bot stops publishing.
const statusTTL = 10 * time.Minute

// StatusMirror copies every status snapshot to a Redis key and announces it
// on EventsChannel.
type StatusMirror struct {
	rdb *redis.Client
	key string
}

// NewStatusMirror creates a StatusMirror for the given token pair.
func NewStatusMirror(c *Client, pairKey string) *StatusMirror {
	return &StatusMirror{rdb: c.Underlying(), key: statusKey(pairKey)}
}

// PublishStatus stores snap under the pair's status key and publishes it.
func (m *StatusMirror) PublishStatus(ctx context.Context, snap domain.StatusSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal status: %w", err)
	}
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, m.key, data, statusTTL)
	pipe.Publish(ctx, EventsChannel, envelope("status", data))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish status: %w", err)
	}
	return nil
}

// GetStatus returns the last mirrored snapshot, or domain.ErrNotFound.
func (m *StatusMirror) GetStatus(ctx context.Context) (domain.StatusSnapshot, error) {
	data, err := m.rdb.Get(ctx, m.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.StatusSnapshot{}, domain.ErrNotFound
		}
		return domain.StatusSnapshot{}, fmt.Errorf("redis: get status: %w", err)
	}
	var snap domain.StatusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("redis: decode status: %w", err)
	}
	return snap, nil
}

// Name identifies the mirror in logs.
func (m *StatusMirror) Name() string { return "redis" }

// envelope tags a payload with its kind so subscribers can demultiplex.
func envelope(kind string, payload json.RawMessage) []byte {
	out, _ := json.Marshal(struct {
		Kind    string          `json:"kind"`
		Payload json.RawMessage `json:"payload"`
	}{Kind: kind, Payload: payload})
	return out
}
