// Package notifier publishes fleet events over Redis pub/sub so operator
// dashboards can react to uploads without polling.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fleethub/internal/config"
)

// Event is one published fleet notification.
type Event struct {
	Kind      string    `json:"kind"`
	ModelCode string    `json:"model_code,omitempty"`
	DeviceKey string    `json:"device_key,omitempty"`
	Version   string    `json:"version,omitempty"`
	DumpID    int64     `json:"dump_id,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier publishes events. Publishing is best-effort; a failed publish
// is logged and never surfaces to the operation that triggered it.
type Notifier struct {
	client  redis.UniversalClient
	channel string
	log     zerolog.Logger
}

// New connects to Redis and verifies the connection. Returns (nil, nil)
// when no Redis URL is configured; a nil Notifier is a no-op.
func New(cfg *config.Config, log zerolog.Logger) (*Notifier, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Notifier{
		client:  client,
		channel: cfg.NotifyChannel,
		log:     log.With().Str("component", "notifier").Logger(),
	}, nil
}

// FirmwareUploaded announces a stored firmware bundle.
func (n *Notifier) FirmwareUploaded(ctx context.Context, modelCode, version string) {
	if n == nil {
		return
	}
	n.publish(ctx, n.channel+".firmware", Event{
		Kind:      "firmware_uploaded",
		ModelCode: modelCode,
		Version:   version,
		At:        time.Now().UTC(),
	})
}

// DumpStored announces a stored crash dump.
func (n *Notifier) DumpStored(ctx context.Context, deviceKey string, dumpID int64) {
	if n == nil {
		return
	}
	n.publish(ctx, n.channel+".coredump", Event{
		Kind:      "coredump_stored",
		DeviceKey: deviceKey,
		DumpID:    dumpID,
		At:        time.Now().UTC(),
	})
}

func (n *Notifier) publish(ctx context.Context, channel string, event Event) {
	if n == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Error().Err(err).Str("kind", event.Kind).Msg("marshal event")
		return
	}
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		n.log.Warn().Err(err).Str("channel", channel).Msg("publish event failed")
	}
}

// Close releases the Redis connection.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.client.Close()
}
