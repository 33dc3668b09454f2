package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisPublishTimeout = 2 * time.Second
	redisOutboxSize     = 1024
)

type envelope struct {
	Origin string `json:"origin"`
	Change Change `json:"change"`
}

// RedisBridge publishes changes to the local hub and to a Redis channel, and relays
// changes published by other instances into the local hub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	origin  string
	local   *Hub
	outbox  chan []byte
	logger  *slog.Logger
}

// NewRedisBridge creates a bridge with a random origin id for this process.
func NewRedisBridge(log *slog.Logger, client *redis.Client, channel string, local *Hub) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		outbox:  make(chan []byte, redisOutboxSize),
		logger:  log.With(slog.String("component", "realtime_redis")),
	}
}

// Publish delivers change locally and queues it for other instances. It never waits on
// Redis; when the outbox is full the remote copy is dropped.
func (b *RedisBridge) Publish(change Change) {
	b.local.Publish(change)
	payload, err := encodeEnvelope(b.origin, change)
	if err != nil {
		b.logger.Warn("encode change failed", slog.Any("error", err))
		return
	}
	select {
	case b.outbox <- payload:
	default:
		b.logger.Warn("redis outbox full, change not forwarded", slog.String("table", change.Table))
	}
}

// Run forwards queued changes to Redis and relays remote changes into the local hub until
// ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.forward(ctx)
	}()
	defer wg.Wait()
	defer cancel()

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			origin, change, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("decode change failed", slog.Any("error", err))
				continue
			}
			if origin == b.origin {
				continue
			}
			b.local.Publish(change)
		}
	}
}

func (b *RedisBridge) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, redisPublishTimeout)
			if err := b.client.Publish(pubCtx, b.channel, payload).Err(); err != nil {
				b.logger.Warn("redis publish failed", slog.Any("error", err))
			}
			cancel()
		}
	}
}

func encodeEnvelope(origin string, change Change) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Change: change})
}

func decodeEnvelope(data []byte) (string, Change, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", Change{}, err
	}
	if env.Change.Table == "" {
		return "", Change{}, fmt.Errorf("change without table")
	}
	return env.Origin, env.Change, nil
}
