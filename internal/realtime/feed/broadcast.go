package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/classsync/internal/platform/logger"
)

const DefaultBroadcastChannel = "test-updates"

// RedisBroadcast carries broadcast hints over Redis pub/sub.
type RedisBroadcast struct {
	rdb     goredis.UniversalClient
	log     *logger.Logger
	channel string
}

func NewRedisBroadcast(rdb goredis.UniversalClient, channel string, log *logger.Logger) (*RedisBroadcast, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis broadcast: client required")
	}
	if channel == "" {
		channel = DefaultBroadcastChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisBroadcast{rdb: rdb, log: log.With("component", "RedisBroadcast"), channel: channel}, nil
}

func (b *RedisBroadcast) Name() string { return "broadcast" }

func (b *RedisBroadcast) Publish(ctx context.Context, msg Broadcast) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBroadcast) Run(ctx context.Context, sink Sink) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	sink.Connected(b.Name())

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok || m == nil {
				return fmt.Errorf("broadcast subscription closed")
			}
			var msg Broadcast
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Warn("Bad broadcast payload", "error", err)
				continue
			}
			sink.Broadcast(msg)
		}
	}
}

// NewRedisClient pings addr before returning the client.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
