package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/classsync/internal/platform/logger"
)

const (
	DefaultPresenceTTL     = 45 * time.Second
	defaultPresenceChannel = "presence"
	presenceKeyPrefix      = "presence:"
)

// RedisPresence tracks who is online with one expiring key per user and
// announces joins and leaves on a pub/sub channel. A client that vanishes
// without leaving drops out when its key expires; the next periodic sync
// reports it as a leave.
type RedisPresence struct {
	rdb     goredis.UniversalClient
	log     *logger.Logger
	userID  string
	ttl     time.Duration
	channel string
}

func NewRedisPresence(rdb goredis.UniversalClient, userID string, ttl time.Duration, log *logger.Logger) (*RedisPresence, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis presence: client required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("redis presence: user id required")
	}
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisPresence{
		rdb:     rdb,
		log:     log.With("component", "RedisPresence"),
		userID:  userID,
		ttl:     ttl,
		channel: defaultPresenceChannel,
	}, nil
}

func (p *RedisPresence) Name() string { return "presence" }

func (p *RedisPresence) Run(ctx context.Context, sink Sink) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", p.channel, err)
	}

	if err := p.announce(ctx, PresenceJoin); err != nil {
		return err
	}
	sink.Connected(p.Name())

	var known []string
	resync := func() error {
		ids, at, err := p.Online(ctx)
		if err != nil {
			return err
		}
		for _, id := range known {
			if !slices.Contains(ids, id) {
				sink.Presence(Presence{Kind: PresenceLeave, UserID: id, At: at})
			}
		}
		known = ids
		sink.Presence(Presence{Kind: PresenceSync, UserIDs: ids, At: at})
		return nil
	}
	if err := resync(); err != nil {
		return err
	}

	tick := time.NewTicker(p.ttl / 3)
	defer tick.Stop()
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := p.announce(leaveCtx, PresenceLeave); err != nil {
				p.log.Warn("Presence leave failed", "error", err)
			}
			cancel()
			return nil
		case <-tick.C:
			if err := p.rdb.Expire(ctx, p.key(p.userID), p.ttl).Err(); err != nil {
				return fmt.Errorf("presence heartbeat: %w", err)
			}
			if err := resync(); err != nil {
				return err
			}
		case m, ok := <-msgs:
			if !ok || m == nil {
				return fmt.Errorf("presence subscription closed")
			}
			var ev Presence
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil || ev.UserID == "" {
				p.log.Warn("Bad presence payload", "error", err)
				continue
			}
			switch ev.Kind {
			case PresenceJoin:
				if !slices.Contains(known, ev.UserID) {
					known = append(known, ev.UserID)
				}
			case PresenceLeave:
				known = slices.DeleteFunc(known, func(id string) bool { return id == ev.UserID })
			default:
				continue
			}
			sink.Presence(ev)
		}
	}
}

// Online lists users holding a live presence key, sorted, along with the
// Redis server time of the read.
func (p *RedisPresence) Online(ctx context.Context) ([]string, time.Time, error) {
	at, err := p.rdb.Time(ctx).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis time: %w", err)
	}
	var ids []string
	iter := p.rdb.Scan(ctx, 0, presenceKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), presenceKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("presence scan: %w", err)
	}
	slices.Sort(ids)
	return slices.Compact(ids), at.UTC(), nil
}

func (p *RedisPresence) announce(ctx context.Context, kind PresenceKind) error {
	at, err := p.rdb.Time(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis time: %w", err)
	}
	ev := Presence{Kind: kind, UserID: p.userID, At: at.UTC()}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := p.rdb.TxPipeline()
	if kind == PresenceJoin {
		pipe.Set(ctx, p.key(p.userID), raw, p.ttl)
	} else {
		pipe.Del(ctx, p.key(p.userID))
	}
	pipe.Publish(ctx, p.channel, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence %s: %w", kind, err)
	}
	return nil
}

func (p *RedisPresence) key(userID string) string { return presenceKeyPrefix + userID }
