package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"releasegate/internal/core"
)

const (
	EventsKey     = "releasegate:events"
	RunsChannel   = "releasegate:runs"
	dedupeKeyPref = "releasegate:delivery:"

	// BLPOP wakes up this often to notice a cancelled context.
	popPollInterval = time.Second
)

// NewRedisClient connects and pings the server at addr.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 20,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// RedisQueue is a redis list: RPUSH on one end, BLPOP on the other.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, key: EventsKey}
}

func (q *RedisQueue) Push(ctx context.Context, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key, payload).Err()
}

// Pop blocks until an event arrives or ctx is done.
func (q *RedisQueue) Pop(ctx context.Context) (core.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.Event{}, err
		}
		result, err := q.client.BLPop(ctx, popPollInterval, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return core.Event{}, ctx.Err()
			}
			return core.Event{}, err
		}
		// BLPop returns [key, element]
		var ev core.Event
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			logger.WithError(err).Warn("dropping malformed queued event")
			continue
		}
		return ev, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// RedisDeduper claims keys with SETNX so every replica sees the same claims.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, dedupeKeyPref+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, dedupeKeyPref+key).Err()
}

// RedisBus publishes run statuses on a pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, channel: RunsChannel}
}

func (b *RedisBus) PublishRun(ctx context.Context, ev RunStatusEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe returns once the subscription is live. The channel closes when
// ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan RunStatusEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	out := make(chan RunStatusEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				logger.WithError(err).Warn("status subscription error")
				time.Sleep(popPollInterval)
				continue
			}
			var ev RunStatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.WithError(err).Warn("dropping malformed status event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
