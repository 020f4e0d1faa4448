package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ Storage = (*Redis)(nil)

const scanBatch = 100

// Redis is a Storage namespaced by a key prefix. Changes are published on a
// pub/sub channel so every replica watching the same prefix observes them.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	channel string
	ttl     time.Duration
}

type RedisOption func(*Redis)

// WithTTL expires every key written through this handle after ttl
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

func NewRedis(client redis.UniversalClient, prefix string, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		prefix:  prefix,
		channel: prefix + "events",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConnectRedis parses the URL, connects and pings before returning the client
func ConnectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("[storage Redis Get] %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("[storage Redis Set] %s: %w", key, err)
	}
	r.publish(ctx, Event{Op: OpSet, Key: key, Value: value})
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.prefix+key).Result()
	if err != nil {
		return fmt.Errorf("[storage Redis Delete] %s: %w", key, err)
	}
	if n > 0 {
		r.publish(ctx, Event{Op: OpDelete, Key: key})
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.scan(ctx)
	if err != nil {
		return fmt.Errorf("[storage Redis Clear] %w", err)
	}
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		if err := r.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("[storage Redis Clear] %w", err)
		}
	}
	r.publish(ctx, Event{Op: OpClear})
	return nil
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("[storage Redis Keys] %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, r.prefix))
	}
	return out, nil
}

// Watch subscribes to the change channel. The subscription is confirmed before Watch returns.
func (r *Redis) Watch(ctx context.Context, fn Listener) (Subscription, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("[storage Redis Watch] subscribe %s: %w", r.channel, err)
	}

	var cancelled atomic.Bool
	ch := ps.Channel()
	go func() {
		for msg := range ch {
			if cancelled.Load() {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", r.channel).Msg("Ignoring malformed storage event")
				continue
			}
			fn(ev)
		}
	}()

	return newSubscription(func() {
		cancelled.Store(true)
		if err := ps.Close(); err != nil {
			log.Debug().Err(err).Str("channel", r.channel).Msg("Closing storage subscription")
		}
	}), nil
}

func (r *Redis) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// publish failures are logged; the write itself already succeeded
func (r *Redis) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Err(err).Msg("Failed to encode storage event")
		return
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		log.Warn().Err(err).Str("channel", r.channel).Msg("Failed to publish storage event")
	}
}
