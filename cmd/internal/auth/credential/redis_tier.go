package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "tasklane:"

// RedisTier implements the durable tier on Redis.
//
// Keys are namespaced as "tasklane:<profile>:<key>" so several local profiles
// can share one Redis without seeing each other's tokens.
type RedisTier struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisTier.
type RedisOption func(*RedisTier)

// WithRedisTTL expires durable entries after ttl (0 = no expiry).
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(t *RedisTier) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// NewRedisTier connects to redisURL and verifies reachability.
func NewRedisTier(ctx context.Context, redisURL, profile string, opts ...RedisOption) (*RedisTier, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisTierWithClient(client, profile, opts...), nil
}

// NewRedisTierWithClient wraps an existing client.
func NewRedisTierWithClient(client *redis.Client, profile string, opts ...RedisOption) *RedisTier {
	t := &RedisTier{
		client: client,
		prefix: redisPrefix(profile),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func redisPrefix(profile string) string {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	return defaultRedisPrefix + profile + ":"
}

func (t *RedisTier) key(k string) string {
	return t.prefix + k
}

func (t *RedisTier) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := t.client.Get(ctx, t.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// SetAll writes every key inside MULTI/EXEC.
func (t *RedisTier) SetAll(ctx context.Context, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range kv {
			p.Set(ctx, t.key(k), v, t.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (t *RedisTier) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, t.key(k))
	}
	if err := t.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (t *RedisTier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (t *RedisTier) Close() error {
	return t.client.Close()
}
