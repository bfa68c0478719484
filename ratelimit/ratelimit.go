// Package ratelimit implements the rate limiter capability (spec.md
// §6) against Redis, using a fixed-window counter. Grounded on the
// teacher's core.Memory interface shape (Get/Set/Exists against an
// external store) generalized to the specific INCR-then-EXPIRE
// pattern a rate limiter needs, with go-redis/redis/v8 as the client.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Decision is the rate limiter capability's output (spec.md §6).
type Decision struct {
	Allowed    bool
	RetryAfter int // seconds
}

// RateLimiter is the opaque capability the executor's rate-limit stage
// depends on.
type RateLimiter interface {
	Check(ctx context.Context, identifier string) (Decision, error)
}

// RedisRateLimiter implements a fixed-window counter: each identifier
// gets a counter key that expires after window; requests beyond limit
// within the window are rejected with the window's remaining TTL as
// RetryAfter.
type RedisRateLimiter struct {
	client    *redis.Client
	limit     int64
	window    time.Duration
	keyPrefix string
}

// Option configures a RedisRateLimiter.
type Option func(*RedisRateLimiter)

func WithKeyPrefix(prefix string) Option {
	return func(r *RedisRateLimiter) { r.keyPrefix = prefix }
}

// NewRedisRateLimiter builds a limiter allowing limit requests per
// window, per identifier.
func NewRedisRateLimiter(client *redis.Client, limit int64, window time.Duration, opts ...Option) *RedisRateLimiter {
	r := &RedisRateLimiter{client: client, limit: limit, window: window, keyPrefix: "ratelimit:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRateLimiter) Check(ctx context.Context, identifier string) (Decision, error) {
	key := r.keyPrefix + identifier

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis incr failed: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: redis expire failed: %w", err)
		}
	}

	if count <= r.limit {
		return Decision{Allowed: true}, nil
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = r.window
	}
	return Decision{Allowed: false, RetryAfter: int(ttl.Seconds())}, nil
}
