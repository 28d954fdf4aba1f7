package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window limiter shared across instances
type RedisLimiter struct {
	client *redis.Client
	config ThrottleConfig
	prefix string
}

// NewRedisLimiter creates a new Redis-backed limiter
func NewRedisLimiter(client *redis.Client, config ThrottleConfig, prefix string) *RedisLimiter {
	if config.Attempts <= 0 || config.Window <= 0 {
		config = DefaultThrottleConfig()
	}
	if prefix == "" {
		prefix = "homestead:throttle"
	}
	return &RedisLimiter{client: client, config: config, prefix: prefix}
}

// Allow counts an attempt in the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("redis throttle: %w", err)
	}
	// The first attempt of a window starts its expiry
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.config.Window).Err(); err != nil {
			return true, fmt.Errorf("redis throttle: %w", err)
		}
	}
	return count <= int64(l.config.Attempts), nil
}

// TTL returns the time until the key's window resets
func (l *RedisLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return l.client.TTL(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Result()
}

// Reset clears the attempts for a key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
