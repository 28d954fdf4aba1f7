package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultRedisPrefix = "homestead:perm"

// RedisCache is a Cache shared between processes.
//
// Each entry is stored as JSON with a native TTL. Per-user and per-role sets
// index the entry keys so invalidation does not need to scan.
type RedisCache struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: defaultRedisPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithPrefix overrides the key prefix
func (c *RedisCache) WithPrefix(prefix string) *RedisCache {
	c.prefix = prefix
	return c
}

// WithClock overrides the cache's clock
func (c *RedisCache) WithClock(now func() time.Time) *RedisCache {
	c.now = now
	return c
}

func (c *RedisCache) entryKey(key SubjectKey) string {
	return c.prefix + ":entry:" + key.String()
}

func (c *RedisCache) userKey(userID int64) string {
	return c.prefix + ":user:" + strconv.FormatInt(userID, 10)
}

func (c *RedisCache) roleKey(roleID int64) string {
	return c.prefix + ":role:" + strconv.FormatInt(roleID, 10)
}

// Get implements Cache
func (c *RedisCache) Get(ctx context.Context, key SubjectKey) (*Entry, bool, error) {
	data, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// If unmarshal fails, delete corrupt data
		c.client.Del(ctx, c.entryKey(key))
		return nil, false, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	if entry.Expired(c.now()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set implements Cache
func (c *RedisCache) Set(ctx context.Context, key SubjectKey, entry *Entry) error {
	ttl := entry.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	entryKey := c.entryKey(key)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey, data, ttl)

		userKey := c.userKey(key.UserID)
		pipe.SAdd(ctx, userKey, entryKey)
		pipe.Expire(ctx, userKey, ttl)

		for _, roleID := range entry.RoleIDs {
			roleKey := c.roleKey(roleID)
			pipe.SAdd(ctx, roleKey, entryKey)
			pipe.Expire(ctx, roleKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateUser implements Cache
func (c *RedisCache) InvalidateUser(ctx context.Context, userID int64) error {
	return c.invalidateIndex(ctx, c.userKey(userID))
}

// InvalidateRole implements Cache
func (c *RedisCache) InvalidateRole(ctx context.Context, roleID int64) error {
	return c.invalidateIndex(ctx, c.roleKey(roleID))
}

func (c *RedisCache) invalidateIndex(ctx context.Context, indexKey string) error {
	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("redis smembers failed: %w", err)
	}

	keys := append(members, indexKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Purge implements Cache
func (c *RedisCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del failed: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
	}
	return nil
}
