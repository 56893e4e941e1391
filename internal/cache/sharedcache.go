// Package cache provides the shared (cross-instance) key/value cache
// and the in-process game-state cache built on top of it. The shared
// cache is grounded on go-redis, the same client the retrieved pack's
// API services use for session and hot-path caching; an in-memory
// implementation backs tests and single-instance deployments.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedCache is the minimal cross-instance cache surface the game
// state cache and room coordinator depend on: JSON get/set with TTL, and
// an append-only bounded log used for the recent-moves feed.
type SharedCache interface {
	Ping(ctx context.Context) error
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	PushLog(ctx context.Context, key string, entry any, maxItems int, ttl time.Duration) error
	RecentLog(ctx context.Context, key string, limit int) ([]string, error)
}

// RedisCache implements SharedCache over go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) PushLog(ctx context.Context, key string, entry any, maxItems int, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, int64(maxItems-1))
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) RecentLog(ctx context.Context, key string, limit int) ([]string, error) {
	return c.client.LRange(ctx, key, 0, int64(limit-1)).Result()
}

// MemoryCache is an in-process SharedCache for tests and
// single-instance deployments that skip Redis entirely. JSON values
// honor their TTL via lazy expiry checks on read; PushLog ignores its
// ttl argument, so log entries never expire.
type MemoryCache struct {
	mu   sync.Mutex
	vals map[string]memEntry
	logs map[string][]string
}

type memEntry struct {
	raw       []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vals: map[string]memEntry{}, logs: map[string][]string{}}
}

// Ping always succeeds: the in-process cache has no connection to lose.
func (c *MemoryCache) Ping(_ context.Context) error {
	return nil
}

func (c *MemoryCache) GetJSON(_ context.Context, key string, out any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.vals[key]
	if !ok {
		return false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(c.vals, key)
		return false, nil
	}
	if err := json.Unmarshal(e.raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryCache) SetJSON(_ context.Context, key string, val any, ttl time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.vals[key] = memEntry{raw: raw, expiresAt: exp}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vals, key)
	return nil
}

func (c *MemoryCache) PushLog(_ context.Context, key string, entry any, maxItems int, _ time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append([]string{string(raw)}, c.logs[key]...)
	if len(list) > maxItems {
		list = list[:maxItems]
	}
	c.logs[key] = list
	return nil
}

func (c *MemoryCache) RecentLog(_ context.Context, key string, limit int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.logs[key]
	if limit < len(list) {
		list = list[:limit]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}
