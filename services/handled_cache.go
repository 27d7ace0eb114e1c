package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// HandledCache remembers handled message ids for a limited time.
// It backs the persisted dedup flag when the database is unavailable.
type HandledCache interface {
	Seen(ctx context.Context, id string) bool
	Remember(ctx context.Context, id string)
}

// MemoryHandledCache keeps handled ids in process memory
type MemoryHandledCache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewMemoryHandledCache creates an in-process cache that forgets ids after window
func NewMemoryHandledCache(window time.Duration) *MemoryHandledCache {
	return &MemoryHandledCache{seen: make(map[string]time.Time), window: window, now: time.Now}
}

// Seen reports whether id was remembered within the window
func (c *MemoryHandledCache) Seen(_ context.Context, id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	when, ok := c.seen[id]
	if !ok {
		return false
	}
	if c.now().Sub(when) > c.window {
		delete(c.seen, id)
		return false
	}
	return true
}

// Remember records id as handled now
func (c *MemoryHandledCache) Remember(_ context.Context, id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.seen[id] = now
	if len(c.seen)%256 == 0 {
		cut := now.Add(-c.window)
		for k, v := range c.seen {
			if v.Before(cut) {
				delete(c.seen, k)
			}
		}
	}
}

// RedisHandledCache shares handled ids between replicas
type RedisHandledCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	local  *MemoryHandledCache
}

// NewRedisHandledCache creates a Redis-backed cache; Redis errors fall through to memory
func NewRedisHandledCache(client *redis.Client, ttl time.Duration, prefix string) *RedisHandledCache {
	return &RedisHandledCache{client: client, ttl: ttl, prefix: prefix + ":handled:", local: NewMemoryHandledCache(ttl)}
}

// Seen checks Redis, then the local fallback
func (c *RedisHandledCache) Seen(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	n, err := c.client.Exists(ctx, c.prefix+id).Result()
	if err == nil && n > 0 {
		return true
	}
	return c.local.Seen(ctx, id)
}

// Remember stores id in Redis with the cache TTL
func (c *RedisHandledCache) Remember(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := c.client.Set(ctx, c.prefix+id, 1, c.ttl).Err(); err != nil {
		c.local.Remember(ctx, id)
	}
}
