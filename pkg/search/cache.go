package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the 24h search result cache with Redis; concurrent
// readers are safe, and the client itself serialises writes per key
// through Redis's own command pipeline (spec §5 shared-resource policy:
// "concurrent readers, single writer per key").
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps an existing *redis.Client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Result, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	results, err := decodeResults(data)
	if err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, results []Result, ttl time.Duration) error {
	data, err := encodeResults(results)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// MemoryCache is an in-process TTL cache used where Redis isn't wired
// (unit tests, small single-process batches); guarded by a single mutex
// per spec §5 ("an in-process map guarded by a simple lock or
// equivalent. Stale reads are acceptable").
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	results []Result
	expires time.Time
}

// NewMemoryCache constructs an empty MemoryCache using wall-clock time.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return nil, false, nil
	}
	return e.results, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, results []Result, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{results: results, expires: c.now().Add(ttl)}
	return nil
}
