// Package cache provides read-through caches for per-user message credit
// balances. The database stays authoritative; cached values expire after
// a short TTL and are invalidated whenever a balance changes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mindfulmate/mindful/pkg/observability"
)

// ErrCacheMiss is returned when a balance is not cached
var ErrCacheMiss = errors.New("cache miss")

// BalanceCache caches remaining message credits by user ID
type BalanceCache interface {
	Get(ctx context.Context, userID int64) (int, error)
	Set(ctx context.Context, userID int64, count int) error
	Invalidate(ctx context.Context, userID int64) error
}

// MemoryCache is an in-process LRU cache with expiry
type MemoryCache struct {
	lru *lru.LRU[int64, int]
}

// NewMemoryCache creates an LRU holding at most size balances for ttl
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size < 1 {
		size = 1
	}
	return &MemoryCache{lru: lru.NewLRU[int64, int](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, userID int64) (int, error) {
	if v, ok := c.lru.Get(userID); ok {
		return v, nil
	}
	return 0, ErrCacheMiss
}

func (c *MemoryCache) Set(_ context.Context, userID int64, count int) error {
	c.lru.Add(userID, count)
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID int64) error {
	c.lru.Remove(userID)
	return nil
}

// Len returns the number of cached balances
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache stores balances in Redis so every API replica shares them
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a Redis-backed balance cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "mindful:chat_count:"}
}

func (c *RedisCache) key(userID int64) string {
	return c.prefix + strconv.FormatInt(userID, 10)
}

func (c *RedisCache) Get(ctx context.Context, userID int64) (int, error) {
	v, err := c.client.Get(ctx, c.key(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return v, nil
}

func (c *RedisCache) Set(ctx context.Context, userID int64, count int) error {
	if err := c.client.Set(ctx, c.key(userID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Noop never caches anything
type Noop struct{}

func (Noop) Get(context.Context, int64) (int, error) { return 0, ErrCacheMiss }
func (Noop) Set(context.Context, int64, int) error   { return nil }
func (Noop) Invalidate(context.Context, int64) error { return nil }

// Counter serves balances through a cache, loading from the store on miss.
// Cache failures are logged and fall through to the loader. A load that
// races an Invalidate in this process is not written back; across
// processes the cache TTL bounds how long a stale value can live.
type Counter struct {
	cache   BalanceCache
	load    func(ctx context.Context, userID int64) (int, error)
	metrics *observability.Metrics
	name    string

	mu       sync.Mutex
	versions map[int64]uint64
}

// NewCounter wraps load with cache
func NewCounter(cache BalanceCache, load func(ctx context.Context, userID int64) (int, error), metrics *observability.Metrics) *Counter {
	if cache == nil {
		cache = Noop{}
	}
	return &Counter{
		cache:    cache,
		load:     load,
		metrics:  metrics,
		name:     "chat_count",
		versions: make(map[int64]uint64),
	}
}

// Get returns the user's balance from the cache or the loader
func (c *Counter) Get(ctx context.Context, userID int64) (int, error) {
	v, err := c.cache.Get(ctx, userID)
	if err == nil {
		c.metrics.CacheLookup(c.name, true)
		return v, nil
	}
	c.metrics.CacheLookup(c.name, false)
	if !errors.Is(err, ErrCacheMiss) {
		observability.FromContext(ctx).WithError(err).Warn("balance cache read failed")
	}

	c.mu.Lock()
	version := c.versions[userID]
	c.mu.Unlock()

	v, err = c.load(ctx, userID)
	if err != nil {
		return 0, err
	}

	// held across Set so an Invalidate cannot slip in between check and write
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[userID] != version {
		observability.FromContext(ctx).WithField("user_id", userID).Debug("balance changed during load, not caching")
		return v, nil
	}
	if err := c.cache.Set(ctx, userID, v); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("balance cache write failed")
	}
	return v, nil
}

// Invalidate drops the user's cached balance
func (c *Counter) Invalidate(ctx context.Context, userID int64) {
	c.mu.Lock()
	c.versions[userID]++
	c.mu.Unlock()

	if err := c.cache.Invalidate(ctx, userID); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("balance cache invalidate failed")
	}
}
