package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/observability"
)

const DefaultCacheTTL = 30 * time.Minute

// Cache stores search results by normalized query.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Cached serves repeated queries from a Cache. Cache faults never fail a search.
type Cached struct {
	next    Searcher
	cache   Cache
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewCached(next Searcher, cache Cache, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger, metrics: metrics}
}

func (c *Cached) Run(ctx context.Context, query string) (string, error) {
	key := CacheKey(query)
	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("search cache read failed", zap.Error(err))
	} else if ok {
		c.metrics.ObserveSearch("cache_hit")
		return v, nil
	}

	out, err := c.next.Run(ctx, query)
	if err != nil {
		if errors.Is(err, ErrDisabled) {
			c.metrics.ObserveSearch("disabled")
		} else {
			c.metrics.ObserveSearch("error")
		}
		return "", err
	}
	c.metrics.ObserveSearch("ok")
	if out == "" {
		return "", nil
	}
	if err := c.cache.Set(ctx, key, out, c.ttl); err != nil {
		c.logger.Warn("search cache write failed", zap.Error(err))
	}
	return out, nil
}

// CacheKey lowercases and collapses whitespace.
func CacheKey(query string) string {
	return "studybuddy:search:" + strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// RedisCache keeps results in Redis so replicas share them.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache parses a redis:// URL and pings the server.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{value: value, expires: now.Add(ttl)}
	return nil
}
