package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const cacheKeyPrefix = "fx_rates:"

// Cache stores resolved rate tables for a bounded time. Implementations return
// ErrCacheMiss when nothing live is stored.
type Cache interface {
	Get(ctx context.Context, base string) (RateTable, error)
	Set(ctx context.Context, base string, table RateTable, ttl time.Duration) error
}

// RedisCache keeps rate tables in Redis as JSON objects of decimal strings.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache builds a Redis-backed rate cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, base string) (RateTable, error) {
	payload, err := c.client.Get(ctx, cacheKeyPrefix+Normalize(base)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read rate cache: %w", err)
	}

	var stored map[string]string
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("decode cached rates: %w", err)
	}
	table := make(RateTable, len(stored))
	for code, v := range stored {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("decode cached rate %s: %w", code, err)
		}
		table[code] = rate
	}
	return table, nil
}

func (c *RedisCache) Set(ctx context.Context, base string, table RateTable, ttl time.Duration) error {
	stored := make(map[string]string, len(table))
	for code, rate := range table {
		stored[code] = rate.String()
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+Normalize(base), payload, ttl).Err(); err != nil {
		return fmt.Errorf("write rate cache: %w", err)
	}
	return nil
}

// MemoryCache is a process-local Cache used when Redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	table     RateTable
	expiresAt time.Time
}

// NewMemoryCache builds an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, base string) (RateTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[Normalize(base)]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	return entry.table.Clone(), nil
}

func (c *MemoryCache) Set(_ context.Context, base string, table RateTable, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Normalize(base)] = memoryEntry{table: table.Clone(), expiresAt: c.now().Add(ttl)}
	return nil
}
