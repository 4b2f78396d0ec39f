package price

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/ledger-scanner/internal/types"
)

// QuoteCache stores resolved quotes. Entries are absent-then-set-once;
// implementations need no read-modify-write discipline.
type QuoteCache interface {
	Get(ctx context.Context, key string) (types.PriceQuote, bool)
	Set(ctx context.Context, key string, quote types.PriceQuote)
}

// MemoryCache is the default in-process quote cache: an expirable LRU
// with configurable size and TTL.
type MemoryCache struct {
	lru *lru.LRU[string, types.PriceQuote]
}

// NewMemoryCache creates an in-process quote cache.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: lru.NewLRU[string, types.PriceQuote](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (types.PriceQuote, bool) {
	return c.lru.Get(key)
}

func (c *MemoryCache) Set(_ context.Context, key string, quote types.PriceQuote) {
	c.lru.Add(key, quote)
}

// RedisCache is an optional shared quote-cache tier so multiple processes
// amortize historical lookups. Failures degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a redis-backed quote cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (types.PriceQuote, bool) {
	data, err := c.client.Get(ctx, "quote:"+key).Bytes()
	if err != nil {
		return types.PriceQuote{}, false
	}
	var quote types.PriceQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return types.PriceQuote{}, false
	}
	return quote, true
}

func (c *RedisCache) Set(ctx context.Context, key string, quote types.PriceQuote) {
	data, err := json.Marshal(quote)
	if err != nil {
		return
	}
	c.client.Set(ctx, "quote:"+key, data, c.ttl)
}

// TieredCache layers a fast cache over a shared one: reads fill the fast
// tier from the slow tier, writes go to both.
type TieredCache struct {
	fast QuoteCache
	slow QuoteCache
}

// NewTieredCache combines two cache tiers.
func NewTieredCache(fast, slow QuoteCache) *TieredCache {
	return &TieredCache{fast: fast, slow: slow}
}

func (c *TieredCache) Get(ctx context.Context, key string) (types.PriceQuote, bool) {
	if quote, ok := c.fast.Get(ctx, key); ok {
		return quote, true
	}
	if quote, ok := c.slow.Get(ctx, key); ok {
		c.fast.Set(ctx, key, quote)
		return quote, true
	}
	return types.PriceQuote{}, false
}

func (c *TieredCache) Set(ctx context.Context, key string, quote types.PriceQuote) {
	c.fast.Set(ctx, key, quote)
	c.slow.Set(ctx, key, quote)
}
