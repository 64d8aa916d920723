// Package cache memoizes aggregation results behind a short TTL so
// dashboard polling does not re-scan the event log on every request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a memoized aggregation result stays valid. Short
// enough that a live dashboard never shows data more than a few seconds
// stale, long enough to absorb a burst of identical polls.
const DefaultTTL = 5 * time.Second

// Cache wraps go-redis for storing and retrieving JSON-encoded aggregation
// results, keyed by the query's (store_id, from, to, bucket, metric) shape.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to addr and verifies connectivity with a ping.
func New(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed (%s): %w", addr, err)
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Key builds the memoization key for an aggregation query. Callers pass the
// distinguishing query parameters as-is; this just joins them deterministically.
func Key(storeID, metric string, from, to time.Time, bucket string) string {
	return fmt.Sprintf("agg:%s:%s:%s:%s:%s", storeID, metric, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), bucket)
}

// Get unmarshals a cached value into dest. Returns ok=false on a cache miss
// (including when Redis itself is unreachable — the caller should fall back
// to computing the result live rather than fail the request).
func (c *Cache) Get(ctx context.Context, key string, dest any) (ok bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	return true
}

// Set memoizes v under key for the cache's configured TTL. Marshal or
// network failures are swallowed — caching is an optimization, never a
// correctness path.
func (c *Cache) Set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, key, raw, c.ttl)
}
