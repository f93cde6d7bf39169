package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	id "invigil/pkg/domain"
	"invigil/pkg/platform/sentinel"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invigil_session_cache_hits_total",
		Help: "Session projection cache hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invigil_session_cache_misses_total",
		Help: "Session projection cache misses (including corrupt entries)",
	})
)

// Redis key prefix for session projections.
const cacheKeyPrefix = "user:session:"

// RedisCache is the production Cache implementation. Multiple instances
// share revocation state through redis, so an Invalidate on one node takes
// effect everywhere on the next request.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a redis-backed projection cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func cacheKey(userID id.UserID) string {
	return cacheKeyPrefix + userID.String()
}

// Get returns the cached projection or sentinel.ErrNotFound. Redis TTL
// enforces the staleness bound; an entry that fails to decode is treated as
// a miss and removed best-effort, never surfaced as a hard error.
func (c *RedisCache) Get(ctx context.Context, userID id.UserID) (*Projection, error) {
	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheMisses.Inc()
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session cache get: %w", err)
	}

	var projection Projection
	if err := json.Unmarshal(raw, &projection); err != nil {
		cacheMisses.Inc()
		_ = c.client.Del(ctx, cacheKey(userID)).Err()
		return nil, sentinel.ErrNotFound
	}

	cacheHits.Inc()
	return &projection, nil
}

// Put stores the projection with the given TTL, overwriting any prior entry.
func (c *RedisCache) Put(ctx context.Context, userID id.UserID, projection *Projection, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	raw, err := json.Marshal(projection)
	if err != nil {
		return fmt.Errorf("session cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(userID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("session cache put: %w", err)
	}
	return nil
}

// Invalidate removes the subject's entry immediately. Deleting a missing key
// is not an error.
func (c *RedisCache) Invalidate(ctx context.Context, userID id.UserID) error {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("session cache invalidate: %w", err)
	}
	return nil
}
