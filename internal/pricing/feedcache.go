package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/hearth/internal/observability"
)

const feedCacheKey = "pricing:feed"

// RedisFeedCache caches the raw feed body in Redis so repeated sync passes
// within the TTL do not re-download it. Every Redis failure degrades to a
// cache miss.
type RedisFeedCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisFeedCache creates a feed cache with the given TTL.
func NewRedisFeedCache(client *redis.Client, ttl time.Duration) *RedisFeedCache {
	return &RedisFeedCache{client: client, ttl: ttl}
}

// Get returns the cached feed body if present.
func (c *RedisFeedCache) Get(ctx context.Context) ([]byte, bool) {
	body, err := c.client.Get(ctx, feedCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.FromContext(ctx).Warn("feed cache read failed",
				observability.Error(err))
		}
		return nil, false
	}
	return body, true
}

// Set stores the feed body.
func (c *RedisFeedCache) Set(ctx context.Context, body []byte) {
	if err := c.client.Set(ctx, feedCacheKey, body, c.ttl).Err(); err != nil {
		observability.FromContext(ctx).Warn("feed cache write failed",
			observability.Error(err))
	}
}
