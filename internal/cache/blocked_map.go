// Package cache keeps computed blocked maps in Redis and provides a
// per-resource commit lock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rentcal/internal/availability"
	"rentcal/internal/calendar"
)

const keyPrefix = "rentcal"

// BlockedMapCache caches blocked maps per (resource, anchor, horizon).
// Every entry key embeds the resource's generation counter, so Invalidate
// drops all cached horizons of a resource with a single INCR.
// A nil client disables caching.
type BlockedMapCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewBlockedMapCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *BlockedMapCache {
	return &BlockedMapCache{redis: client, ttl: ttl, logger: logger}
}

// Enabled reports whether a Redis client is configured.
func (c *BlockedMapCache) Enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

func generationKey(resourceID string) string {
	return fmt.Sprintf("%s:gen:%s", keyPrefix, resourceID)
}

func entryKey(resourceID string, gen int64, anchor calendar.DateKey, months int) string {
	return fmt.Sprintf("%s:blocked:%s:g%d:%s:%d", keyPrefix, resourceID, gen, anchor, months)
}

// Generation returns the resource's current generation. A resource that was
// never invalidated is at generation 0.
func (c *BlockedMapCache) Generation(ctx context.Context, resourceID string) (int64, error) {
	gen, err := c.redis.Get(ctx, generationKey(resourceID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return gen, nil
}

// Get returns a cached map and the generation it looked under. The generation
// must be handed back to Set so a map built from a read that raced with
// Invalidate lands under the old generation and is never served. Any Redis or
// decode failure is a miss; a failed generation lookup yields gen -1.
func (c *BlockedMapCache) Get(ctx context.Context, resourceID string, anchor calendar.DateKey, months int) (availability.BlockedDateMap, int64, bool) {
	if !c.Enabled() {
		return nil, -1, false
	}
	gen, err := c.Generation(ctx, resourceID)
	if err != nil {
		c.logger.Debug().Err(err).Str("resource_id", resourceID).Msg("cache generation lookup failed")
		return nil, -1, false
	}
	key := entryKey(resourceID, gen, anchor, months)
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, gen, false
	}
	var m availability.BlockedDateMap
	if err := json.Unmarshal([]byte(val), &m); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		_ = c.redis.Del(ctx, key).Err()
		return nil, gen, false
	}
	return m, gen, true
}

// Set stores m under gen, the generation returned by the Get that preceded the
// store read. Negative generations are skipped. Failures are logged and
// otherwise ignored.
func (c *BlockedMapCache) Set(ctx context.Context, resourceID string, anchor calendar.DateKey, months int, gen int64, m availability.BlockedDateMap) {
	if !c.Enabled() || gen < 0 {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	key := entryKey(resourceID, gen, anchor, months)
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Invalidate bumps the resource's generation so older entries are never read again.
func (c *BlockedMapCache) Invalidate(ctx context.Context, resourceID string) error {
	if !c.Enabled() {
		return nil
	}
	return c.redis.Incr(ctx, generationKey(resourceID)).Err()
}
