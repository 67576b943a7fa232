package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/monitoring"
)

const (
	DefaultKeyPrefix   = "fieldalloc:postcode:"
	DefaultTTL         = 30 * 24 * time.Hour
	DefaultNegativeTTL = time.Hour
)

// CacheConfig configures the Redis cache.
type CacheConfig struct {
	KeyPrefix   string        `json:"key_prefix"`
	TTL         time.Duration `json:"ttl"`
	NegativeTTL time.Duration `json:"negative_ttl"`
}

type cachedCoordinates struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	NotFound bool    `json:"not_found,omitempty"`
}

// RedisCache caches another Geocoder's answers in Redis. Unknown postcodes
// are cached for NegativeTTL. Redis failures fall through to the upstream.
type RedisCache struct {
	client redis.UniversalClient
	next   geo.Geocoder
	cfg    CacheConfig
	log    logger.Logger
}

var _ geo.Geocoder = (*RedisCache)(nil)

func NewRedisCache(client redis.UniversalClient, next geo.Geocoder, cfg CacheConfig, log logger.Logger) *RedisCache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultNegativeTTL
	}
	return &RedisCache{client: client, next: next, cfg: cfg, log: logger.OrNop(log)}
}

func (c *RedisCache) key(pc string) string { return c.cfg.KeyPrefix + pc }

func (c *RedisCache) Lookup(ctx context.Context, postcode string) (model.Coordinates, error) {
	pc := geo.Normalize(postcode)
	data, err := c.client.Get(ctx, c.key(pc)).Bytes()
	switch {
	case err == nil:
		var v cachedCoordinates
		if jerr := json.Unmarshal(data, &v); jerr == nil {
			cacheResults.WithLabelValues("hit").Inc()
			if v.NotFound {
				return model.Coordinates{}, geo.ErrPostcodeNotFound
			}
			return model.Coordinates{Lat: v.Lat, Lng: v.Lng}, nil
		}
		c.log.Warnf("geocode: corrupt cache entry for %s", pc)
	case errors.Is(err, redis.Nil):
	default:
		cacheResults.WithLabelValues("error").Inc()
		c.log.Warnf("geocode: cache get %s: %v", pc, err)
		monitoring.Degraded("geocode", "cache_get", err)
	}
	cacheResults.WithLabelValues("miss").Inc()

	coord, err := c.next.Lookup(ctx, pc)
	switch {
	case err == nil:
		c.store(ctx, pc, cachedCoordinates{Lat: coord.Lat, Lng: coord.Lng}, c.cfg.TTL)
	case errors.Is(err, geo.ErrPostcodeNotFound):
		c.store(ctx, pc, cachedCoordinates{NotFound: true}, c.cfg.NegativeTTL)
	}
	return coord, err
}

func (c *RedisCache) store(ctx context.Context, pc string, v cachedCoordinates, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(pc), data, ttl).Err(); err != nil {
		c.log.Warnf("geocode: cache set %s: %v", pc, err)
	}
}

// Invalidate drops the cached answer for a postcode.
func (c *RedisCache) Invalidate(ctx context.Context, postcode string) error {
	return c.client.Del(ctx, c.key(geo.Normalize(postcode))).Err()
}
