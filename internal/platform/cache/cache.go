// Package cache provides an advisory TTL cache over Redis. Advisory means no
// caller ever fails because the cache failed; backend errors are swallowed
// and logged at debug
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"querypilot/internal/platform/logger"

	"github.com/redis/go-redis/v9"
)

// Cache is the advisory key-value seam
type Cache interface {
	// Get unmarshals the cached value into dst and reports whether it was present
	Get(ctx context.Context, key string, dst any) bool

	// Set stores value under key for ttl; failures are silent
	Set(ctx context.Context, key string, value any, ttl time.Duration)

	// Clear removes every key under this cache's prefix
	Clear(ctx context.Context)

	// KeyFrom derives a stable key from the given parts
	KeyFrom(parts ...any) string
}

// Config configures the Redis backing
type Config struct {
	Addr   string
	DB     int
	Prefix string
}

// Open connects to Redis and returns a working cache, or a Noop cache when
// the backend is unreachable. Caching is optional everywhere it is used
func Open(ctx context.Context, cfg Config) Cache {
	if cfg.Addr == "" {
		return Noop(cfg.Prefix)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Named("cache").Debug().Err(err).Msg("redis unavailable, caching disabled")
		_ = client.Close()
		return Noop(cfg.Prefix)
	}
	return &redisCache{client: client, prefix: orDefault(cfg.Prefix, "cache")}
}

// NewWithClient wraps an existing Redis client; used by tests and by callers
// that share one client across prefixes
func NewWithClient(client *redis.Client, prefix string) Cache {
	return &redisCache{client: client, prefix: orDefault(prefix, "cache")}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type redisCache struct {
	client *redis.Client
	prefix string
}

func (c *redisCache) key(k string) string { return c.prefix + ":" + k }

func (c *redisCache) Get(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.C(ctx).Debug().Err(err).Str("key", key).Msg("cache get failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.C(ctx).Debug().Err(err).Str("key", key).Msg("cache decode failed")
		return false
	}
	return true
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.C(ctx).Debug().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		logger.C(ctx).Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (c *redisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.C(ctx).Debug().Err(err).Str("key", iter.Val()).Msg("cache del failed")
		}
	}
	if err := iter.Err(); err != nil {
		logger.C(ctx).Debug().Err(err).Msg("cache clear scan failed")
	}
}

func (c *redisCache) KeyFrom(parts ...any) string { return KeyFrom(parts...) }

// KeyFrom derives a stable hex key from a canonical JSON serialization of
// parts. Order matters; KeyFrom(a,b) != KeyFrom(b,a) for distinct inputs
func KeyFrom(parts ...any) string {
	raw, err := json.Marshal(parts)
	if err != nil {
		// Fall back to a best-effort fingerprint; keys are advisory
		raw = []byte(time.Now().String())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Noop returns a cache that stores nothing and finds nothing
func Noop(prefix string) Cache { return noopCache{} }

type noopCache struct{}

func (noopCache) Get(context.Context, string, any) bool            { return false }
func (noopCache) Set(context.Context, string, any, time.Duration)  {}
func (noopCache) Clear(context.Context)                            {}
func (noopCache) KeyFrom(parts ...any) string                      { return KeyFrom(parts...) }
