package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/logging"
)

const cacheKeyPrefix = "identity:credential:"

// cacheKey keeps raw credentials out of the cache keyspace.
func cacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Invalidator is implemented by resolvers that hold cached mappings.
type Invalidator interface {
	Invalidate(ctx context.Context, credential string) error
}

// Cache is the subset of a key/value store the cached resolver needs.
// Get returns ErrCacheMiss when the key is absent.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// ErrCacheMiss reports an absent cache key.
var ErrCacheMiss = errors.New("cache miss")

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache on a new client for addr.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping checks the connection to Redis.
func (c *RedisCache) Ping(ctx context.Context) error {
	if _, err := c.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("could not connect to Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedResolver is a read-through cache in front of another Resolver.
// Negative results are not cached, so a newly registered credential resolves
// on its next message. Cache failures fall through to the next Resolver.
type CachedResolver struct {
	next   Resolver
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

var _ Invalidator = (*CachedResolver)(nil)

// NewCachedResolver creates a new CachedResolver.
func NewCachedResolver(next Resolver, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedResolver {
	return &CachedResolver{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "identity_cache").Logger(),
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, credential string) (uint, error) {
	key := cacheKey(credential)
	val, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		id, perr := strconv.ParseUint(val, 10, 64)
		if perr == nil {
			return uint(id), nil
		}
		r.logger.Warn().Str("credential", logging.MaskCredential(credential)).Msg("Discarding unparsable cached account id")
	case !errors.Is(err, ErrCacheMiss):
		r.logger.Warn().Err(err).Msg("Identity cache read failed")
	}

	id, err := r.next.Resolve(ctx, credential)
	if err != nil {
		return 0, err
	}
	if err := r.cache.Set(ctx, key, strconv.FormatUint(uint64(id), 10), r.ttl); err != nil {
		r.logger.Warn().Err(err).Msg("Identity cache write failed")
	}
	return id, nil
}

// Invalidate drops the cached mapping of credential. Broker sessions call it
// on every (re)connect so a reassigned credential is re-read from storage.
func (r *CachedResolver) Invalidate(ctx context.Context, credential string) error {
	if err := r.cache.Del(ctx, cacheKey(credential)); err != nil {
		return fmt.Errorf("invalidate credential: %w", err)
	}
	return nil
}
