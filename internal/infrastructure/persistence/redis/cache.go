// Package redis implements the Redis-backed cache of the hifz core. Cohort
// aggregates (leaderboards, overviews, rollups) are stored here so several
// worker replicas share one cache and one invalidation point.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string

	// DB is the Redis database number (0-15).
	DB int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration

	// Namespace prefixes every key written by this process.
	Namespace string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		Namespace:    "hifz",
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned when the requested key is not found in cache.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when Redis connection fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization is returned when serialization/deserialization fails.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheInvalidTTL is returned when an invalid TTL is provided.
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")

	// ErrCacheNilValue is returned when attempting to cache a nil value.
	ErrCacheNilValue = errors.New("cache: value cannot be nil")
)

// Default TTL values.
const (
	// TTLAggregate is how long a cohort aggregate may be served stale.
	TTLAggregate = 5 * time.Minute

	// TTLGeneration keeps the generation counter alive well beyond any aggregate.
	TTLGeneration = 7 * 24 * time.Hour
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache provides JSON caching with TTL management over Redis.
type Cache struct {
	client *redis.Client
	config Config
}

// NewCache creates a new Cache and verifies the server is reachable.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &Cache{
		client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Key joins parts under the configured namespace.
func (c *Cache) Key(parts ...string) string {
	return namespacedKey(c.config.Namespace, parts...)
}

// ══════════════════════════════════════════════════════════════════════════════
// BASIC OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Set stores a JSON-encoded value with the given key and TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if value == nil {
		return ErrCacheNilValue
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get retrieves and decodes a value by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return nil
}

// GetInt returns a counter, or 0 when the key does not exist.
func (c *Cache) GetInt(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, ErrCacheKeyEmpty
	}

	n, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Incr increments a counter, refreshes its TTL and returns the new value.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, ErrCacheKeyEmpty
	}

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func namespacedKey(namespace string, parts ...string) string {
	key := namespace
	for _, p := range parts {
		if key == "" {
			key = p
			continue
		}
		key += ":" + p
	}
	return key
}
