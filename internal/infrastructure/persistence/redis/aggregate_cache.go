package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/halaqa-hub/hifz-core/pkg/circuitbreaker"
)

// AggregateCache stores cohort aggregates under a generation number. Invalidate
// bumps the generation so every earlier entry becomes unreachable at once; the
// orphaned keys expire on their own TTL.
//
// Reads and writes go through a circuit breaker: while Redis is unhealthy they
// fail immediately and the queries recompute. Invalidate always reaches Redis.
type AggregateCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewAggregateCache wraps cache. A non-positive ttl means TTLAggregate.
func NewAggregateCache(cache *Cache, ttl time.Duration, logger *slog.Logger) *AggregateCache {
	if ttl <= 0 {
		ttl = TTLAggregate
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "aggregate_cache")

	return &AggregateCache{
		cache: cache,
		ttl:   ttl,
		breaker: circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("cache circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		logger: logger,
	}
}

func (a *AggregateCache) generationKey() string {
	return a.cache.Key("agg", "gen")
}

func (a *AggregateCache) entryKey(gen int64, key string) string {
	return a.cache.Key("agg", strconv.FormatInt(gen, 10), key)
}

// Get implements query.AggregateCache.
func (a *AggregateCache) Get(ctx context.Context, key string, dest interface{}) (int64, bool, error) {
	var (
		gen   int64
		found bool
	)
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		gen, err = a.cache.GetInt(ctx, a.generationKey())
		if err != nil {
			return err
		}

		err = a.cache.Get(ctx, a.entryKey(gen, key), dest)
		switch {
		case errors.Is(err, ErrCacheMiss):
			return nil
		case errors.Is(err, ErrCacheSerialization):
			// A stale entry with an old shape is a miss, not an outage.
			a.logger.Debug("discarding undecodable aggregate", "key", key, "error", err)
			return nil
		case err != nil:
			return err
		}
		found = true
		return nil
	})
	return gen, found, err
}

// Set implements query.AggregateCache. The value is written under gen, so a
// result computed before a concurrent Invalidate lands in the retired generation.
func (a *AggregateCache) Set(ctx context.Context, gen int64, key string, value interface{}) error {
	return a.breaker.Execute(ctx, func(ctx context.Context) error {
		return a.cache.Set(ctx, a.entryKey(gen, key), value, a.ttl)
	})
}

// Invalidate implements command.CacheInvalidator.
func (a *AggregateCache) Invalidate(ctx context.Context) error {
	gen, err := a.cache.Incr(ctx, a.generationKey(), TTLGeneration)
	if err != nil {
		return err
	}
	a.logger.Debug("aggregates invalidated", "generation", gen)
	return nil
}
