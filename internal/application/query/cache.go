// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE CACHE
// Time-boxed memoization of cohort aggregates. Lives outside the handlers and is
// invalidated by every command that writes progress or targets.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateCache stores computed cohort results.
type AggregateCache interface {
	// Get loads the value stored under key into dest. It reports false on a miss
	// and returns the generation the lookup was made in.
	Get(ctx context.Context, key string, dest interface{}) (gen int64, found bool, err error)

	// Set stores value under key in generation gen for the cache's TTL. A value
	// stored in a generation that has since been invalidated is never served.
	Set(ctx context.Context, gen int64, key string, value interface{}) error
}

// cacheSlot is where a computed aggregate goes: the key and the generation the
// miss was observed in. A zero slot is not writable.
type cacheSlot struct {
	key      string
	gen      int64
	writable bool
}

// cacheKey builds a stable key from a query kind, its scope and extra parts.
func cacheKey(kind string, scope halaqa.Scope, parts ...string) string {
	var b strings.Builder
	b.WriteString(kind)
	fmt.Fprintf(&b, ":t=%s:h=%s", scope.TeacherID, scope.HalaqaID)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

func dateKey(t time.Time) string {
	return timeutil.FormatDate(t)
}

// tryGetFromCache reads a cached aggregate. Cache failures count as misses and
// leave the slot unwritable, since the current generation is unknown.
func tryGetFromCache(ctx context.Context, cache AggregateCache, key string, dest interface{}, logger *slog.Logger) (cacheSlot, bool) {
	if cache == nil {
		return cacheSlot{}, false
	}
	gen, hit, err := cache.Get(ctx, key, dest)
	if err != nil {
		logger.Warn("aggregate cache read failed", "key", key, "error", err)
		return cacheSlot{}, false
	}
	return cacheSlot{key: key, gen: gen, writable: true}, hit
}

// storeInCache writes an aggregate into the slot its lookup missed, logging failures.
func storeInCache(ctx context.Context, cache AggregateCache, slot cacheSlot, value interface{}, logger *slog.Logger) {
	if cache == nil || !slot.writable {
		return
	}
	if err := cache.Set(ctx, slot.gen, slot.key, value); err != nil {
		logger.Warn("aggregate cache write failed", "key", slot.key, "error", err)
	}
}

// percent returns part/whole as a percentage in [0, 100], and 0 when whole is 0.
func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	p := part / whole * 100
	if p > 100 {
		p = 100
	}
	return round2(p)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
