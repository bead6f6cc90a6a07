package command

import (
	"context"
	"log/slog"
)

// CacheInvalidator drops memoized cohort aggregates after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// invalidate never fails the write: a stale aggregate expires on its own TTL.
func invalidate(ctx context.Context, cache CacheInvalidator, logger *slog.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx); err != nil {
		logger.Warn("failed to invalidate aggregate cache", "error", err)
	}
}
