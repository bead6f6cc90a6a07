package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/application/query"
	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM AGGREGATES JOB
// ══════════════════════════════════════════════════════════════════════════════

// AggregateQueries are the cohort queries the warm-up job primes.
type AggregateQueries struct {
	Leaderboard interface {
		Handle(ctx context.Context, q query.GetStreakLeaderboardQuery) (*query.GetStreakLeaderboardResult, error)
	}
	Overview interface {
		Handle(ctx context.Context, q query.GetTargetOverviewQuery) (*query.GetTargetOverviewResult, error)
	}
	DailyStats interface {
		Handle(ctx context.Context, q query.GetDailyAchievementStatsQuery) (*query.GetDailyAchievementStatsResult, error)
	}
}

// WarmAggregatesJob runs the default cohort aggregates for the whole roster and
// for every halaqa so teacher dashboards are served from cache.
type WarmAggregatesJob struct {
	queries   AggregateQueries
	directory halaqa.Directory
	logger    *slog.Logger
	config    WarmAggregatesConfig
}

// WarmAggregatesConfig contains configuration for the warm-up job.
type WarmAggregatesConfig struct {
	// LeaderboardLimit is the limit the leaderboards are primed with.
	LeaderboardLimit int

	// Timeout is the maximum duration of one run.
	Timeout time.Duration
}

// DefaultWarmAggregatesConfig returns sensible defaults.
func DefaultWarmAggregatesConfig() WarmAggregatesConfig {
	return WarmAggregatesConfig{
		LeaderboardLimit: 10,
		Timeout:          2 * time.Minute,
	}
}

// NewWarmAggregatesJob creates a new warm-up job. Nil queries are skipped.
func NewWarmAggregatesJob(
	queries AggregateQueries,
	directory halaqa.Directory,
	logger *slog.Logger,
	config WarmAggregatesConfig,
) *WarmAggregatesJob {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWarmAggregatesConfig()
	if config.LeaderboardLimit <= 0 {
		config.LeaderboardLimit = defaults.LeaderboardLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &WarmAggregatesJob{
		queries:   queries,
		directory: directory,
		logger:    logger.With("job", "warm_aggregates"),
		config:    config,
	}
}

// Name returns the job name.
func (j *WarmAggregatesJob) Name() string {
	return "warm_aggregates"
}

// Description returns a human-readable description.
func (j *WarmAggregatesJob) Description() string {
	return "Primes the aggregate cache for every halaqa"
}

// Run executes the job. A failing scope is logged and the remaining scopes are
// still warmed; the joined errors are returned at the end.
func (j *WarmAggregatesJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	halaqat, err := j.directory.ListHalaqat(ctx, halaqa.Scope{})
	if err != nil {
		return fmt.Errorf("warm aggregates: failed to list halaqat: %w", err)
	}

	scopes := make([]halaqa.Scope, 0, len(halaqat)+1)
	scopes = append(scopes, halaqa.Scope{})
	for _, h := range halaqat {
		scopes = append(scopes, halaqa.Scope{HalaqaID: h.ID})
	}

	var errs []error
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := j.warm(ctx, scope); err != nil {
			j.logger.Warn("failed to warm scope", "halaqa_id", scope.HalaqaID, "error", err)
			errs = append(errs, err)
		}
	}

	j.logger.Info("aggregates warmed", "scopes", len(scopes), "failed", len(errs))
	return errors.Join(errs...)
}

func (j *WarmAggregatesJob) warm(ctx context.Context, scope halaqa.Scope) error {
	if j.queries.Leaderboard != nil {
		if _, err := j.queries.Leaderboard.Handle(ctx, query.GetStreakLeaderboardQuery{
			Scope: scope,
			Limit: j.config.LeaderboardLimit,
		}); err != nil {
			return fmt.Errorf("leaderboard: %w", err)
		}
	}
	if j.queries.Overview != nil {
		if _, err := j.queries.Overview.Handle(ctx, query.GetTargetOverviewQuery{Scope: scope}); err != nil {
			return fmt.Errorf("target overview: %w", err)
		}
	}
	if j.queries.DailyStats != nil {
		if _, err := j.queries.DailyStats.Handle(ctx, query.GetDailyAchievementStatsQuery{Scope: scope}); err != nil {
			return fmt.Errorf("daily stats: %w", err)
		}
	}
	return nil
}
