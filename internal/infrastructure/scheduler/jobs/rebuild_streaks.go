// Package jobs contains the scheduled jobs of the hifz worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/halaqa-hub/hifz-core/internal/application/command"
	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD STREAKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// StreakRebuilder is the part of the rebuild handler the job depends on.
type StreakRebuilder interface {
	HandleAll(ctx context.Context, cmd command.RebuildStreaksCommand) (*command.RebuildStreaksResult, error)
}

// RebuildStreaksJob replays recent history for every targeted student and
// corrects stored streaks that drifted through back-dated or deleted entries.
type RebuildStreaksJob struct {
	rebuilder StreakRebuilder
	logger    *slog.Logger
	config    RebuildStreaksConfig

	lastResult atomic.Pointer[command.RebuildStreaksResult]
}

// RebuildStreaksConfig contains configuration for the rebuild job.
type RebuildStreaksConfig struct {
	// Scope limits the rebuild; the zero value covers every student.
	Scope halaqa.Scope

	// Timeout is the maximum duration of one run.
	Timeout time.Duration
}

// DefaultRebuildStreaksConfig returns sensible defaults.
func DefaultRebuildStreaksConfig() RebuildStreaksConfig {
	return RebuildStreaksConfig{
		Timeout: 15 * time.Minute,
	}
}

// NewRebuildStreaksJob creates a new rebuild job.
func NewRebuildStreaksJob(rebuilder StreakRebuilder, logger *slog.Logger, config RebuildStreaksConfig) *RebuildStreaksJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRebuildStreaksConfig().Timeout
	}

	return &RebuildStreaksJob{
		rebuilder: rebuilder,
		logger:    logger.With("job", "rebuild_streaks"),
		config:    config,
	}
}

// Name returns the job name.
func (j *RebuildStreaksJob) Name() string {
	return "rebuild_streaks"
}

// Description returns a human-readable description.
func (j *RebuildStreaksJob) Description() string {
	return "Recomputes stored streaks from recorded history"
}

// Run executes the job.
func (j *RebuildStreaksJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result, err := j.rebuilder.HandleAll(ctx, command.RebuildStreaksCommand{Scope: j.config.Scope})
	if err != nil {
		return fmt.Errorf("rebuild streaks: %w", err)
	}
	j.lastResult.Store(result)

	if result.Failed > 0 {
		j.logger.Warn("some streaks could not be rebuilt",
			"failed", result.Failed,
			"students", result.Students,
		)
	}

	return nil
}

// LastResult returns the summary of the last successful run, or nil.
func (j *RebuildStreaksJob) LastResult() *command.RebuildStreaksResult {
	return j.lastResult.Load()
}
