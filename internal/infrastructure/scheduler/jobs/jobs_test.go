package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halaqa-hub/hifz-core/internal/application/command"
	"github.com/halaqa-hub/hifz-core/internal/application/query"
	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/infrastructure/persistence/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// ──────────────────────────────────────────────────────────────────────────────
// Rebuild streaks
// ──────────────────────────────────────────────────────────────────────────────

type fakeRebuilder struct {
	got    command.RebuildStreaksCommand
	result *command.RebuildStreaksResult
	err    error
}

func (f *fakeRebuilder) HandleAll(ctx context.Context, cmd command.RebuildStreaksCommand) (*command.RebuildStreaksResult, error) {
	f.got = cmd
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a deadline")
	}
	return f.result, f.err
}

func TestRebuildStreaksJob(t *testing.T) {
	rebuilder := &fakeRebuilder{result: &command.RebuildStreaksResult{Students: 3, Changed: 1}}
	job := NewRebuildStreaksJob(rebuilder, discard, RebuildStreaksConfig{Scope: halaqa.Scope{TeacherID: "t-1"}})

	assert.Equal(t, "rebuild_streaks", job.Name())
	assert.Nil(t, job.LastResult())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "t-1", rebuilder.got.Scope.TeacherID)
	require.NotNil(t, job.LastResult())
	assert.Equal(t, 1, job.LastResult().Changed)

	rebuilder.err = errors.New("db down")
	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 1, job.LastResult().Changed)
}

// ──────────────────────────────────────────────────────────────────────────────
// Warm aggregates
// ──────────────────────────────────────────────────────────────────────────────

type recordingQueries struct {
	mu     sync.Mutex
	scopes []string
	fail   string
}

func (r *recordingQueries) seen(kind string, scope halaqa.Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, kind+":"+scope.HalaqaID)
	if scope.HalaqaID != "" && scope.HalaqaID == r.fail {
		return errors.New("unavailable")
	}
	return nil
}

type leaderboardFunc func(context.Context, query.GetStreakLeaderboardQuery) (*query.GetStreakLeaderboardResult, error)

func (f leaderboardFunc) Handle(ctx context.Context, q query.GetStreakLeaderboardQuery) (*query.GetStreakLeaderboardResult, error) {
	return f(ctx, q)
}

type overviewFunc func(context.Context, query.GetTargetOverviewQuery) (*query.GetTargetOverviewResult, error)

func (f overviewFunc) Handle(ctx context.Context, q query.GetTargetOverviewQuery) (*query.GetTargetOverviewResult, error) {
	return f(ctx, q)
}

func newWarmFixture(t *testing.T, fail string) (*WarmAggregatesJob, *recordingQueries) {
	t.Helper()

	directory := memory.NewDirectory()
	directory.AddHalaqa(&halaqa.Halaqa{ID: "h-1", TeacherID: "t-1"})
	directory.AddHalaqa(&halaqa.Halaqa{ID: "h-2", TeacherID: "t-2"})

	rec := &recordingQueries{fail: fail}
	queries := AggregateQueries{
		Leaderboard: leaderboardFunc(func(ctx context.Context, q query.GetStreakLeaderboardQuery) (*query.GetStreakLeaderboardResult, error) {
			if q.Limit != 25 {
				return nil, errors.New("unexpected limit")
			}
			return &query.GetStreakLeaderboardResult{}, rec.seen("leaderboard", q.Scope)
		}),
		Overview: overviewFunc(func(ctx context.Context, q query.GetTargetOverviewQuery) (*query.GetTargetOverviewResult, error) {
			return &query.GetTargetOverviewResult{}, rec.seen("overview", q.Scope)
		}),
	}

	job := NewWarmAggregatesJob(queries, directory, discard, WarmAggregatesConfig{
		LeaderboardLimit: 25,
		Timeout:          time.Second,
	})
	return job, rec
}

func TestWarmAggregatesJob(t *testing.T) {
	job, rec := newWarmFixture(t, "")

	assert.Equal(t, "warm_aggregates", job.Name())
	require.NoError(t, job.Run(context.Background()))

	assert.ElementsMatch(t, []string{
		"leaderboard:", "overview:",
		"leaderboard:h-1", "overview:h-1",
		"leaderboard:h-2", "overview:h-2",
	}, rec.scopes)
}

func TestWarmAggregatesJob_ContinuesAfterFailure(t *testing.T) {
	job, rec := newWarmFixture(t, "h-1")

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "unavailable")

	// The failing scope stops after its leaderboard; the other scopes still run.
	assert.Contains(t, rec.scopes, "overview:h-2")
	assert.NotContains(t, rec.scopes, "overview:h-1")
}
