package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSchedule_Validate(t *testing.T) {
	assert.NoError(t, Every(time.Minute).Validate())
	assert.NoError(t, Cron("0 3 * * *").Validate())
	assert.ErrorIs(t, Schedule{}.Validate(), ErrNilSchedule)
	assert.Error(t, Schedule{Every: time.Minute, Cron: "* * * * *"}.Validate())

	assert.Equal(t, "every 1h0m0s", Every(time.Hour).String())
	assert.Equal(t, "cron(0 3 * * *)", Cron("0 3 * * *").String())
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, Every(time.Hour)))
	assert.ErrorIs(t, s.Register(job, Every(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, Schedule{}), ErrNilSchedule)

	require.NoError(t, s.Register(&countingJob{name: "c"}, Cron("30 2 * * *")))

	infos := s.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "every 1h0m0s", infos[0].Schedule)
	assert.Equal(t, "c", infos[1].Name)

	require.NoError(t, s.Unregister("a"))
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
	assert.Len(t, s.ListJobs(), 1)
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.Register(ok, Every(time.Hour)))
	require.NoError(t, s.Register(failing, Every(time.Hour)))

	result, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Manual)
	assert.Equal(t, int32(1), ok.runs.Load())

	result, err = s.RunNow(context.Background(), "failing")
	assert.EqualError(t, err, "boom")
	assert.False(t, result.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 1e-9)

	for _, info := range s.ListJobs() {
		require.NotNil(t, info.LastResult)
		assert.Equal(t, info.Name, info.LastResult.JobName)
	}
}

func TestScheduler_StartRunsOnStart(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "eager"}
	lazy := &countingJob{name: "lazy"}
	require.NoError(t, s.Register(job, Schedule{Every: time.Hour, RunOnStart: true}))
	require.NoError(t, s.Register(lazy, Every(time.Hour)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), lazy.runs.Load())

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_ExportsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	newScheduler := func() *Scheduler {
		return NewScheduler(SchedulerConfig{
			Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
			Registerer: reg,
		})
	}

	// Two schedulers on one registry share the collectors.
	first, second := newScheduler(), newScheduler()
	require.NoError(t, first.Register(&countingJob{name: "ok"}, Every(time.Hour)))
	require.NoError(t, second.Register(&countingJob{name: "failing", err: errors.New("boom")}, Every(time.Hour)))

	_, err := first.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	_, err = second.RunNow(context.Background(), "failing")
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	runs := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "hifz_scheduler_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			runs[labels["job"]+"/"+labels["status"]] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"ok/success": 1, "failing/failure": 1}, runs)
}
