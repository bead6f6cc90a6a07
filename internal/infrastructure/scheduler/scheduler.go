// Package scheduler runs the periodic jobs of the hifz worker (streak back-fill,
// aggregate warm-up) on top of gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job runs: either every fixed interval or on a cron
// expression.
type Schedule struct {
	Every time.Duration
	Cron  string

	// RunOnStart runs the job once as soon as the scheduler starts.
	RunOnStart bool
}

// Every returns an interval schedule.
func Every(d time.Duration) Schedule {
	return Schedule{Every: d}
}

// Cron returns a schedule driven by a five-field cron expression.
func Cron(expr string) Schedule {
	return Schedule{Cron: expr}
}

// Validate checks that exactly one trigger is set.
func (s Schedule) Validate() error {
	switch {
	case s.Cron != "" && s.Every > 0:
		return errors.New("schedule: both interval and cron expression set")
	case s.Cron == "" && s.Every <= 0:
		return ErrNilSchedule
	}
	return nil
}

// String returns a human-readable representation of the schedule.
func (s Schedule) String() string {
	if s.Cron != "" {
		return "cron(" + s.Cron + ")"
	}
	return "every " + s.Every.String()
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs. A job never overlaps with a
// still-running execution of itself.
type Scheduler struct {
	mu sync.RWMutex

	cron     *gocron.Scheduler
	logger   *slog.Logger
	timezone *time.Location

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	metrics  *SchedulerMetrics
	exported *exportedMetrics
	lastRuns map[string]*JobResult
}

type scheduledJob struct {
	job      Job
	schedule Schedule
	handle   *gocron.Job
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone for cron expressions (default: UTC).
	Timezone *time.Location

	// Registerer receives the job run counters and durations. Nil disables export.
	Registerer prometheus.Registerer
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}

	cron := gocron.NewScheduler(config.Timezone)
	cron.SingletonModeAll()

	return &Scheduler{
		cron:     cron,
		logger:   config.Logger.With("component", "scheduler"),
		timezone: config.Timezone,
		jobs:     make(map[string]*scheduledJob),
		ctx:      context.Background(),
		metrics:  NewSchedulerMetrics(),
		exported: newExportedMetrics(config.Registerer),
		lastRuns: make(map[string]*JobResult),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if err := schedule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{job: job, schedule: schedule}

	builder := s.cron
	if schedule.Cron != "" {
		builder = builder.Cron(schedule.Cron)
	} else {
		builder = builder.Every(schedule.Every)
	}
	if !schedule.RunOnStart {
		builder = builder.WaitForSchedule()
	}

	handle, err := builder.Tag(name).Do(func() {
		s.execute(s.runContext(), sj, false)
	})
	if err != nil {
		return fmt.Errorf("scheduler: failed to schedule %s: %w", name, err)
	}
	sj.handle = handle
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", schedule.String(),
	)

	return nil
}

// Unregister removes a job from the scheduler.
func (s *Scheduler) Unregister(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	if err := s.cron.RemoveByTag(jobName); err != nil {
		return err
	}
	delete(s.jobs, jobName)
	s.logger.Info("job unregistered", "job", jobName)

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins running the registered jobs. ctx is handed to every execution and
// its cancellation interrupts running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.StartAsync()
	s.logger.Info("scheduler started", "jobs_count", count)

	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.cron.Stop()

	s.logger.Info("scheduler stopped",
		"uptime", time.Since(s.startedAt).String(),
	)

	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// execute runs a job once and records the result.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) *JobResult {
	jobName := sj.job.Name()
	startedAt := time.Now()

	s.logger.Info("job started", "job", jobName, "manual", manual)

	err := sj.job.Run(ctx)
	completedAt := time.Now()
	duration := completedAt.Sub(startedAt)

	result := &JobResult{
		JobName:     jobName,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    duration,
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}

	s.metrics.RecordExecution(jobName, duration, err == nil)
	s.exported.observe(jobName, duration, err == nil, manual)

	s.mu.Lock()
	s.lastRuns[jobName] = result
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			"job", jobName,
			"duration", duration.String(),
			"error", err,
		)
	} else {
		s.logger.Info("job completed",
			"job", jobName,
			"duration", duration.String(),
		)
	}

	return result
}

// RunNow immediately executes a job by name, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	result := s.execute(ctx, sj, true)
	return result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	NextRun     time.Time
	RunCount    int
	LastResult  *JobResult
}

// ListJobs returns information about all registered jobs ordered by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			LastResult:  s.lastRuns[name],
		}
		if sj.handle != nil {
			info.NextRun = sj.handle.NextRun()
			info.RunCount = sj.handle.RunCount()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// GetMetrics returns scheduler metrics.
func (s *Scheduler) GetMetrics() *SchedulerMetrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks scheduler performance metrics.
type SchedulerMetrics struct {
	mu sync.RWMutex

	TotalExecutions int64
	TotalSuccesses  int64
	TotalFailures   int64
	TotalDuration   time.Duration

	ExecutionsByJob map[string]int64
	FailuresByJob   map[string]int64
}

// NewSchedulerMetrics creates a new metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		ExecutionsByJob: make(map[string]int64),
		FailuresByJob:   make(map[string]int64),
	}
}

// RecordExecution records a job execution.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalExecutions++
	m.TotalDuration += duration
	m.ExecutionsByJob[jobName]++

	if success {
		m.TotalSuccesses++
	} else {
		m.TotalFailures++
		m.FailuresByJob[jobName]++
	}
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avgDuration time.Duration
	if m.TotalExecutions > 0 {
		avgDuration = m.TotalDuration / time.Duration(m.TotalExecutions)
	}

	var successRate float64
	if m.TotalExecutions > 0 {
		successRate = float64(m.TotalSuccesses) / float64(m.TotalExecutions)
	}

	return MetricsSnapshot{
		TotalExecutions: m.TotalExecutions,
		TotalSuccesses:  m.TotalSuccesses,
		TotalFailures:   m.TotalFailures,
		SuccessRate:     successRate,
		AverageDuration: avgDuration,
	}
}

// MetricsSnapshot is a point-in-time snapshot of scheduler metrics.
type MetricsSnapshot struct {
	TotalExecutions int64
	TotalSuccesses  int64
	TotalFailures   int64
	SuccessRate     float64
	AverageDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = fmt.Errorf("job cannot be nil")

	// ErrNilSchedule is returned when a schedule has neither interval nor cron expression.
	ErrNilSchedule = fmt.Errorf("schedule cannot be empty")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = fmt.Errorf("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = fmt.Errorf("job not found")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = fmt.Errorf("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = fmt.Errorf("scheduler is not running")
)
