// Package main is the entry point of the hifz worker.
//
// The worker owns the background side of the progress core:
//   - replaying recent history to correct stored streaks (back-dated or deleted entries)
//   - priming the cohort aggregate cache for teacher dashboards
//   - health, metrics and job endpoints for operators
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/halaqa-hub/hifz-core/config"
	"github.com/halaqa-hub/hifz-core/internal/application/command"
	"github.com/halaqa-hub/hifz-core/internal/application/query"
	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/linetable"
	"github.com/halaqa-hub/hifz-core/internal/infrastructure/persistence/memory"
	"github.com/halaqa-hub/hifz-core/internal/infrastructure/persistence/postgres"
	"github.com/halaqa-hub/hifz-core/internal/infrastructure/persistence/redis"
	"github.com/halaqa-hub/hifz-core/internal/infrastructure/reference"
	"github.com/halaqa-hub/hifz-core/internal/infrastructure/scheduler"
	"github.com/halaqa-hub/hifz-core/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/halaqa-hub/hifz-core/internal/interface/http"
	"github.com/halaqa-hub/hifz-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// aggregateStore is both the read side used by queries and the invalidation
// hook used by commands.
type aggregateStore interface {
	query.AggregateCache
	command.CacheInvalidator
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting hifz worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	pgCfg := postgres.DefaultConfig()
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.LockTimeout = cfg.Database.LockTimeout

	// The database may still be starting when the worker comes up.
	dbConn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, pgCfg)
		if err != nil {
			return nil, retry.Retryable(err)
		}
		return conn, nil
	},
		retry.WithMaxAttempts(5),
		retry.WithInitialDelay(time.Second),
		retry.WithMaxDelay(10*time.Second),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("database not reachable, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()
	log.Info("database connection established")

	health := httpapi.NewHealthChecker(cfg.App.Version)
	health.AddCheck("database", httpapi.PingCheck(dbConn))

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Database.AutoMigrate {
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		status, err := migrator.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		version := 0
		for _, m := range status {
			if m.IsApplied && m.Version > version {
				version = m.Version
			}
		}
		log.Info("database schema is up to date", "version", version)
	}

	entries := postgres.NewProgressRepository(dbConn)
	targets := postgres.NewTargetRepository(dbConn)
	directory := postgres.NewDirectory(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. AGGREGATE CACHE (Redis, falling back to in-process)
	// ─────────────────────────────────────────────────────────────────────────
	var cache aggregateStore = memory.NewAggregateCache(cfg.Redis.AggregateTTL)

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
		redisCfg.Namespace = cfg.Redis.Namespace

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, using in-process cache", "addr", redisCfg.Addr(), "error", err)
		} else {
			defer redisCache.Close()
			cache = redis.NewAggregateCache(redisCache, cfg.Redis.AggregateTTL, log)
			health.AddOptionalCheck("cache", httpapi.PingCheck(redisCache))
			log.Info("Redis connection established", "addr", redisCfg.Addr())
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REFERENCE DATA
	// ─────────────────────────────────────────────────────────────────────────
	var table linetable.Table
	if path := cfg.Curriculum.LineTablePath; path != "" {
		table, _, err = reference.LoadLineTable(path, cfg.Curriculum.LineTableSheet, log)
		if err != nil {
			return fmt.Errorf("failed to load line table: %w", err)
		}
	} else {
		log.Warn("no line table configured, every verse counts as one line")
	}
	codec := linetable.NewCodec(table, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	loc := cfg.App.Location

	rebuild := command.NewRebuildStreakHandler(targets, entries, directory, cache, command.RebuildStreakHandlerConfig{
		WindowDays:  cfg.Streak.RebuildWindowDays,
		Parallelism: cfg.Streak.Parallelism,
		Location:    loc,
	}, log)

	queries := jobs.AggregateQueries{
		Leaderboard: query.NewGetStreakLeaderboardHandler(targets, directory, cache, log),
		Overview:    query.NewGetTargetOverviewHandler(targets, entries, directory, cache, loc, log),
		DailyStats:  query.NewGetDailyAchievementStatsHandler(targets, entries, directory, cache, loc, cfg.Streak.Parallelism, log),
	}

	stats := codec.Stats()
	log.Info("line codec ready",
		"verses", stats.Verses,
		"missing", stats.Missing,
		"total_lines", linetable.Round(stats.TotalLines),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = setupScheduler(cfg, log, metrics, rebuild, queries, directory)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		for _, info := range sched.ListJobs() {
			log.Info("job scheduled", "job", info.Name, "schedule", info.Schedule, "next_run", info.NextRun)
		}
	} else {
		log.Info("scheduler disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. OPERATIONAL HTTP
	// ─────────────────────────────────────────────────────────────────────────
	var server *httpapi.Server
	var serverErr <-chan error
	if cfg.HTTP.Enabled {
		httpCfg := httpapi.DefaultConfig()
		httpCfg.Host = cfg.HTTP.Host
		httpCfg.Port = cfg.HTTP.Port
		httpCfg.Version = cfg.App.Version

		deps := httpapi.Dependencies{Health: health, Metrics: metrics, Logger: log}
		if sched != nil {
			deps.Jobs = sched
		}
		server = httpapi.NewServer(httpCfg, deps)
		serverErr = server.StartAsync()
	}

	log.Info("hifz worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal", "timeout", cfg.App.ShutdownTimeout.String())
	case err := <-serverErr:
		if err != nil {
			log.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown failed", "error", err)
		}
	}

	if sched != nil {
		done := make(chan error, 1)
		go func() { done <- sched.Stop() }()

		select {
		case err := <-done:
			if err != nil {
				log.Warn("scheduler stop failed", "error", err)
			}
		case <-shutdownCtx.Done():
			log.Warn("shutdown timed out waiting for running jobs")
		}

		snap := sched.GetMetrics().Snapshot()
		log.Info("scheduler stopped",
			"job_runs", snap.TotalExecutions,
			"job_failures", snap.TotalFailures,
		)
	}

	log.Info("shutdown completed")
	return nil
}

// setupScheduler registers the worker jobs.
func setupScheduler(
	cfg *config.Config,
	log *slog.Logger,
	reg prometheus.Registerer,
	rebuild jobs.StreakRebuilder,
	queries jobs.AggregateQueries,
	directory halaqa.Directory,
) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:     log,
		Timezone:   cfg.App.Location,
		Registerer: reg,
	})

	if cfg.Scheduler.RebuildCron != "" {
		job := jobs.NewRebuildStreaksJob(rebuild, log, jobs.RebuildStreaksConfig{
			Timeout: cfg.Scheduler.JobTimeout,
		})
		if err := sched.Register(job, scheduler.Cron(cfg.Scheduler.RebuildCron)); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", job.Name(), err)
		}
	}

	if cfg.Scheduler.WarmInterval > 0 {
		job := jobs.NewWarmAggregatesJob(queries, directory, log, jobs.WarmAggregatesConfig{
			LeaderboardLimit: cfg.Streak.LeaderboardLimit,
			Timeout:          cfg.Scheduler.JobTimeout,
		})
		schedule := scheduler.Every(cfg.Scheduler.WarmInterval)
		schedule.RunOnStart = true
		if err := sched.Register(job, schedule); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", job.Name(), err)
		}
	}

	return sched, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging from the observability settings.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("app", cfg.App.Name)
	slog.SetDefault(log)

	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
