package http

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// HealthCheckFunc performs a single health check and returns an error if it fails.
type HealthCheckFunc func(ctx context.Context) error

// Pinger is implemented by the database connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a HealthCheckFunc.
func PingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// HealthStatus represents the overall health status of the service.
type HealthStatus struct {
	// Healthy is false when any critical check failed.
	Healthy bool `json:"healthy"`

	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// HealthChecker runs named checks concurrently. A failing non-critical check
// (the optional cache) is reported but keeps the service healthy.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]registeredCheck
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]registeredCheck),
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// AddCheck adds a check that marks the service unhealthy when it fails.
func (c *HealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(name, check, true)
}

// AddOptionalCheck adds a check that is reported but never fails the service.
func (c *HealthChecker) AddOptionalCheck(name string, check HealthCheckFunc) {
	c.add(name, check, false)
}

func (c *HealthChecker) add(name string, check HealthCheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registeredCheck{fn: check, critical: critical}
}

// Check performs all health checks and returns the aggregated status.
func (c *HealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check registeredCheck) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			err := check.fn(checkCtx)

			result := CheckResult{
				Healthy:  err == nil,
				Critical: check.critical,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				result.Message = err.Error()
			}

			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	var failed []string
	for name, result := range status.Checks {
		if result.Healthy {
			continue
		}
		failed = append(failed, name)
		if result.Critical {
			status.Healthy = false
		}
	}
	sort.Strings(failed)

	switch {
	case len(checks) == 0:
		status.Message = "No health checks registered"
	case len(failed) == 0:
		status.Message = "All checks passed"
	default:
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}

	return status
}
