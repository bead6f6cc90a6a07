package scheduler

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// exportedMetrics mirrors SchedulerMetrics as Prometheus collectors.
type exportedMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newExportedMetrics(reg prometheus.Registerer) *exportedMetrics {
	if reg == nil {
		return nil
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hifz",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Job executions by job, outcome and trigger.",
	}, []string{"job", "status", "manual"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hifz",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Job execution time.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"job"})

	return &exportedMetrics{
		runs:     register(reg, runs),
		duration: register(reg, duration),
	}
}

// register returns the already registered collector when another scheduler
// shares the registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *exportedMetrics) observe(jobName string, d time.Duration, success, manual bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.runs.WithLabelValues(jobName, status, strconv.FormatBool(manual)).Inc()
	m.duration.WithLabelValues(jobName).Observe(d.Seconds())
}
