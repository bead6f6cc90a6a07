package http

import (
	"errors"
	"net/http"

	"github.com/halaqa-hub/hifz-core/internal/infrastructure/scheduler"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReady handles the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// JobDTO describes a scheduled job.
type JobDTO struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Schedule    string  `json:"schedule"`
	NextRun     string  `json:"next_run,omitempty"`
	RunCount    int     `json:"run_count"`
	LastRun     *RunDTO `json:"last_run,omitempty"`
}

// RunDTO describes one job execution.
type RunDTO struct {
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Manual     bool   `json:"manual"`
}

func toRunDTO(r *scheduler.JobResult) *RunDTO {
	if r == nil {
		return nil
	}
	dto := &RunDTO{
		StartedAt:  r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		DurationMS: r.Duration.Milliseconds(),
		Success:    r.Success,
		Manual:     r.Manual,
	}
	if r.Error != nil {
		dto.Error = r.Error.Error()
	}
	return dto
}

// handleListJobs lists the registered jobs with their last results.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "scheduler_disabled", "The scheduler is disabled")
		return
	}

	infos := s.deps.Jobs.ListJobs()
	jobs := make([]JobDTO, 0, len(infos))
	for _, info := range infos {
		dto := JobDTO{
			Name:        info.Name,
			Description: info.Description,
			Schedule:    info.Schedule,
			RunCount:    info.RunCount,
			LastRun:     toRunDTO(info.LastResult),
		}
		if !info.NextRun.IsZero() {
			dto.NextRun = info.NextRun.UTC().Format("2006-01-02T15:04:05Z")
		}
		jobs = append(jobs, dto)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":    jobs,
		"metrics": s.deps.Jobs.GetMetrics().Snapshot(),
	})
}

// handleRunJob runs a job immediately and reports the outcome.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "scheduler_disabled", "The scheduler is disabled")
		return
	}

	name := r.PathValue("name")
	result, err := s.deps.Jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeJSONError(w, http.StatusNotFound, "job_not_found", "No job named "+name)
	case result == nil:
		writeJSONError(w, http.StatusInternalServerError, "job_failed", err.Error())
	default:
		status := http.StatusOK
		if !result.Success {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, toRunDTO(result))
	}
}
