package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type jobStatus string

const (
	jobRunning   jobStatus = "running"
	jobCompleted jobStatus = "completed"
	jobFailed    jobStatus = "failed"
)

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    jobStatus          `json:"status"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

// startScanJob runs a scan in the background. Only one scan job runs at a time; a second
// request gets 409 with the running job's id.
func (s *Server) startScanJob(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == jobRunning {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A scan is already running",
			"job_id": job.ID,
		})
	}

	// Detached from the request so the scan outlives it.
	jobCtx, jobCancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.scanTTL)

	job := &backgroundJob{
		ID:        uuid.New().String()[:8],
		Status:    jobRunning,
		StartedAt: s.now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		res, err := s.Scanner.Scan(jobCtx)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = s.now()
		if err != nil {
			job.Status = jobFailed
			job.Error = err.Error()
			s.Log.Error("scan job failed", "job_id", job.ID, "error", err)
			return
		}
		job.Status = jobCompleted
		job.Result = res
		s.Log.Info("scan job completed", "job_id", job.ID, "count", res.Count, "inserted", res.Inserted)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Scan started",
		"job_id":  job.ID,
		"poll":    fmt.Sprintf("/api/leads/scan/%s", job.ID),
	})
}

func (s *Server) handleScanJob(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return jsonError(c, http.StatusNotFound, "job not found")
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

// cancelJob stops a running scan job, if any.
func (s *Server) cancelJob() {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.runningJob != nil && s.runningJob.Status == jobRunning && s.runningJob.Cancel != nil {
		s.runningJob.Cancel()
	}
}
