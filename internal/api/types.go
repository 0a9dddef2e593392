package api

import (
	"time"

	"minutes/internal/pipeline"
	"minutes/internal/tasks"
)

// HealthResponse answers GET /api/health.
type HealthResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	ActiveRuns int       `json:"active_runs"`
}

// SubmitRequest is the body of POST /api/tasks. Options omitted from the
// body keep their pipeline defaults.
type SubmitRequest struct {
	Path string `json:"path"`
	pipeline.Options
}

// SubmitResponse acknowledges an accepted task.
type SubmitResponse struct {
	TaskID  string       `json:"task_id"`
	FileID  string       `json:"file_id,omitempty"`
	Status  tasks.Status `json:"status"`
	Message string       `json:"message"`
}

// TaskListResponse answers GET /api/tasks.
type TaskListResponse struct {
	Tasks []tasks.Task `json:"tasks"`
}

// CleanupRequest is the body of POST /api/tasks/cleanup. A zero age uses
// the configured result retention.
type CleanupRequest struct {
	MaxAgeHours float64 `json:"max_age_hours,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
