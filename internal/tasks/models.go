package tasks

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var statusSet = map[Status]struct{}{
	StatusPending:    {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[status]; !ok {
		return "", fmt.Errorf("unknown task status %q", value)
	}
	return status, nil
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is a snapshot of one submitted analysis.
type Task struct {
	ID        string    `json:"task_id"`
	FileRef   string    `json:"file"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// CleanupResult reports what a cleanup pass removed.
type CleanupResult struct {
	TasksRemoved   int `json:"tasks_removed"`
	ResultsRemoved int `json:"results_removed"`
}
