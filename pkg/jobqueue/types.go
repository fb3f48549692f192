package jobqueue

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
//
// NOTE: These values appear in status responses and persisted records and
// are part of the stable contract.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusRunning       Status = "running"
	StatusAwaitingInput Status = "awaiting_input"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// Terminal reports whether s is a terminal status. Terminal jobs stay
// queryable until the retention window elapses, then are evicted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Errors returned by scheduler operations. Task failures are never surfaced
// through these; they are recorded on the failed job itself.
var (
	// ErrInvalidInput rejects a malformed admission request. The job is
	// never created.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoSuchJob means the referenced job is unknown or already evicted.
	ErrNoSuchJob = errors.New("no such job")

	// ErrNotAwaitingInput rejects human input for a job that is not
	// currently suspended. Rejecting avoids silently discarding input for
	// a job that already moved on.
	ErrNotAwaitingInput = errors.New("job is not awaiting input")

	// ErrAlreadyAwaiting flags a second concurrent AwaitHumanInput from
	// the same job. This is a Runner defect and fails fast.
	ErrAlreadyAwaiting = errors.New("job already has an outstanding input wait")
)

// JobRecord is the tracked state of one job.
//
// GetStatus and ListActive return snapshot copies; the authoritative record
// is owned by the scheduler loop while queued and by the running task while
// in flight, never both at once.
type JobRecord struct {
	JobID    string         `json:"job_id"`
	ClientID string         `json:"client_id"`
	Target   string         `json:"target"`
	Config   map[string]any `json:"config,omitempty"`

	Status          Status `json:"status"`
	CurrentAction   string `json:"current_action,omitempty"`
	ProgressPercent int    `json:"progress_percentage"`

	RequiresHumanInput bool   `json:"requires_human_input"`
	HumanInputPrompt   string `json:"human_input_prompt,omitempty"`

	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
