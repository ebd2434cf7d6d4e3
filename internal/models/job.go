package models

import (
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Rank orders statuses along the lifecycle. Both terminal statuses share
// the highest rank; unknown statuses rank 0.
func (s JobStatus) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return 0
	}
}

// CanTransitionTo enforces forward-only movement through the job lifecycle.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Job is the durable record of one submitted batch.
type Job struct {
	ID            string
	TraceID       string
	Status        JobStatus
	WebhookURL    string
	InputURL      string
	OutputURL     string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// Row is one line of the input table and, once processed, of the result table.
type Row struct {
	SerialNumber    string
	ProductName     string
	InputImageURLs  []string
	OutputImageURLs []string
}
