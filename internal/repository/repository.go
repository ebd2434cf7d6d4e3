package repository

import (
	"context"
	"errors"

	"imageBatch/internal/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobAlreadyExists  = errors.New("job already exists")
	ErrStatusConflict    = errors.New("job status changed concurrently")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobUpdate is a partial update. Nil fields are left untouched.
// The update only applies if the stored status equals From, which is
// required whenever Status is set.
type JobUpdate struct {
	From          models.JobStatus
	Status        *models.JobStatus
	OutputURL     *string
	FailureReason *string
}

// Transition builds a compare-and-set status update.
func Transition(from, to models.JobStatus) JobUpdate {
	return JobUpdate{From: from, Status: &to}
}

func (u JobUpdate) WithOutputURL(url string) JobUpdate {
	u.OutputURL = &url
	return u
}

func (u JobUpdate) WithFailureReason(reason string) JobUpdate {
	u.FailureReason = &reason
	return u
}

// Validate rejects updates that would move a job backwards.
func (u JobUpdate) Validate() error {
	if u.Status == nil {
		return nil
	}
	if !u.Status.IsValid() || u.From == "" {
		return ErrInvalidTransition
	}
	if !u.From.CanTransitionTo(*u.Status) {
		return ErrInvalidTransition
	}
	return nil
}

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, id string, upd JobUpdate) error
}
