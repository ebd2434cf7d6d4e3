package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageBatch/api/dto"
	"imageBatch/internal/blob"
	"imageBatch/internal/cache"
	"imageBatch/internal/kafka"
	"imageBatch/internal/models"
	"imageBatch/internal/repository"
	"imageBatch/internal/table"
)

// ErrInvalidTable is returned when an upload is not a usable input table.
var ErrInvalidTable = errors.New("invalid input table")

type StatusCache interface {
	Get(ctx context.Context, jobID string) (*cache.Snapshot, error)
	Set(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, jobID string) error
}

type JobService struct {
	repo     repository.JobStore
	cache    StatusCache
	blobs    blob.Store
	producer kafka.Producer
	logger   *zap.Logger
}

func NewJobService(repo repository.JobStore, cache StatusCache, blobs blob.Store, producer kafka.Producer, logger *zap.Logger) *JobService {
	return &JobService{
		repo:     repo,
		cache:    cache,
		blobs:    blobs,
		producer: producer,
		logger:   logger,
	}
}

// CreateJob stores the raw table, records a PENDING job and hands it to the
// queue. Tables without the required columns are rejected before anything
// is stored.
func (s *JobService) CreateJob(ctx context.Context, traceID string, req *dto.CreateJobRequest) (*dto.UploadResponse, error) {
	rows, err := table.ParseInput(req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	format := table.DetectFormat(req.Data)
	jobID := uuid.New().String()
	logger := s.logger.With(zap.String("job_id", jobID), zap.String("trace_id", traceID))

	inputURL, err := s.blobs.Put(ctx, req.Data, format.ContentType(), "inputs/"+jobID+format.Extension())
	if err != nil {
		return nil, fmt.Errorf("store input table: %w", err)
	}

	job := &models.Job{
		ID:         jobID,
		TraceID:    traceID,
		Status:     models.StatusPending,
		WebhookURL: req.WebhookURL,
		InputURL:   inputURL,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.cacheJob(ctx, job, logger)

	if err := s.producer.Enqueue(ctx, &kafka.JobMessage{JobID: jobID, TraceID: traceID}); err != nil {
		s.abandon(ctx, job, err, logger)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	logger.Info("Job created",
		zap.String("filename", req.Filename),
		zap.Int("rows", len(rows)),
		zap.Bool("webhook", req.WebhookURL != ""),
	)

	return &dto.UploadResponse{
		Message: "File uploaded successfully",
		JobID:   jobID,
		Status:  string(job.Status),
	}, nil
}

// abandon fails a job that never reached the queue so pollers do not wait on it.
func (s *JobService) abandon(ctx context.Context, job *models.Job, cause error, logger *zap.Logger) {
	reason := "enqueue failed: " + cause.Error()
	upd := repository.Transition(models.StatusPending, models.StatusFailed).WithFailureReason(reason)
	if err := s.repo.UpdateJob(ctx, job.ID, upd); err != nil {
		logger.Error("Failed to mark unqueued job failed", zap.Error(err))
		return
	}

	job.Status = models.StatusFailed
	job.FailureReason = reason
	s.cacheJob(ctx, job, logger)
}

// GetJobStatus reads through the cache and back-fills it from the store.
func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*dto.JobStatusResponse, error) {
	snap, err := s.cache.Get(ctx, jobID)
	if err == nil {
		return toResponse(*snap), nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Status cache read failed", zap.String("job_id", jobID), zap.Error(err))
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.cacheJob(ctx, job, s.logger.With(zap.String("job_id", jobID)))

	return toResponse(cache.SnapshotOf(job)), nil
}

// cacheJob evicts the snapshot when the write fails so the next poll reads
// the store instead of an older status.
func (s *JobService) cacheJob(ctx context.Context, job *models.Job, logger *zap.Logger) {
	err := s.cache.Set(ctx, job)
	if err == nil {
		return
	}
	logger.Warn("Failed to cache job status", zap.String("status", string(job.Status)), zap.Error(err))

	if err := s.cache.Delete(ctx, job.ID); err != nil {
		logger.Error("Failed to evict stale job status", zap.Error(err))
	}
}

func toResponse(snap cache.Snapshot) *dto.JobStatusResponse {
	return &dto.JobStatusResponse{
		JobID:         snap.JobID,
		Status:        string(snap.Status),
		InputURL:      snap.InputURL,
		OutputURL:     snap.OutputURL,
		FailureReason: snap.FailureReason,
	}
}
