package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"imageBatch/internal/blob"
	"imageBatch/internal/kafka"
	"imageBatch/internal/models"
	"imageBatch/internal/repository"
	"imageBatch/internal/table"
	"imageBatch/worker/metrics"
	"imageBatch/worker/notify"
)

const persistTimeout = 10 * time.Second

type StatusCache interface {
	Set(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, jobID string) error
}

type Notifier interface {
	Dispatch(ctx context.Context, webhookURL string, payload notify.Payload)
}

type Options struct {
	RowConcurrency int
	TableTimeout   time.Duration
}

// Processor drives one job from PENDING to a terminal status.
type Processor struct {
	repo     repository.JobStore
	cache    StatusCache
	blobs    blob.Store
	rows     *RowProcessor
	notifier Notifier
	opts     Options
	logger   *zap.Logger
}

func NewProcessor(
	repo repository.JobStore,
	cache StatusCache,
	blobs blob.Store,
	rows *RowProcessor,
	notifier Notifier,
	opts Options,
	logger *zap.Logger,
) *Processor {
	if opts.RowConcurrency < 1 {
		opts.RowConcurrency = 1
	}
	if opts.TableTimeout <= 0 {
		opts.TableTimeout = 60 * time.Second
	}
	return &Processor{
		repo:     repo,
		cache:    cache,
		blobs:    blobs,
		rows:     rows,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Handle adapts Process to the queue consumer.
func (p *Processor) Handle(ctx context.Context, msg *kafka.JobMessage) error {
	return p.Process(ctx, msg.JobID, msg.TraceID)
}

// Process is safe to call more than once for the same job. Only the call
// that moves the job out of PENDING does any work.
func (p *Processor) Process(ctx context.Context, jobID, traceID string) error {
	logger := p.logger.With(zap.String("job_id", jobID), zap.String("trace_id", traceID))

	job, err := p.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			logger.Warn("Job not found, dropping message")
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}

	if job.Status != models.StatusPending {
		logger.Info("Job already claimed, skipping", zap.String("status", string(job.Status)))
		return nil
	}

	if err := p.repo.UpdateJob(ctx, jobID, repository.Transition(models.StatusPending, models.StatusProcessing)); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			logger.Info("Lost claim race, skipping")
			return nil
		}
		return fmt.Errorf("claim job: %w", err)
	}

	job.Status = models.StatusProcessing
	p.cacheJob(ctx, job, logger)
	logger.Info("Job claimed")

	started := time.Now()
	outputURL, runErr := p.run(ctx, job, logger)

	return p.finish(ctx, job, started, outputURL, runErr, logger)
}

func (p *Processor) run(ctx context.Context, job *models.Job, logger *zap.Logger) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.TableTimeout)
	data, err := p.blobs.Get(fetchCtx, job.InputURL)
	cancel()
	if err != nil {
		return "", fmt.Errorf("fetch input table: %w", err)
	}

	rows, err := table.ParseInput(data)
	if err != nil {
		return "", err
	}
	logger.Info("Input table parsed", zap.Int("rows", len(rows)))

	if err := p.processRows(ctx, job.ID, rows); err != nil {
		return "", err
	}

	out, err := table.EncodeResult(rows)
	if err != nil {
		return "", fmt.Errorf("encode result table: %w", err)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, p.opts.TableTimeout)
	defer cancel()

	url, err := p.blobs.Put(uploadCtx, out, "text/csv", fmt.Sprintf("outputs/output_%s.csv", blob.KeySegment(job.ID)))
	if err != nil {
		return "", fmt.Errorf("store result table: %w", err)
	}
	return url, nil
}

func (p *Processor) processRows(ctx context.Context, jobID string, rows []models.Row) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.RowConcurrency)

	for i := range rows {
		row, ordinal := &rows[i], i+1
		g.Go(func() error {
			p.rows.Process(gctx, jobID, ordinal, row)
			return gctx.Err()
		})
	}

	return g.Wait()
}

// finish records the terminal status. Persistence outlives ctx so a
// shutdown mid-job still leaves the record terminal.
func (p *Processor) finish(ctx context.Context, job *models.Job, started time.Time, outputURL string, runErr error, logger *zap.Logger) error {
	upd := repository.Transition(models.StatusProcessing, models.StatusCompleted).WithOutputURL(outputURL)
	status := models.StatusCompleted
	reason := ""
	if runErr != nil {
		status = models.StatusFailed
		reason = failureReason(runErr)
		upd = repository.Transition(models.StatusProcessing, models.StatusFailed).WithFailureReason(reason)
		outputURL = ""
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := p.repo.UpdateJob(persistCtx, job.ID, upd); err != nil {
		logger.Error("Failed to record job outcome",
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return fmt.Errorf("record %s: %w", status, err)
	}

	job.Status = status
	job.OutputURL = outputURL
	job.FailureReason = reason
	p.cacheJob(persistCtx, job, logger)

	elapsed := time.Since(started)
	metrics.JobsTotal.WithLabelValues(string(status)).Inc()
	metrics.JobDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())

	if runErr != nil {
		logger.Error("Job failed",
			zap.String("error_class", errorClass(runErr)),
			zap.Duration("duration", elapsed),
			zap.Error(runErr),
		)
	} else {
		logger.Info("Job completed",
			zap.String("output_url", outputURL),
			zap.Duration("duration", elapsed),
		)
	}

	if job.WebhookURL != "" {
		p.notifier.Dispatch(ctx, job.WebhookURL, notify.Payload{
			JobID:         job.ID,
			Status:        status,
			OutputURL:     outputURL,
			FailureReason: reason,
		})
	}

	return nil
}

// cacheJob evicts the snapshot when the write fails, so readers fall
// through to the database instead of seeing an older status.
func (p *Processor) cacheJob(ctx context.Context, job *models.Job, logger *zap.Logger) {
	err := p.cache.Set(ctx, job)
	if err == nil {
		return
	}
	logger.Warn("Failed to cache job status", zap.String("status", string(job.Status)), zap.Error(err))

	if err := p.cache.Delete(ctx, job.ID); err != nil {
		logger.Error("Failed to evict stale job status", zap.Error(err))
	}
}
