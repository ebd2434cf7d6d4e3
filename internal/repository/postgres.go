package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"imageBatch/internal/models"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id             TEXT PRIMARY KEY,
	trace_id       TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	webhook_url    TEXT NOT NULL DEFAULT '',
	input_url      TEXT NOT NULL,
	output_url     TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at   TIMESTAMPTZ
)`

type PostgresRepo struct {
	db DB
}

func NewPostgresRepo(db DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create batch_jobs: %w", err)
	}
	return nil
}

func (r *PostgresRepo) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO batch_jobs (id, trace_id, status, webhook_url, input_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		job.ID,
		job.TraceID,
		string(job.Status),
		job.WebhookURL,
		job.InputURL,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrJobAlreadyExists
		}
		return err
	}

	return nil
}

func (r *PostgresRepo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `
		SELECT id, trace_id, status, webhook_url, input_url, output_url, failure_reason, created_at, updated_at, completed_at
		FROM batch_jobs
		WHERE id = $1
	`

	var (
		job    models.Job
		status string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.TraceID,
		&status,
		&job.WebhookURL,
		&job.InputURL,
		&job.OutputURL,
		&job.FailureReason,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	job.Status = models.JobStatus(status)

	return &job, nil
}

// UpdateJob applies upd in a single statement. A compare-and-set miss is
// reported as ErrStatusConflict when the row exists.
func (r *PostgresRepo) UpdateJob(ctx context.Context, id string, upd JobUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE batch_jobs
		SET status = COALESCE($2, status),
			output_url = COALESCE($3, output_url),
			failure_reason = COALESCE($4, failure_reason),
			updated_at = NOW(),
			completed_at = CASE WHEN $2::text IN ('COMPLETED', 'FAILED') THEN NOW() ELSE completed_at END
		WHERE id = $1 AND ($5::text = '' OR status = $5::text)
	`

	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	result, err := r.db.Exec(ctx, query, id, status, upd.OutputURL, upd.FailureReason, string(upd.From))
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		if _, err := r.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}

	return nil
}
