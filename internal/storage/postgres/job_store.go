package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

const jobColumns = `job_id, job_type::text, status::text, created_at, started_at, completed_at, error_message, results_count`

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job crawler.Job) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO jobs (job_id, job_type, status, created_at, results_count)
VALUES ($1, $2::job_type, $3::job_status, $4, $5)`,
		job.ID, string(job.Source), string(job.Status), job.CreatedAt, job.ResultCount,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads a job by its public ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Job{}, crawler.ErrJobNotFound
	}
	if err != nil {
		return crawler.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// UpdateJob writes every mutable column of job in a single statement.
func (s *Store) UpdateJob(ctx context.Context, job crawler.Job) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs
SET status = $2::job_status, started_at = $3, completed_at = $4, error_message = $5, results_count = $6
WHERE job_id = $1`,
		job.ID, string(job.Status), job.StartedAt, job.CompletedAt, job.ErrorDetail, job.ResultCount,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrJobNotFound
	}
	return nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]crawler.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (crawler.Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (crawler.Job, error) {
	var (
		job            crawler.Job
		source, status string
	)
	if err := row.Scan(
		&job.ID,
		&source,
		&status,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ErrorDetail,
		&job.ResultCount,
	); err != nil {
		return crawler.Job{}, err //nolint:wrapcheck // wrapped by callers
	}
	job.Source = crawler.Source(source)
	job.Status = crawler.JobStatus(status)
	return job, nil
}
