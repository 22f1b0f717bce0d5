package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobhook/job"
)

const jobColumns = `
	id, definition_id, name, version, payload, status, retried, max_retries,
	submitted_at, updated_at, completed_at, last_retried_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	submitted, updated := j.SubmittedAt, j.UpdatedAt
	if submitted.IsZero() {
		submitted = now
	}
	if updated.IsZero() {
		updated = now
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobhook_jobs (`+jobColumns+`
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		j.ID, j.DefinitionID, j.Name, j.Version, jsonOrNull(j.Payload), string(j.Status),
		j.Retried, j.MaxRetries, submitted, updated, j.CompletedAt, j.LastRetriedAt,
	)
	if err != nil {
		// Check for unique violation (duplicate ID).
		if isDuplicateKey(err) {
			return job.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobhook/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobhook_jobs WHERE id = $1`, jobID)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobhook/postgres: get job: %w", err)
	}
	return j, nil
}

// StartJob moves a job to PROCESSING, counting the attempt when retry is set.
func (s *Store) StartJob(ctx context.Context, jobID string, retry bool, at time.Time) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobhook_jobs SET
			status = 'PROCESSING',
			retried = retried + CASE WHEN $2 THEN 1 ELSE 0 END,
			last_retried_at = CASE WHEN $2 THEN $3 ELSE last_retried_at END,
			updated_at = $3
		WHERE id = $1 AND status <> 'COMPLETED'
		RETURNING `+jobColumns,
		jobID, retry, at,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, s.transitionError(ctx, jobID)
		}
		return nil, fmt.Errorf("jobhook/postgres: start job: %w", err)
	}
	return j, nil
}

// CompleteJob moves a job to COMPLETED.
func (s *Store) CompleteJob(ctx context.Context, jobID string, at time.Time) error {
	return s.finishJob(ctx, jobID, job.StatusCompleted, at)
}

// FailJob moves a job to FAILED.
func (s *Store) FailJob(ctx context.Context, jobID string, at time.Time) error {
	return s.finishJob(ctx, jobID, job.StatusFailed, at)
}

func (s *Store) finishJob(ctx context.Context, jobID string, status job.Status, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobhook_jobs SET status = $2, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status <> 'COMPLETED'`,
		jobID, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("jobhook/postgres: finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, jobID)
	}
	return nil
}

// RequeueJob moves a job back to PENDING.
func (s *Store) RequeueJob(ctx context.Context, jobID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobhook_jobs SET status = 'PENDING', updated_at = $2
		WHERE id = $1 AND status <> 'COMPLETED'`,
		jobID, at,
	)
	if err != nil {
		return fmt.Errorf("jobhook/postgres: requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, jobID)
	}
	return nil
}

// ResetJob returns a job and its unfinished tasks to PENDING in one
// transaction. COMPLETED tasks keep their cached results.
func (s *Store) ResetJob(ctx context.Context, jobID string, at time.Time) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE jobhook_jobs SET
				status = 'PENDING', completed_at = NULL,
				last_retried_at = $2, updated_at = $2
			WHERE id = $1 AND status <> 'COMPLETED'`,
			jobID, at,
		)
		if err != nil {
			return fmt.Errorf("reset job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return s.transitionError(ctx, jobID)
		}

		_, err = tx.Exec(ctx, `
			UPDATE jobhook_tasks SET
				status = 'PENDING', retried = 0, completed_at = NULL, updated_at = $2
			WHERE job_id = $1 AND status IN ('PENDING', 'FAILED')`,
			jobID, at,
		)
		if err != nil {
			return fmt.Errorf("reset tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		if isJobSentinel(err) {
			return err
		}
		return fmt.Errorf("jobhook/postgres: %w", err)
	}
	return nil
}

// transitionError explains why a guarded update matched no rows.
func (s *Store) transitionError(ctx context.Context, jobID string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobhook_jobs WHERE id = $1`, jobID).Scan(&status)
	if err != nil {
		if isNoRows(err) {
			return job.ErrJobNotFound
		}
		return fmt.Errorf("jobhook/postgres: load job status: %w", err)
	}
	return job.ErrJobCompleted
}

func isJobSentinel(err error) bool {
	return errors.Is(err, job.ErrJobNotFound) || errors.Is(err, job.ErrJobCompleted)
}

// ListJobs returns jobs matching opts ordered by submission time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if len(opts.Statuses) > 0 {
		statuses := make([]string, len(opts.Statuses))
		for i, st := range opts.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if opts.DefinitionID != "" {
		add("definition_id = $%d", opts.DefinitionID)
	}
	if opts.Name != "" {
		add("name = $%d", opts.Name)
	}
	if !opts.SubmittedBefore.IsZero() {
		add("submitted_at < $%d", opts.SubmittedBefore)
	}
	if !opts.UpdatedBefore.IsZero() {
		add("updated_at < $%d", opts.UpdatedBefore)
	}

	query := `SELECT ` + jobColumns + ` FROM jobhook_jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY submitted_at ASC, id ASC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobhook/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobhook_jobs
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR definition_id = $2)`,
		string(opts.Status), opts.DefinitionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("jobhook/postgres: count jobs: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Scan helpers
// ──────────────────────────────────────────────────

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j       job.Job
		status  string
		payload []byte
	)
	err := row.Scan(
		&j.ID, &j.DefinitionID, &j.Name, &j.Version, &payload, &status,
		&j.Retried, &j.MaxRetries, &j.SubmittedAt, &j.UpdatedAt,
		&j.CompletedAt, &j.LastRetriedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = job.Status(status)
	j.Payload = payload
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobhook/postgres: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobhook/postgres: iterate jobs: %w", err)
	}
	return jobs, nil
}
