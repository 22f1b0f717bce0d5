package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobhook/taskio"
)

const taskColumns = `
	id, job_id, name, status, result, retried, max_retries,
	completed_at, created_at, updated_at`

// EnsureTask inserts the task if absent and returns the stored row. The
// no-op ON CONFLICT update makes RETURNING yield the existing row, so
// concurrent callers always observe the same task.
func (s *Store) EnsureTask(ctx context.Context, t *taskio.Task) (*taskio.Task, error) {
	now := time.Now().UTC()
	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}
	status := t.Status
	if status == "" {
		status = taskio.StatusPending
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobhook_tasks (id, job_id, name, status, retried, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING `+taskColumns,
		t.ID, t.JobID, t.Name, string(status), t.Retried, t.MaxRetries, created,
	)

	got, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("jobhook/postgres: ensure task: %w", err)
	}
	return got, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID string) (*taskio.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM jobhook_tasks WHERE id = $1`, taskID)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, taskio.ErrTaskNotFound
		}
		return nil, fmt.Errorf("jobhook/postgres: get task: %w", err)
	}
	return t, nil
}

// CompleteTask marks a task COMPLETED and stores its result.
func (s *Store) CompleteTask(ctx context.Context, taskID string, result []byte, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobhook_tasks SET status = 'COMPLETED', result = $2, completed_at = $3, updated_at = $3
		WHERE id = $1`,
		taskID, jsonOrNull(result), at,
	)
	if err != nil {
		return fmt.Errorf("jobhook/postgres: complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskio.ErrTaskNotFound
	}
	return nil
}

// FailTask marks a task FAILED and increments its retry counter.
func (s *Store) FailTask(ctx context.Context, taskID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobhook_tasks SET status = 'FAILED', retried = retried + 1, updated_at = $2
		WHERE id = $1`,
		taskID, at,
	)
	if err != nil {
		return fmt.Errorf("jobhook/postgres: fail task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskio.ErrTaskNotFound
	}
	return nil
}

// ListTasks returns the tasks of a job ordered by creation time.
func (s *Store) ListTasks(ctx context.Context, jobID string) ([]*taskio.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM jobhook_tasks
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("jobhook/postgres: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*taskio.Task
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobhook/postgres: scan task: %w", scanErr)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobhook/postgres: iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (*taskio.Task, error) {
	var (
		t      taskio.Task
		status string
		result []byte
	)
	err := row.Scan(
		&t.ID, &t.JobID, &t.Name, &status, &result, &t.Retried, &t.MaxRetries,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = taskio.Status(status)
	t.Result = result
	return &t, nil
}
