package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/taskio"
)

// Ensure Store implements the subsystem stores at compile time.
// We can't import store here (import cycle in tests), so we verify each.
var (
	_ job.Store    = (*Store)(nil)
	_ taskio.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs  map[string]*job.Job
	tasks map[string]*taskio.Task
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:  make(map[string]*job.Job),
		tasks: make(map[string]*taskio.Task),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate, Ping, Close.
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID]; exists {
		return job.ErrJobAlreadyExists
	}
	cp := copyJob(j)
	now := time.Now().UTC()
	if cp.SubmittedAt.IsZero() {
		cp.SubmittedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	m.jobs[j.ID] = cp
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return copyJob(j), nil
}

// StartJob moves a job to PROCESSING.
func (m *Store) StartJob(_ context.Context, jobID string, retry bool, at time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.mutableJob(jobID)
	if err != nil {
		return nil, err
	}
	j.Status = job.StatusProcessing
	if retry {
		j.Retried++
		t := at
		j.LastRetriedAt = &t
	}
	j.UpdatedAt = at
	return copyJob(j), nil
}

// CompleteJob moves a job to COMPLETED.
func (m *Store) CompleteJob(_ context.Context, jobID string, at time.Time) error {
	return m.finish(jobID, job.StatusCompleted, at)
}

// FailJob moves a job to FAILED.
func (m *Store) FailJob(_ context.Context, jobID string, at time.Time) error {
	return m.finish(jobID, job.StatusFailed, at)
}

func (m *Store) finish(jobID string, status job.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.mutableJob(jobID)
	if err != nil {
		return err
	}
	j.Status = status
	t := at
	j.CompletedAt = &t
	j.UpdatedAt = at
	return nil
}

// RequeueJob moves a job back to PENDING.
func (m *Store) RequeueJob(_ context.Context, jobID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.mutableJob(jobID)
	if err != nil {
		return err
	}
	j.Status = job.StatusPending
	j.UpdatedAt = at
	return nil
}

// ResetJob returns a job and its unfinished tasks to PENDING. The single
// store lock makes the job and task updates atomic.
func (m *Store) ResetJob(_ context.Context, jobID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.mutableJob(jobID)
	if err != nil {
		return err
	}
	j.Status = job.StatusPending
	j.CompletedAt = nil
	t := at
	j.LastRetriedAt = &t
	j.UpdatedAt = at

	for _, task := range m.tasks {
		if task.JobID != jobID {
			continue
		}
		if task.Status != taskio.StatusPending && task.Status != taskio.StatusFailed {
			continue
		}
		task.Status = taskio.StatusPending
		task.Retried = 0
		task.CompletedAt = nil
		task.UpdatedAt = at
	}
	return nil
}

// mutableJob returns the stored job for in-place updates. COMPLETED jobs
// are immutable. Callers must hold the write lock.
func (m *Store) mutableJob(jobID string) (*job.Job, error) {
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	if j.Status == job.StatusCompleted {
		return nil, job.ErrJobCompleted
	}
	return j, nil
}

// ListJobs returns jobs matching opts ordered by submission time.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if !matchJob(j, opts) {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].SubmittedAt.Equal(result[k].SubmittedAt) {
			return result[i].SubmittedAt.Before(result[k].SubmittedAt)
		}
		return result[i].ID < result[k].ID
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func matchJob(j *job.Job, opts job.ListOpts) bool {
	if len(opts.Statuses) > 0 {
		found := false
		for _, s := range opts.Statuses {
			if j.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.DefinitionID != "" && j.DefinitionID != opts.DefinitionID {
		return false
	}
	if opts.Name != "" && j.Name != opts.Name {
		return false
	}
	if !opts.SubmittedBefore.IsZero() && !j.SubmittedAt.Before(opts.SubmittedBefore) {
		return false
	}
	if !opts.UpdatedBefore.IsZero() && !j.UpdatedAt.Before(opts.UpdatedBefore) {
		return false
	}
	return true
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.DefinitionID != "" && j.DefinitionID != opts.DefinitionID {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// EnsureTask returns the task with t.ID, creating it from t if absent.
func (m *Store) EnsureTask(_ context.Context, t *taskio.Task) (*taskio.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.tasks[t.ID]; ok {
		return copyTask(existing), nil
	}
	cp := copyTask(t)
	now := time.Now().UTC()
	if cp.Status == "" {
		cp.Status = taskio.StatusPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = cp.CreatedAt
	m.tasks[t.ID] = cp
	return copyTask(cp), nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID string) (*taskio.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return nil, taskio.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// CompleteTask marks a task COMPLETED and stores its result.
func (m *Store) CompleteTask(_ context.Context, taskID string, result []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return taskio.ErrTaskNotFound
	}
	t.Status = taskio.StatusCompleted
	t.Result = append(json.RawMessage(nil), result...)
	c := at
	t.CompletedAt = &c
	t.UpdatedAt = at
	return nil
}

// FailTask marks a task FAILED and increments its retry counter.
func (m *Store) FailTask(_ context.Context, taskID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return taskio.ErrTaskNotFound
	}
	t.Status = taskio.StatusFailed
	t.Retried++
	t.UpdatedAt = at
	return nil
}

// ListTasks returns the tasks of a job ordered by creation time.
func (m *Store) ListTasks(_ context.Context, jobID string) ([]*taskio.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*taskio.Task
	for _, t := range m.tasks {
		if t.JobID == jobID {
			result = append(result, copyTask(t))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return result[i].ID < result[k].ID
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// copyJob returns a copy so callers can mutate without racing with the store.
func copyJob(j *job.Job) *job.Job {
	cp := *j
	cp.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.LastRetriedAt != nil {
		t := *j.LastRetriedAt
		cp.LastRetriedAt = &t
	}
	return &cp
}

func copyTask(t *taskio.Task) *taskio.Task {
	cp := *t
	cp.Result = append(json.RawMessage(nil), t.Result...)
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		cp.CompletedAt = &c
	}
	return &cp
}
