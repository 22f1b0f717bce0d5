package taskio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobhook/id"
)

// Trigger starts new jobs from inside a running handler.
// It is satisfied by the providers' trigger dispatchers.
type Trigger interface {
	Trigger(ctx context.Context, name string, payload json.RawMessage) error
}

// IO is the execution context passed to job handlers. It is bound to one
// job ID and must not be retained after the handler returns.
type IO struct {
	ctx     context.Context
	jobID   string
	store   Store
	trigger Trigger
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an IO.
type Option func(*IO)

// WithLogger sets the base logger. The IO adds a job_id attribute to it.
func WithLogger(l *slog.Logger) Option {
	return func(io *IO) { io.logger = l }
}

// WithTrigger sets the dispatcher used by TriggerJob.
func WithTrigger(t Trigger) Option {
	return func(io *IO) { io.trigger = t }
}

// WithClock overrides the time source used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(io *IO) { io.now = now }
}

// New creates an IO for one execution of the job with the given ID.
// This is called by the executor, not by handlers.
func New(ctx context.Context, jobID string, store Store, opts ...Option) *IO {
	io := &IO{
		ctx:    ctx,
		jobID:  jobID,
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(io)
	}
	io.logger = io.logger.With(slog.String("job_id", jobID))
	return io
}

// Context returns the context of the current execution.
func (io *IO) Context() context.Context { return io.ctx }

// JobID returns the ID of the job being executed.
func (io *IO) JobID() string { return io.jobID }

// Logger returns a logger scoped to the current job.
func (io *IO) Logger() *slog.Logger { return io.logger }

// RunTask executes fn once per job under cacheKey. If the task already
// completed during an earlier attempt of this job, fn is not called and nil
// is returned.
func (io *IO) RunTask(cacheKey string, fn func(ctx context.Context) error) error {
	_, err := io.run(cacheKey, func(ctx context.Context) ([]byte, error) {
		if err := fn(ctx); err != nil {
			return nil, err
		}
		return []byte("null"), nil
	})
	return err
}

// Run executes fn once per job under cacheKey and returns its result. The
// result is stored as JSON; on replay the cached value is decoded into T
// without calling fn.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Run[T any](io *IO, cacheKey string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, err := io.run(cacheKey, func(ctx context.Context) ([]byte, error) {
		v, fnErr := fn(ctx)
		if fnErr != nil {
			return nil, fnErr
		}
		b, encErr := json.Marshal(v)
		if encErr != nil {
			return nil, fmt.Errorf("encode result: %w", encErr)
		}
		return b, nil
	})
	if err != nil {
		return zero, err
	}

	var result T
	if len(data) > 0 {
		if decErr := json.Unmarshal(data, &result); decErr != nil {
			return zero, fmt.Errorf("taskio: decode cached result %q: %w", cacheKey, decErr)
		}
	}
	return result, nil
}

func (io *IO) run(cacheKey string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	taskID := id.TaskID(io.jobID, cacheKey)
	now := io.now()

	t, err := io.store.EnsureTask(io.ctx, &Task{
		ID:         taskID,
		JobID:      io.jobID,
		Name:       cacheKey,
		Status:     StatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("taskio: ensure task %q: %w", cacheKey, err)
	}

	if t.Status == StatusCompleted {
		io.logger.Debug("returning cached task result", slog.String("task", cacheKey))
		return t.Result, nil
	}

	if t.Retried >= t.MaxRetries {
		return nil, &Error{Kind: KindExceededRetries, TaskID: taskID, CacheKey: cacheKey}
	}

	result, fnErr := fn(io.ctx)
	if fnErr != nil {
		if failErr := io.store.FailTask(io.ctx, taskID, io.now()); failErr != nil {
			io.logger.Error("failed to record task failure",
				slog.String("task_id", taskID),
				slog.String("error", failErr.Error()),
			)
		}
		io.logger.Warn("task failed", slog.String("task_id", taskID))
		return nil, &Error{Kind: KindTaskFailed, TaskID: taskID, CacheKey: cacheKey, Err: fnErr}
	}

	if err := io.store.CompleteTask(io.ctx, taskID, result, io.now()); err != nil {
		return nil, fmt.Errorf("taskio: complete task %q: %w", cacheKey, err)
	}
	return result, nil
}

// Wait suspends the handler for d. Waits are not checkpointed: a retried
// job waits again in full. Wait returns early with the context error when
// the execution is cancelled.
func (io *IO) Wait(cacheKey string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %q got %s", ErrInvalidWait, cacheKey, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-io.ctx.Done():
		return io.ctx.Err()
	}
}

// TriggerJob fires the named trigger with payload, starting every job
// definition subscribed to it. Calls are not deduplicated by cacheKey: a
// retried handler that triggers again creates new jobs.
func (io *IO) TriggerJob(cacheKey, name string, payload any) error {
	if io.trigger == nil {
		return ErrNoTrigger
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("taskio: encode trigger payload %q: %w", cacheKey, err)
	}

	io.logger.Debug("triggering job", slog.String("task", cacheKey), slog.String("trigger", name))
	return io.trigger.Trigger(io.ctx, name, data)
}
