package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/jobhook/backoff"
	"github.com/xraph/jobhook/ext"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/middleware"
	"github.com/xraph/jobhook/signing"
	"github.com/xraph/jobhook/taskio"
)

// Outcome describes how an accepted delivery ended.
type Outcome int

const (
	// OutcomeCompleted means the handler succeeded.
	OutcomeCompleted Outcome = iota
	// OutcomeAlreadyCompleted means the job was already COMPLETED and the
	// handler did not run.
	OutcomeAlreadyCompleted
	// OutcomeRetrying means the handler failed and a redelivery is scheduled.
	OutcomeRetrying
	// OutcomeFailed means the handler failed and the job is now FAILED.
	OutcomeFailed
)

// String returns a human-readable name for o.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAlreadyCompleted:
		return "already_completed"
	case OutcomeRetrying:
		return "retrying"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports an accepted delivery.
type Result struct {
	Outcome Outcome
	// Err is the handler error for OutcomeRetrying and OutcomeFailed.
	Err error
	// Delay is the backoff before redelivery for OutcomeRetrying.
	Delay time.Duration
}

// Executor runs a single delivery through validation, middleware and the
// registered handler, then applies the job state machine and schedules
// redeliveries with backoff.
type Executor struct {
	registry   *job.Registry
	store      Store
	signer     *signing.Signer
	dispatcher Dispatcher
	trigger    taskio.Trigger
	backoff    backoff.Strategy
	mw         middleware.Middleware
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	// retries run detached from the request and stop on Shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Store is the persistence the executor needs: job transitions plus the
// task store handed to Task IO.
type Store interface {
	job.Store
	taskio.Store
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithBackoff sets the redelivery delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Executor) { e.backoff = s }
}

// WithMiddleware sets the handler middleware, outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithExtensions sets the registry notified of job lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(e *Executor) { e.extensions = r }
}

// WithDispatcher sets where redeliveries are sent.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Executor) { e.dispatcher = d }
}

// WithTrigger sets the dispatcher behind taskio.IO.TriggerJob.
func WithTrigger(t taskio.Trigger) Option {
	return func(e *Executor) { e.trigger = t }
}

// WithClock overrides the time source for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithSleep overrides how the executor waits out a backoff delay.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(registry *job.Registry, store Store, signer *signing.Signer, opts ...Option) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		registry: registry,
		store:    store,
		signer:   signer,
		backoff:  backoff.DefaultStrategy(),
		mw:       middleware.Chain(),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepContext,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute processes one delivery. Rejections return an error and never
// touch job state:
//
//   - ErrMissingSignature
//   - job.ErrDefinitionNotFound (unknown or disabled definition)
//   - ErrInvalidSignature
//   - job.ErrInvalidPayload
//   - job.ErrJobNotFound
//
// Accepted deliveries return a Result. A store failure while recording
// the outcome is returned as an error alongside a nil Result.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Signature == "" {
		return nil, ErrMissingSignature
	}

	entry, ok := e.registry.Lookup(req.DefinitionID)
	if !ok || !entry.Enabled {
		return nil, fmt.Errorf("%w: %q", job.ErrDefinitionNotFound, req.DefinitionID)
	}

	canonical, err := req.Options.Canonical()
	if err != nil {
		return nil, err
	}
	if !e.signer.Verify(canonical, req.Signature) {
		return nil, ErrInvalidSignature
	}

	if err := entry.Validate(req.Options.Payload); err != nil {
		return nil, err
	}

	log := e.logger.With(
		slog.String("job_definition_id", req.DefinitionID),
		slog.String("job_id", req.JobID),
	)

	j, err := e.store.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if j.DefinitionID != req.DefinitionID {
		return nil, fmt.Errorf("%w: %q belongs to %q", job.ErrJobNotFound, req.JobID, j.DefinitionID)
	}
	if j.Status == job.StatusCompleted {
		e.adminLog(req, log, "[admin retry] job already completed")
		return &Result{Outcome: OutcomeAlreadyCompleted}, nil
	}

	j, err = e.store.StartJob(ctx, req.JobID, req.Retry, e.now())
	if errors.Is(err, job.ErrJobCompleted) {
		return &Result{Outcome: OutcomeAlreadyCompleted}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("worker: start job: %w", err)
	}
	e.adminLog(req, log, "[admin retry] job started", slog.Int("retried", j.Retried))
	e.extensions.EmitJobStarted(ctx, j)
	started := e.now()

	terminal := func(ctx context.Context) error {
		io := taskio.New(ctx, j.ID, e.store,
			taskio.WithLogger(e.logger),
			taskio.WithTrigger(e.trigger),
			taskio.WithClock(e.now),
		)
		return entry.Handler(ctx, req.Options.Payload, io)
	}

	handlerErr := e.mw(ctx, &middleware.Attempt{Job: j, Retry: req.Retry, Admin: req.IsAdmin()}, terminal)
	if handlerErr == nil {
		if err := e.store.CompleteJob(ctx, j.ID, e.now()); err != nil && !errors.Is(err, job.ErrJobCompleted) {
			return nil, fmt.Errorf("worker: complete job: %w", err)
		}
		e.adminLog(req, log, "[admin retry] job completed")
		e.extensions.EmitJobCompleted(ctx, j, e.now().Sub(started))
		return &Result{Outcome: OutcomeCompleted}, nil
	}

	if middleware.Classify(handlerErr).Final(j) {
		return e.fail(ctx, req, j, handlerErr, log)
	}
	return e.retry(ctx, req, j, handlerErr, log)
}

func (e *Executor) fail(ctx context.Context, req Request, j *job.Job, handlerErr error, log *slog.Logger) (*Result, error) {
	if err := e.store.FailJob(ctx, j.ID, e.now()); err != nil {
		return nil, fmt.Errorf("worker: fail job: %w", err)
	}
	log.Warn("job failed permanently",
		slog.Int("retried", j.Retried),
		slog.Int("max_retries", j.MaxRetries),
		slog.String("error", handlerErr.Error()),
	)
	e.adminLog(req, log, "[admin retry] job failed")
	e.extensions.EmitJobFailed(ctx, j, handlerErr)
	return &Result{Outcome: OutcomeFailed, Err: handlerErr}, nil
}

func (e *Executor) retry(ctx context.Context, req Request, j *job.Job, handlerErr error, log *slog.Logger) (*Result, error) {
	if err := e.store.RequeueJob(ctx, j.ID, e.now()); err != nil {
		return nil, fmt.Errorf("worker: requeue job: %w", err)
	}

	delay := e.backoff.Delay(j.Retried + 1)
	log.Info("job scheduled for retry",
		slog.Int("retried", j.Retried),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
		slog.String("error", handlerErr.Error()),
	)

	e.extensions.EmitJobRetrying(ctx, j, handlerErr, delay)

	redelivery := Request{
		DefinitionID: req.DefinitionID,
		JobID:        req.JobID,
		Options:      req.Options,
		Retry:        true,
	}
	if req.IsAdmin() {
		redelivery.RetrySource = RetrySourceAdmin
	}
	e.scheduleRedelivery(redelivery, delay, log)

	return &Result{Outcome: OutcomeRetrying, Err: handlerErr, Delay: delay}, nil
}

// scheduleRedelivery waits out delay and dispatches req in the background.
// Failures are logged only: the job stays PENDING and is recovered by an
// admin retry or the reconciliation sweep.
func (e *Executor) scheduleRedelivery(req Request, delay time.Duration, log *slog.Logger) {
	if e.dispatcher == nil {
		log.Warn("no dispatcher configured, job left pending")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if err := e.sleep(e.baseCtx, delay); err != nil {
			log.Warn("retry cancelled, job left pending", slog.String("error", err.Error()))
			return
		}
		if err := e.dispatcher.Dispatch(e.baseCtx, req); err != nil {
			log.Error("failed to resubmit job", slog.String("error", err.Error()))
		}
	}()
}

// Extensions returns the lifecycle registry, which may be nil.
func (e *Executor) Extensions() *ext.Registry { return e.extensions }

// Shutdown cancels pending redeliveries once ctx is done and waits for
// in-flight ones to return.
func (e *Executor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.logger.Warn("executor shutdown timed out, cancelling pending retries")
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Executor) adminLog(req Request, log *slog.Logger, msg string, attrs ...any) {
	if !req.IsAdmin() {
		return
	}
	log.Info(msg, attrs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
