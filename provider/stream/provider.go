package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/jobhook/api"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/provider"
	"github.com/xraph/jobhook/signing"
	"github.com/xraph/jobhook/worker"
)

// Name identifies the provider in configuration and admin reports.
const Name = "stream"

// Provider triggers jobs by appending them to a Redis stream and runs
// them with a worker pool reading the stream.
type Provider struct {
	registry *job.Registry
	store    worker.Store
	queue    *Queue
	executor *worker.Executor
	pool     *worker.Pool
	logger   *slog.Logger
	now      func() time.Time

	executorOpts []worker.Option
	poolOpts     []worker.PoolOption
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger. It is also handed to the executor
// and the pool.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithExecutorOptions configures the executor, e.g. its backoff and
// middleware.
func WithExecutorOptions(opts ...worker.Option) Option {
	return func(p *Provider) { p.executorOpts = append(p.executorOpts, opts...) }
}

// WithPoolOptions configures the worker pool.
func WithPoolOptions(opts ...worker.PoolOption) Option {
	return func(p *Provider) { p.poolOpts = append(p.poolOpts, opts...) }
}

// WithClock overrides the time source for new jobs.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates a Provider on top of q. Call Start to begin consuming.
func New(q *Queue, registry *job.Registry, store worker.Store, signer *signing.Signer, opts ...Option) *Provider {
	p := &Provider{
		registry: registry,
		store:    store,
		queue:    q,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}

	p.executor = worker.NewExecutor(registry, store, signer,
		append([]worker.Option{
			worker.WithLogger(p.logger),
			worker.WithDispatcher(q),
			worker.WithTrigger(p),
			worker.WithClock(p.now),
		}, p.executorOpts...)...)

	p.pool = worker.NewPool(q, p.executor,
		append([]worker.PoolOption{worker.WithPoolLogger(p.logger)}, p.poolOpts...)...)

	return p
}

// Name returns "stream".
func (p *Provider) Name() string { return Name }

// Registry returns the definition registry.
func (p *Provider) Registry() *job.Registry { return p.registry }

// Executor returns the executor run by the pool.
func (p *Provider) Executor() *worker.Executor { return p.executor }

// TriggerJob creates one PENDING job per enabled definition subscribed to
// opts.Name and appends a delivery for each. Append errors are logged and
// leave the job PENDING for an admin retry or the sweep.
func (p *Provider) TriggerJob(ctx context.Context, opts job.TriggerOptions) ([]*job.Job, error) {
	jobs, err := provider.CreateJobs(ctx, p.registry, p.store, opts, p.now())
	if err != nil {
		return jobs, fmt.Errorf("stream: %w", err)
	}

	for _, j := range jobs {
		p.executor.Extensions().EmitJobTriggered(ctx, j)
		err := p.queue.Dispatch(ctx, worker.Request{
			DefinitionID: j.DefinitionID,
			JobID:        j.ID,
			Options:      j.TriggerOptions(),
		})
		if err != nil {
			p.logger.Error("error dispatching job",
				slog.String("job_definition_id", j.DefinitionID),
				slog.String("job_id", j.ID),
				slog.String("job_name", j.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	return jobs, nil
}

// Trigger implements taskio.Trigger for handlers starting nested jobs.
func (p *Provider) Trigger(ctx context.Context, name string, payload json.RawMessage) error {
	_, err := p.TriggerJob(ctx, job.TriggerOptions{Name: name, Payload: payload})
	return err
}

// RetryExistingJob appends a retry delivery for j. It returns once the
// delivery is on the stream, not when the job has run.
func (p *Provider) RetryExistingJob(ctx context.Context, j *job.Job, source string) error {
	return p.queue.Dispatch(ctx, worker.Request{
		DefinitionID: j.DefinitionID,
		JobID:        j.ID,
		Options:      j.TriggerOptions(),
		Retry:        true,
		RetrySource:  source,
	})
}

// Handler returns the HTTP handler. The execution endpoint stays available
// so signed HTTP deliveries are accepted alongside the stream.
func (p *Provider) Handler(opts ...api.Option) http.Handler {
	base := []api.Option{
		api.WithLogger(p.logger),
		api.WithRegistry(p.registry),
		api.WithStore(p.store),
	}
	return api.New(p.executor, append(base, opts...)...).Handler()
}

// Start launches the worker pool.
func (p *Provider) Start(ctx context.Context) error {
	return p.pool.Start(ctx)
}

// Close stops the pool, then waits for scheduled retries or cancels them
// once ctx is done.
func (p *Provider) Close(ctx context.Context) error {
	if err := p.pool.Stop(ctx); err != nil {
		return err
	}
	return p.executor.Shutdown(ctx)
}
