package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/jobhook/api"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/provider"
	"github.com/xraph/jobhook/signing"
	"github.com/xraph/jobhook/worker"
)

// Name identifies the provider in configuration and admin reports.
const Name = "local"

// Provider triggers jobs by persisting them and POSTing them to the
// execution endpoint. It also runs that endpoint through its executor.
type Provider struct {
	registry  *job.Registry
	store     worker.Store
	transport *Transport
	executor  *worker.Executor
	logger    *slog.Logger
	now       func() time.Time

	transportOpts []TransportOption
	executorOpts  []worker.Option

	// in-flight trigger dispatches
	wg sync.WaitGroup
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger. It is also handed to the transport
// and the executor.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithTransportOptions configures the dispatch transport.
func WithTransportOptions(opts ...TransportOption) Option {
	return func(p *Provider) { p.transportOpts = append(p.transportOpts, opts...) }
}

// WithExecutorOptions configures the executor behind the endpoint, e.g.
// its backoff and middleware.
func WithExecutorOptions(opts ...worker.Option) Option {
	return func(p *Provider) { p.executorOpts = append(p.executorOpts, opts...) }
}

// WithClock overrides the time source for new jobs.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates a Provider dispatching to internalURL, the base URL under
// which this deployment serves Handler.
func New(internalURL string, registry *job.Registry, store worker.Store, signer *signing.Signer, opts ...Option) *Provider {
	p := &Provider{
		registry: registry,
		store:    store,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}

	p.transport = NewTransport(internalURL, signer,
		append([]TransportOption{WithTransportLogger(p.logger)}, p.transportOpts...)...)

	p.executor = worker.NewExecutor(registry, store, signer,
		append([]worker.Option{
			worker.WithLogger(p.logger),
			worker.WithDispatcher(p.transport),
			worker.WithTrigger(p),
			worker.WithClock(p.now),
		}, p.executorOpts...)...)

	return p
}

// Name returns "local".
func (p *Provider) Name() string { return Name }

// Registry returns the definition registry.
func (p *Provider) Registry() *job.Registry { return p.registry }

// Executor returns the executor serving the endpoint.
func (p *Provider) Executor() *worker.Executor { return p.executor }

// TriggerJob creates one PENDING job per enabled definition subscribed to
// opts.Name and returns them once all are persisted. Each job is then
// POSTed to the endpoint in the background; dispatch errors are logged and
// leave the job PENDING for an admin retry or the sweep.
func (p *Provider) TriggerJob(ctx context.Context, opts job.TriggerOptions) ([]*job.Job, error) {
	jobs, err := provider.CreateJobs(ctx, p.registry, p.store, opts, p.now())
	if err != nil {
		return jobs, fmt.Errorf("local: %w", err)
	}
	if len(jobs) == 0 {
		p.logger.Debug("no job definitions subscribed to trigger", slog.String("job_name", opts.Name))
		return jobs, nil
	}

	dctx := context.WithoutCancel(ctx)
	for _, j := range jobs {
		p.executor.Extensions().EmitJobTriggered(ctx, j)
		p.dispatchAsync(dctx, j)
	}
	return jobs, nil
}

func (p *Provider) dispatchAsync(ctx context.Context, j *job.Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		err := p.transport.Dispatch(ctx, worker.Request{
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
	}()
}

// Trigger implements taskio.Trigger for handlers starting nested jobs.
func (p *Provider) Trigger(ctx context.Context, name string, payload json.RawMessage) error {
	_, err := p.TriggerJob(ctx, job.TriggerOptions{Name: name, Payload: payload})
	return err
}

// RetryExistingJob re-sends j to the endpoint as a retry and waits for the
// response. source is forwarded as the retry source. The job's status is
// not changed here, whatever the outcome.
func (p *Provider) RetryExistingJob(ctx context.Context, j *job.Job, source string) error {
	return p.transport.Dispatch(ctx, worker.Request{
		DefinitionID: j.DefinitionID,
		JobID:        j.ID,
		Options:      j.TriggerOptions(),
		Retry:        true,
		RetrySource:  source,
	})
}

// Handler returns the HTTP handler serving the execution endpoint, plus
// any routes enabled by opts.
func (p *Provider) Handler(opts ...api.Option) http.Handler {
	base := []api.Option{
		api.WithLogger(p.logger),
		api.WithRegistry(p.registry),
		api.WithStore(p.store),
	}
	return api.New(p.executor, append(base, opts...)...).Handler()
}

// Start is a no-op: executions arrive as HTTP requests.
func (p *Provider) Start(context.Context) error { return nil }

// Close waits for in-flight trigger dispatches and scheduled retries, or
// cancels the retries once ctx is done.
func (p *Provider) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("close timed out waiting for trigger dispatches")
	}
	return p.executor.Shutdown(ctx)
}
