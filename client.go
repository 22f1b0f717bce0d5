package jobhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/jobhook/admin"
	"github.com/xraph/jobhook/api"
	"github.com/xraph/jobhook/backoff"
	"github.com/xraph/jobhook/ext"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/middleware"
	"github.com/xraph/jobhook/provider/local"
	"github.com/xraph/jobhook/provider/stream"
	"github.com/xraph/jobhook/signing"
	"github.com/xraph/jobhook/store"
	"github.com/xraph/jobhook/worker"
)

// Provider delivers jobs to an executor. Implementations live in
// provider/local and provider/stream.
type Provider interface {
	// Name identifies the provider, e.g. "local".
	Name() string

	// Executor returns the executor that runs this provider's deliveries.
	Executor() *worker.Executor

	// TriggerJob persists one PENDING job per enabled subscriber of
	// opts.Name and dispatches each without waiting for execution.
	TriggerJob(ctx context.Context, opts job.TriggerOptions) ([]*job.Job, error)

	// RetryExistingJob re-dispatches an existing job as a retry.
	RetryExistingJob(ctx context.Context, j *job.Job, source string) error

	// Handler returns the HTTP handler serving the execution endpoint.
	Handler(opts ...api.Option) http.Handler

	Start(ctx context.Context) error
	Close(ctx context.Context) error
}

// Client is the entry point of the job engine. It owns the registry, the
// provider chosen at construction and the admin controller.
type Client struct {
	config     Config
	logger     *slog.Logger
	store      store.Store
	registry   *job.Registry
	redis      *redis.Client
	backoff    backoff.Strategy
	middleware []middleware.Middleware
	extensions *ext.Registry

	pendingExtensions []ext.Extension

	provider Provider
	admin    *admin.Controller
}

// New creates a Client and its provider. The stream provider creates its
// consumer group here, which is why New takes a context.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{
		config:  DefaultConfig(),
		logger:  slog.Default(),
		backoff: backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.extensions = ext.NewRegistry(c.logger)
	for _, e := range c.pendingExtensions {
		c.extensions.Register(e)
	}

	if c.store == nil {
		return nil, ErrNoStore
	}
	if c.registry == nil {
		c.registry = job.NewRegistry()
	}
	if c.middleware == nil {
		c.middleware = c.defaultMiddleware()
	}

	signer, err := signing.New(c.config.SigningSecret)
	if err != nil {
		if errors.Is(err, signing.ErrEmptySecret) {
			return nil, ErrNoSigningSecret
		}
		return nil, err
	}

	executorOpts := []worker.Option{
		worker.WithBackoff(c.backoff),
		worker.WithMiddleware(c.middleware...),
		worker.WithExtensions(c.extensions),
		worker.WithLogger(c.logger),
	}

	switch c.config.Provider {
	case local.Name, "":
		if c.config.InternalURL == "" {
			return nil, ErrNoInternalURL
		}
		c.provider = local.New(c.config.InternalURL, c.registry, c.store, signer,
			local.WithLogger(c.logger),
			local.WithExecutorOptions(executorOpts...),
			local.WithTransportOptions(
				local.WithTimeout(c.config.DispatchTimeout),
				local.WithRateLimit(c.config.DispatchRateLimit, 1),
			),
		)
	case stream.Name:
		if c.redis == nil {
			return nil, ErrNoRedis
		}
		q, err := stream.NewQueue(ctx, c.redis, signer, c.config.Stream, c.logger)
		if err != nil {
			return nil, err
		}
		c.provider = stream.New(q, c.registry, c.store, signer,
			stream.WithLogger(c.logger),
			stream.WithExecutorOptions(executorOpts...),
			stream.WithPoolOptions(worker.WithPoolConcurrency(c.config.Concurrency)),
		)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, c.config.Provider)
	}

	c.admin = admin.NewController(c.store, c.provider,
		admin.WithLogger(c.logger),
		admin.WithDebugInfo(c.provider.Name(), c.config.InternalURL),
	)

	c.logger.Info("jobhook client created", slog.String("provider", c.provider.Name()))
	return c, nil
}

func (c *Client) defaultMiddleware() []middleware.Middleware {
	return []middleware.Middleware{
		middleware.Recover(c.logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.Logging(c.logger),
		middleware.Timeout(c.config.HandlerTimeout, c.logger),
	}
}

// DefineJob registers a typed job definition. Definitions may be added
// after New and before the first delivery for them arrives.
func DefineJob[T any](c *Client, def *job.Definition[T]) error {
	return job.RegisterDefinition(c.registry, def)
}

// TriggerJob persists one job per enabled definition subscribed to
// opts.Name and dispatches them in the background.
func (c *Client) TriggerJob(ctx context.Context, opts job.TriggerOptions) ([]*job.Job, error) {
	return c.provider.TriggerJob(ctx, opts)
}

// RetryExistingJob re-dispatches j as a retry through the provider.
func (c *Client) RetryExistingJob(ctx context.Context, j *job.Job, source string) error {
	return c.provider.RetryExistingJob(ctx, j, source)
}

// Handler returns the HTTP handler: the execution endpoint, /health and
// the admin routes when an admin API key is configured.
func (c *Client) Handler() http.Handler {
	opts := []api.Option{api.WithServiceName(c.config.ServiceName)}
	if c.config.AdminAPIKey != "" {
		opts = append(opts, api.WithAdmin(c.admin, c.config.AdminAPIKey))
	}
	return c.provider.Handler(opts...)
}

// Registry returns the definition registry.
func (c *Client) Registry() *job.Registry { return c.registry }

// Store returns the persistence backend.
func (c *Client) Store() store.Store { return c.store }

// Provider returns the active provider.
func (c *Client) Provider() Provider { return c.provider }

// Admin returns the bulk-retry controller.
func (c *Client) Admin() *admin.Controller { return c.admin }

// Config returns a copy of the client configuration.
func (c *Client) Config() Config { return c.config }

// Extensions returns the lifecycle extension registry.
func (c *Client) Extensions() *ext.Registry { return c.extensions }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Start starts the provider. The local provider needs no background work;
// the stream provider starts its workers.
func (c *Client) Start(ctx context.Context) error {
	return c.provider.Start(ctx)
}

// Stop closes the provider, waiting for in-flight work until ctx is done,
// then closes the store.
func (c *Client) Stop(ctx context.Context) error {
	c.extensions.EmitShutdown(ctx)
	if err := c.provider.Close(ctx); err != nil {
		c.logger.Error("provider close error", slog.String("error", err.Error()))
	}
	return c.store.Close()
}

// Compile-time interface checks.
var (
	_ Provider      = (*local.Provider)(nil)
	_ Provider      = (*stream.Provider)(nil)
	_ admin.Retrier = Provider(nil)
)
