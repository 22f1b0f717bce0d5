package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/worker"
)

const (
	// DefaultBatchSize is the number of jobs processed concurrently.
	DefaultBatchSize = 3
	// DefaultDispatchTimeout bounds each re-dispatch.
	DefaultDispatchTimeout = 60 * time.Second

	maxReportedErrors = 10
)

// Retrier re-sends an existing job to the execution endpoint. source is
// forwarded as the retry source so the endpoint can tag its logs.
type Retrier interface {
	RetryExistingJob(ctx context.Context, j *job.Job, source string) error
}

// RetriedJob is a job the controller reset or dispatched without error.
type RetriedJob struct {
	ID              string `json:"id"`
	JobDefinitionID string `json:"jobDefinitionId"`
	Name            string `json:"name"`
	Reset           bool   `json:"reset"`
	Dispatched      bool   `json:"dispatched"`
}

// JobError is a job whose reset or dispatch failed.
type JobError struct {
	ID              string `json:"id"`
	JobDefinitionID string `json:"jobDefinitionId"`
	Name            string `json:"name"`
	Error           string `json:"error"`
}

// Debug describes the provider that served the retry.
type Debug struct {
	JobsProvider string  `json:"jobsProvider"`
	InternalURL  *string `json:"internalUrl"`
}

// Report is the outcome of a bulk retry. Errors lists at most the first
// ten failures; Failed counts all of them.
type Report struct {
	Matched     int          `json:"matched"`
	Retried     int          `json:"retried"`
	Failed      int          `json:"failed"`
	RetriedJobs []RetriedJob `json:"retriedJobs"`
	Errors      []JobError   `json:"errors"`
	Debug       Debug        `json:"debug"`
}

// Controller runs bulk retries against a job store and a provider.
type Controller struct {
	store           job.Store
	retrier         Retrier
	logger          *slog.Logger
	batchSize       int
	dispatchTimeout time.Duration
	debug           Debug
	now             func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithDispatchTimeout overrides the per-job dispatch timeout.
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *Controller) { c.dispatchTimeout = d }
}

// WithBatchSize overrides the number of jobs processed concurrently.
func WithBatchSize(n int) Option {
	return func(c *Controller) { c.batchSize = n }
}

// WithDebugInfo sets the provider name and internal URL echoed in reports.
// An empty internalURL is reported as null.
func WithDebugInfo(provider, internalURL string) Option {
	return func(c *Controller) {
		c.debug.JobsProvider = provider
		c.debug.InternalURL = nil
		if internalURL != "" {
			c.debug.InternalURL = &internalURL
		}
	}
}

// WithClock overrides the time source used for resets.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a Controller.
func NewController(store job.Store, retrier Retrier, opts ...Option) *Controller {
	c := &Controller{
		store:           store,
		retrier:         retrier,
		logger:          slog.Default(),
		batchSize:       DefaultBatchSize,
		dispatchTimeout: DefaultDispatchTimeout,
		debug:           Debug{JobsProvider: "local"},
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.batchSize < 1 {
		c.batchSize = 1
	}
	return c
}

// Retry selects the jobs matching req, oldest first, and processes them in
// batches. Each batch settles completely before the next one starts.
// Per-job failures are collected into the report; only an invalid request
// or a failed selection returns an error.
func (c *Controller) Retry(ctx context.Context, req Request) (*Report, error) {
	p, err := req.params()
	if err != nil {
		return nil, err
	}

	jobs, err := c.store.ListJobs(ctx, job.ListOpts{
		Statuses:        p.statuses,
		DefinitionID:    p.jobDefinitionID,
		Name:            p.name,
		SubmittedBefore: p.submittedBefore,
		UpdatedBefore:   p.updatedBefore,
		Limit:           min(p.limit, MaxLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("admin: select jobs: %w", err)
	}

	c.logger.Info("admin retry started",
		slog.Int("matched", len(jobs)),
		slog.Bool("reset", p.reset),
		slog.Bool("dispatch", p.dispatch),
	)

	errs := make([]error, len(jobs))
	for start := 0; start < len(jobs); start += c.batchSize {
		end := min(start+c.batchSize, len(jobs))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				errs[i] = c.retryOne(ctx, jobs[i], p)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := &Report{
		Matched:     len(jobs),
		RetriedJobs: []RetriedJob{},
		Errors:      []JobError{},
		Debug:       c.debug,
	}
	for i, j := range jobs {
		if errs[i] == nil {
			report.RetriedJobs = append(report.RetriedJobs, RetriedJob{
				ID:              j.ID,
				JobDefinitionID: j.DefinitionID,
				Name:            j.Name,
				Reset:           p.reset,
				Dispatched:      p.dispatch,
			})
			continue
		}
		report.Failed++
		if len(report.Errors) < maxReportedErrors {
			report.Errors = append(report.Errors, JobError{
				ID:              j.ID,
				JobDefinitionID: j.DefinitionID,
				Name:            j.Name,
				Error:           errs[i].Error(),
			})
		}
	}
	report.Retried = len(report.RetriedJobs)

	c.logger.Info("admin retry finished",
		slog.Int("matched", report.Matched),
		slog.Int("retried", report.Retried),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (c *Controller) retryOne(ctx context.Context, j *job.Job, p params) error {
	if p.reset {
		if err := c.store.ResetJob(ctx, j.ID, c.now()); err != nil {
			return fmt.Errorf("reset job: %w", err)
		}
	}
	if !p.dispatch {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, c.dispatchTimeout)
	defer cancel()
	if err := c.retrier.RetryExistingJob(dctx, j, worker.RetrySourceAdmin); err != nil {
		c.logger.Warn("admin retry dispatch failed",
			slog.String("job_id", j.ID),
			slog.String("job_definition_id", j.DefinitionID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
