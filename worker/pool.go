package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Delivery is one request read from a queue, with the queue's message ID.
type Delivery struct {
	ID      string
	Request Request
}

// Source is a queue of deliveries. Receive blocks until deliveries are
// available, ctx is done, or an implementation-defined poll timeout
// elapses (returning no deliveries). Every received delivery is acked
// once the executor has processed it, whatever the outcome.
type Source interface {
	Receive(ctx context.Context, max int) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
}

// Pool manages a set of concurrent worker goroutines that receive
// deliveries from a Source and execute them through the Executor.
type Pool struct {
	source       Source
	executor     *Executor
	concurrency  int
	pollInterval time.Duration
	logger       *slog.Logger

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long workers back off after a receive error.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool.
func NewPool(source Source, executor *Executor, opts ...PoolOption) *Pool {
	p := &Pool{
		source:       source,
		executor:     executor,
		concurrency:  4,
		pollInterval: time.Second,
		logger:       slog.Default(),
		stopCh:       make(chan struct{}),
		activeJobs:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting", slog.Int("concurrency", p.concurrency))

	for range p.concurrency {
		p.wg.Add(1)
		go p.receiveLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active jobs are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")

	// Signal all workers to stop.
	close(p.stopCh)

	// Wait for completion or context deadline.
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// receiveLoop is run by each worker goroutine.
func (p *Pool) receiveLoop() {
	defer p.wg.Done()

	// Cancelled on stop so a blocking Receive returns promptly.
	recvCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-recvCtx.Done():
		}
	}()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		deliveries, err := p.source.Receive(recvCtx, 1)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error("receive error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		for _, d := range deliveries {
			p.process(d)
		}
	}
}

func (p *Pool) process(d Delivery) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.trackJob(d.ID, cancel)
	defer p.untrackJob(d.ID)

	res, err := p.executor.Execute(ctx, d.Request)
	switch {
	case err != nil:
		p.logger.Warn("delivery rejected",
			slog.String("delivery_id", d.ID),
			slog.String("job_id", d.Request.JobID),
			slog.String("error", err.Error()),
		)
	default:
		p.logger.Debug("delivery processed",
			slog.String("delivery_id", d.ID),
			slog.String("job_id", d.Request.JobID),
			slog.String("outcome", res.Outcome.String()),
		)
	}

	if ackErr := p.source.Ack(context.Background(), d); ackErr != nil {
		p.logger.Error("failed to ack delivery",
			slog.String("delivery_id", d.ID),
			slog.String("error", ackErr.Error()),
		)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(deliveryID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[deliveryID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(deliveryID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, deliveryID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for deliveryID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("delivery_id", deliveryID))
		cancel()
	}
}
