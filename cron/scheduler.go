package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/jobhook/admin"
	"github.com/xraph/jobhook/ext"
	"github.com/xraph/jobhook/job"
)

const (
	// DefaultSweepSchedule is how often the sweep runs.
	DefaultSweepSchedule = "@every 5m"
	// DefaultStaleAfter is how long a job may stay PENDING before the
	// sweep re-dispatches it.
	DefaultStaleAfter = 10 * time.Minute
	// sweepLimit caps jobs re-dispatched per sweep.
	sweepLimit = 100
)

// ErrDuplicateEntry is returned when an entry name is already scheduled.
var ErrDuplicateEntry = errors.New("cron: duplicate entry")

// Triggerer fires trigger events. *jobhook.Client satisfies it.
type Triggerer interface {
	TriggerJob(ctx context.Context, opts job.TriggerOptions) ([]*job.Job, error)
}

// Retrier runs bulk retries. *admin.Controller satisfies it.
type Retrier interface {
	Retry(ctx context.Context, req admin.Request) (*admin.Report, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithExtensions sets the registry notified when an entry fires.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Scheduler) { s.extensions = r }
}

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

type scheduled struct {
	entry    *Entry
	schedule cronlib.Schedule
}

type sweep struct {
	retrier    Retrier
	schedule   cronlib.Schedule
	staleAfter time.Duration
	next       time.Time
}

// Scheduler runs entries and the optional sweep on a tick loop.
type Scheduler struct {
	trigger      Triggerer
	extensions   *ext.Registry
	logger       *slog.Logger
	tickInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries []*scheduled
	sweep   *sweep

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a Scheduler that fires entries through trigger.
func NewScheduler(trigger Triggerer, opts ...Option) *Scheduler {
	s := &Scheduler{
		trigger:      trigger,
		logger:       slog.Default(),
		tickInterval: time.Second,
		now:          func() time.Time { return time.Now().UTC() },
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add schedules e. The first run is the schedule's next activation after
// now.
func (s *Scheduler) Add(e *Entry) error {
	sched, err := ParseSchedule(e.Schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.entry.Name == e.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateEntry, e.Name)
		}
	}
	next := sched.Next(s.now())
	e.NextRunAt = &next
	s.entries = append(s.entries, &scheduled{entry: e, schedule: sched})
	return nil
}

// MustAdd is like Add but panics on error.
func (s *Scheduler) MustAdd(e *Entry) {
	if err := s.Add(e); err != nil {
		panic(err)
	}
}

// Entries returns a snapshot of the scheduled entries.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, sc := range s.entries {
		out = append(out, *sc.entry)
	}
	return out
}

// EnableSweep re-dispatches PENDING jobs whose last transition is more than
// staleAfter old on every tick of schedule. A job the executor just requeued
// for a backoff retry is left to its own redelivery. Jobs are not reset, so
// jobs that completed in the meantime are left alone.
func (s *Scheduler) EnableSweep(r Retrier, schedule string, staleAfter time.Duration) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep = &sweep{
		retrier:    r,
		schedule:   sched,
		staleAfter: staleAfter,
		next:       sched.Next(s.now()),
	}
	return nil
}

// Start launches the tick loop. Calling Start more than once has no effect.
func (s *Scheduler) Start(_ context.Context) error {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.tickLoop()
		s.logger.Info("cron scheduler started",
			slog.Int("entries", len(s.Entries())),
			slog.Duration("tick_interval", s.tickInterval),
		)
	})
	return nil
}

// Stop signals the scheduler to stop and waits for the tick loop to
// finish, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("cron scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every due entry and the sweep when it is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*Entry
	for _, sc := range s.entries {
		if sc.entry.NextRunAt == nil || sc.entry.NextRunAt.After(now) {
			continue
		}
		next := sc.schedule.Next(now)
		ran := now
		sc.entry.LastRunAt = &ran
		sc.entry.NextRunAt = &next
		due = append(due, sc.entry)
	}
	var runSweep *sweep
	if s.sweep != nil && !s.sweep.next.After(now) {
		s.sweep.next = s.sweep.schedule.Next(now)
		runSweep = s.sweep
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fire(ctx, e)
	}
	if runSweep != nil {
		s.runSweep(ctx, runSweep, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *Entry) {
	jobs, err := s.trigger.TriggerJob(ctx, e.options())
	if err != nil {
		s.logger.Error("cron trigger error",
			slog.String("cron_name", e.Name),
			slog.String("trigger", e.Trigger),
			slog.String("error", err.Error()),
		)
		return
	}
	s.extensions.EmitCronFired(ctx, e.Name, jobs)
	s.logger.Info("cron fired",
		slog.String("cron_name", e.Name),
		slog.String("trigger", e.Trigger),
		slog.Int("jobs", len(jobs)),
	)
}

func (s *Scheduler) runSweep(ctx context.Context, sw *sweep, now time.Time) {
	cutoff := now.Add(-sw.staleAfter)
	limit := sweepLimit
	reset := false
	report, err := sw.retrier.Retry(ctx, admin.Request{
		Scope:         admin.ScopePending,
		Limit:         &limit,
		Reset:         &reset,
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		s.logger.Error("sweep error", slog.String("error", err.Error()))
		return
	}
	if report.Matched == 0 {
		s.logger.Debug("sweep found no stale jobs")
		return
	}
	s.logger.Warn("sweep re-dispatched stale jobs",
		slog.Int("matched", report.Matched),
		slog.Int("retried", report.Retried),
		slog.Int("failed", report.Failed),
		slog.Duration("stale_after", sw.staleAfter),
	)
}
