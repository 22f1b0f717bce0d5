package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobhook/backoff"
	"github.com/xraph/jobhook/id"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/signing"
	"github.com/xraph/jobhook/store/memory"
	"github.com/xraph/jobhook/worker"
)

const testSecret = "test-signing-secret"

type recordingDispatcher struct {
	mu   sync.Mutex
	reqs chan worker.Request
	err  error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{reqs: make(chan worker.Request, 16)}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req worker.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs <- req
	return d.err
}

func (d *recordingDispatcher) next(t *testing.T) worker.Request {
	t.Helper()
	select {
	case req := <-d.reqs:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redelivery")
		return worker.Request{}
	}
}

type harness struct {
	store      *memory.Store
	registry   *job.Registry
	signer     *signing.Signer
	dispatcher *recordingDispatcher
	delays     chan time.Duration
	executor   *worker.Executor
}

func newHarness(t *testing.T, opts ...worker.Option) *harness {
	t.Helper()
	h := &harness{
		store:      memory.New(),
		registry:   job.NewRegistry(),
		signer:     signing.MustNew(testSecret),
		dispatcher: newRecordingDispatcher(),
		delays:     make(chan time.Duration, 16),
	}
	base := []worker.Option{
		worker.WithDispatcher(h.dispatcher),
		worker.WithBackoff(backoff.NewExponential(time.Second, 30*time.Second)),
		worker.WithSleep(func(_ context.Context, d time.Duration) error {
			h.delays <- d
			return nil
		}),
	}
	h.executor = worker.NewExecutor(h.registry, h.store, h.signer, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.executor.Shutdown(ctx)
	})
	return h
}

// createJob persists a PENDING job for defID the way a trigger would. An
// optional maxRetries overrides the default budget.
func (h *harness) createJob(t *testing.T, defID string, payload any, maxRetries ...int) *job.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	j := &job.Job{
		ID:           id.NewJobID(),
		DefinitionID: defID,
		Name:         "test.event",
		Version:      1,
		Payload:      raw,
		Status:       job.StatusPending,
		MaxRetries:   job.DefaultMaxRetries,
		SubmittedAt:  time.Now().UTC(),
	}
	if len(maxRetries) > 0 {
		j.MaxRetries = maxRetries[0]
	}
	if err := h.store.CreateJob(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	return j
}

// request builds a signed delivery of j.
func (h *harness) request(t *testing.T, j *job.Job) worker.Request {
	t.Helper()
	return h.sign(t, worker.Request{
		DefinitionID: j.DefinitionID,
		JobID:        j.ID,
		Options:      j.TriggerOptions(),
	})
}

func (h *harness) sign(t *testing.T, req worker.Request) worker.Request {
	t.Helper()
	canonical, err := req.Options.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	req.Signature = h.signer.Sign(canonical)
	return req
}

func (h *harness) job(t *testing.T, jobID string) *job.Job {
	t.Helper()
	j, err := h.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func (h *harness) execute(t *testing.T, req worker.Request) *worker.Result {
	t.Helper()
	res, err := h.executor.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return res
}
