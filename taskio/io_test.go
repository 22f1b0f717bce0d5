package taskio_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobhook/id"
	"github.com/xraph/jobhook/store/memory"
	"github.com/xraph/jobhook/taskio"
)

func newIO(t *testing.T, s *memory.Store, opts ...taskio.Option) *taskio.IO {
	t.Helper()
	return taskio.New(context.Background(), "job_test", s, opts...)
}

func TestRunTask_CachesCompletedResult(t *testing.T) {
	s := memory.New()
	io := newIO(t, s)

	calls := 0
	fn := func(_ context.Context) (int, error) {
		calls++
		return 42, nil
	}

	got, err := taskio.Run(io, "compute", fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}

	// A later attempt of the same job replays the cached value.
	replay := newIO(t, s)
	got, err = taskio.Run(replay, "compute", fn)
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if got != 42 {
		t.Errorf("replay got %d, want 42", got)
	}
	if calls != 1 {
		t.Errorf("body ran %d times, want 1", calls)
	}

	task, err := s.GetTask(context.Background(), id.TaskID("job_test", "compute"))
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != taskio.StatusCompleted || task.CompletedAt == nil {
		t.Errorf("task = %+v, want COMPLETED", task)
	}
	if string(task.Result) != "42" {
		t.Errorf("Result = %s, want 42", task.Result)
	}
}

func TestRunTask_StructResult(t *testing.T) {
	type doc struct {
		ID    string `json:"id"`
		Pages int    `json:"pages"`
	}
	s := memory.New()

	want := doc{ID: "doc_1", Pages: 3}
	if _, err := taskio.Run(newIO(t, s), "load", func(context.Context) (doc, error) { return want, nil }); err != nil {
		t.Fatal(err)
	}
	got, err := taskio.Run(newIO(t, s), "load", func(context.Context) (doc, error) {
		t.Fatal("body must not run on replay")
		return doc{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestRunTask_FailureRecordsAndTags(t *testing.T) {
	s := memory.New()
	io := newIO(t, s)
	boom := errors.New("smtp unavailable")

	err := io.RunTask("send", func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped body error, got %v", err)
	}
	if taskio.KindOf(err) != taskio.KindTaskFailed {
		t.Errorf("KindOf = %v, want KindTaskFailed", taskio.KindOf(err))
	}

	var te *taskio.Error
	if !errors.As(err, &te) || te.CacheKey != "send" {
		t.Errorf("expected *taskio.Error for cache key send, got %v", err)
	}

	task, _ := s.GetTask(context.Background(), id.TaskID("job_test", "send"))
	if task.Status != taskio.StatusFailed || task.Retried != 1 {
		t.Errorf("task = %+v, want FAILED with retried 1", task)
	}
}

func TestRunTask_ExceededRetries(t *testing.T) {
	s := memory.New()
	calls := 0
	fail := func(context.Context) error {
		calls++
		return errors.New("nope")
	}

	for i := 0; i < taskio.DefaultMaxRetries; i++ {
		err := newIO(t, s).RunTask("flaky", fail)
		if taskio.KindOf(err) != taskio.KindTaskFailed {
			t.Fatalf("attempt %d: KindOf = %v, want KindTaskFailed", i, taskio.KindOf(err))
		}
	}

	err := newIO(t, s).RunTask("flaky", fail)
	if taskio.KindOf(err) != taskio.KindExceededRetries {
		t.Fatalf("KindOf = %v, want KindExceededRetries", taskio.KindOf(err))
	}
	if calls != taskio.DefaultMaxRetries {
		t.Errorf("body ran %d times, want %d", calls, taskio.DefaultMaxRetries)
	}
}

func TestRunTask_RecoversAfterFailure(t *testing.T) {
	s := memory.New()
	_ = newIO(t, s).RunTask("step", func(context.Context) error { return errors.New("transient") })

	if err := newIO(t, s).RunTask("step", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task, _ := s.GetTask(context.Background(), id.TaskID("job_test", "step"))
	if task.Status != taskio.StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", task.Status)
	}
}

func TestRunTask_KeysAreIndependent(t *testing.T) {
	s := memory.New()
	io := newIO(t, s)

	a, _ := taskio.Run(io, "a", func(context.Context) (string, error) { return "A", nil })
	b, _ := taskio.Run(io, "b", func(context.Context) (string, error) { return "B", nil })
	if a != "A" || b != "B" {
		t.Errorf("got %q %q", a, b)
	}

	tasks, _ := s.ListTasks(context.Background(), "job_test")
	if len(tasks) != 2 {
		t.Errorf("ListTasks = %d, want 2", len(tasks))
	}
}

func TestWait(t *testing.T) {
	s := memory.New()

	tests := []struct {
		name    string
		d       time.Duration
		wantErr error
	}{
		{"zero", 0, nil},
		{"short", 5 * time.Millisecond, nil},
		{"negative", -time.Second, taskio.ErrInvalidWait},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newIO(t, s).Wait("pause", tt.d)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	io := taskio.New(ctx, "job_test", memory.New())

	if err := io.Wait("pause", time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type recordingTrigger struct {
	name    string
	payload json.RawMessage
}

func (r *recordingTrigger) Trigger(_ context.Context, name string, payload json.RawMessage) error {
	r.name = name
	r.payload = payload
	return nil
}

func TestTriggerJob(t *testing.T) {
	s := memory.New()

	if err := newIO(t, s).TriggerJob("next", "doc.archived", nil); !errors.Is(err, taskio.ErrNoTrigger) {
		t.Fatalf("err = %v, want ErrNoTrigger", err)
	}

	rec := &recordingTrigger{}
	io := newIO(t, s, taskio.WithTrigger(rec))
	if err := io.TriggerJob("next", "doc.archived", map[string]string{"id": "doc_1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.name != "doc.archived" || string(rec.payload) != `{"id":"doc_1"}` {
		t.Errorf("trigger got %q %s", rec.name, rec.payload)
	}
}

func TestAccessors(t *testing.T) {
	io := newIO(t, memory.New())
	if io.JobID() != "job_test" {
		t.Errorf("JobID = %q", io.JobID())
	}
	if io.Logger() == nil || io.Context() == nil {
		t.Error("Logger and Context must be set")
	}
}
