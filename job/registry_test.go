package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/taskio"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
}

func noop[T any](_ context.Context, _ T, _ *taskio.IO) error { return nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := job.NewRegistry()

	var got emailPayload
	def := job.NewDefinition("send-email", "user.signup", func(_ context.Context, p emailPayload, _ *taskio.IO) error {
		got = p
		return nil
	})
	if err := job.RegisterDefinition(r, def); err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	e, ok := r.Lookup("send-email")
	if !ok {
		t.Fatal("expected definition to be registered")
	}
	if !e.Enabled {
		t.Error("definitions should be enabled by default")
	}
	if e.MaxRetries != job.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", e.MaxRetries, job.DefaultMaxRetries)
	}

	payload, _ := json.Marshal(emailPayload{To: "alice@example.com", Subject: "Hello"})
	if err := e.Handler(context.Background(), payload, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", got.To, "alice@example.com")
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Lookup("nonexistent"); ok {
		t.Fatal("expected no entry for unregistered definition")
	}
}

func TestRegistry_SubscribersFanOut(t *testing.T) {
	r := job.NewRegistry()
	job.MustRegisterDefinition(r, job.NewDefinition("b-notify", "doc.rejected", noop[struct{}]))
	job.MustRegisterDefinition(r, job.NewDefinition("a-audit", "doc.rejected", noop[struct{}]))
	job.MustRegisterDefinition(r, job.NewDefinition("c-off", "doc.rejected", noop[struct{}], job.WithEnabled(false)))
	job.MustRegisterDefinition(r, job.NewDefinition("other", "doc.approved", noop[struct{}]))

	subs := r.Subscribers("doc.rejected")
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(subs))
	}
	if subs[0].ID != "a-audit" || subs[1].ID != "b-notify" {
		t.Errorf("subscribers = [%s %s], want [a-audit b-notify]", subs[0].ID, subs[1].ID)
	}

	if got := r.Subscribers("nobody.listens"); len(got) != 0 {
		t.Errorf("expected no subscribers, got %d", len(got))
	}

	// Disabled definitions are still listed and looked up.
	if len(r.All()) != 4 {
		t.Errorf("All() = %d entries, want 4", len(r.All()))
	}
	if e, ok := r.Lookup("c-off"); !ok || e.Enabled {
		t.Errorf("Lookup(c-off) = %+v, %v", e, ok)
	}
}

func TestRegistry_InvalidJSONIsPermanent(t *testing.T) {
	r := job.NewRegistry()
	job.MustRegisterDefinition(r, job.NewDefinition("typed-job", "evt", func(_ context.Context, _ emailPayload, _ *taskio.IO) error {
		t.Fatal("handler should not be called with invalid JSON")
		return nil
	}))

	e, _ := r.Lookup("typed-job")
	err := e.Handler(context.Background(), []byte(`{invalid json`), nil)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !job.IsPermanent(err) {
		t.Errorf("decode errors should be permanent, got %v", err)
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.MustRegisterDefinition(r, job.NewDefinition("no-payload", "evt", func(_ context.Context, _ struct{}, _ *taskio.IO) error {
		called = true
		return nil
	}))

	e, _ := r.Lookup("no-payload")
	if err := e.Handler(context.Background(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty payload")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := job.NewRegistry()
	want := errors.New("handler failed")
	job.MustRegisterDefinition(r, job.NewDefinition("failing", "evt", func(_ context.Context, _ struct{}, _ *taskio.IO) error {
		return want
	}))

	e, _ := r.Lookup("failing")
	err := e.Handler(context.Background(), nil, nil)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if job.IsPermanent(err) {
		t.Error("plain handler errors should be retryable")
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	r := job.NewRegistry()
	job.MustRegisterDefinition(r, job.NewDefinition("overwrite", "evt", noop[struct{}], job.WithVersion(1)))
	job.MustRegisterDefinition(r, job.NewDefinition("overwrite", "evt", noop[struct{}], job.WithVersion(2)))

	e, _ := r.Lookup("overwrite")
	if e.Version != 2 {
		t.Errorf("Version = %d, want 2", e.Version)
	}
	if len(r.All()) != 1 {
		t.Errorf("expected a single entry, got %d", len(r.All()))
	}
}

func TestRegistry_RejectsInvalidDefinition(t *testing.T) {
	r := job.NewRegistry()

	tests := []struct {
		name string
		def  *job.Definition[struct{}]
		want error
	}{
		{"missing id", job.NewDefinition("", "evt", noop[struct{}]), job.ErrInvalidDefinition},
		{"missing trigger", job.NewDefinition("x", "", noop[struct{}]), job.ErrInvalidDefinition},
		{"nil handler", job.NewDefinition[struct{}]("x", "evt", nil), job.ErrInvalidDefinition},
		{"bad schema", job.NewDefinition("x", "evt", noop[struct{}], job.WithSchema([]byte(`{"type": 12}`))), job.ErrInvalidSchema},
		{"unparsable schema", job.NewDefinition("x", "evt", noop[struct{}], job.WithSchema([]byte(`{`))), job.ErrInvalidSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := job.RegisterDefinition(r, tt.def)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(r.All()) != 0 {
		t.Errorf("rejected definitions must not be registered, got %d", len(r.All()))
	}
}

func TestRegistry_LiteralDefinitionDefaults(t *testing.T) {
	r := job.NewRegistry()
	def := &job.Definition[struct{}]{ID: "send-email", Name: "user.signup", Handler: noop[struct{}]}
	if err := job.RegisterDefinition(r, def); err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	e, ok := r.Lookup("send-email")
	if !ok {
		t.Fatal("expected definition to be registered")
	}
	if !e.Enabled {
		t.Error("literal definition should be enabled")
	}
	if e.Version != 1 {
		t.Errorf("Version = %d, want 1", e.Version)
	}
	if e.MaxRetries != job.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", e.MaxRetries, job.DefaultMaxRetries)
	}
	if subs := r.Subscribers("user.signup"); len(subs) != 1 {
		t.Errorf("Subscribers = %d, want 1", len(subs))
	}
}

func TestRegistry_WithMaxRetriesZero(t *testing.T) {
	r := job.NewRegistry()
	job.MustRegisterDefinition(r, job.NewDefinition("one-shot", "user.signup", noop[struct{}], job.WithMaxRetries(0)))

	e, _ := r.Lookup("one-shot")
	if e.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", e.MaxRetries)
	}
}
