package jobs_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/jobhook"
	"github.com/xraph/jobhook/internal/jobs"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/store/memory"
)

func newClient(t *testing.T) (*jobhook.Client, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewUnstartedServer(nil)
	t.Cleanup(srv.Close)

	store := memory.New()
	c, err := jobhook.New(context.Background(),
		jobhook.WithStore(store),
		jobhook.WithInternalURL("http://"+srv.Listener.Addr().String()),
		jobhook.WithSigningSecret("jobs-test-secret"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := jobs.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	srv.Config.Handler = c.Handler()
	srv.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c, store
}

func TestRegister_Definitions(t *testing.T) {
	c, _ := newClient(t)
	entries := c.Registry().All()
	if len(entries) != 3 {
		t.Fatalf("registered %d definitions, want 3", len(entries))
	}
	for _, e := range entries {
		if e.Schema == nil {
			t.Fatalf("definition %s has no schema", e.ID)
		}
	}
	if err := jobs.Register(c); err == nil {
		t.Fatal("second Register succeeded, want duplicate error")
	}
}

func TestSignupStartsOnboarding(t *testing.T) {
	c, store := newClient(t)

	_, err := c.TriggerJob(context.Background(), job.TriggerOptions{
		Name:    jobs.TriggerUserSignup,
		Payload: json.RawMessage(`{"userId":"u_1","email":"ada@example.com"}`),
	})
	if err != nil {
		t.Fatalf("TriggerJob: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		done, err := store.ListJobs(context.Background(), job.ListOpts{
			Statuses: []job.Status{job.StatusCompleted},
		})
		if err != nil {
			t.Fatalf("ListJobs: %v", err)
		}
		if len(done) == 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("completed jobs = %d, want welcome email and workspace", len(done))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
