package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xraph/jobhook/admin"
	"github.com/xraph/jobhook/api"
	"github.com/xraph/jobhook/id"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/store/memory"
	"github.com/xraph/jobhook/taskio"
	"github.com/xraph/jobhook/worker"
)

type stubExecutor struct{}

func (stubExecutor) Execute(context.Context, worker.Request) (*worker.Result, error) {
	return &worker.Result{Outcome: worker.OutcomeCompleted}, nil
}

type recordingRetrier struct {
	jobs    []string
	sources []string
}

func (r *recordingRetrier) RetryExistingJob(_ context.Context, j *job.Job, source string) error {
	r.jobs = append(r.jobs, j.ID)
	r.sources = append(r.sources, source)
	return nil
}

var _ = Describe("Admin routes", func() {
	const adminAPIKey = "test-admin-key"

	var (
		router  http.Handler
		store   *memory.Store
		retrier *recordingRetrier
	)

	newRouter := func(key string) http.Handler {
		registry := job.NewRegistry()
		job.MustRegisterDefinition(registry, job.NewDefinition("send-welcome-email", "user.signup",
			func(context.Context, welcomePayload, *taskio.IO) error { return nil },
			job.WithReflectedSchema(),
			job.WithVersion(2),
		))
		ctrl := admin.NewController(store, retrier, admin.WithBatchSize(1))
		return api.New(stubExecutor{},
			api.WithAdmin(ctrl, key),
			api.WithRegistry(registry),
			api.WithStore(store),
		).Handler()
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		store = memory.New()
		retrier = &recordingRetrier{}
		router = newRouter(adminAPIKey)
	})

	seed := func(status job.Status) *job.Job {
		j := &job.Job{
			ID:           id.NewJobID(),
			DefinitionID: "send-welcome-email",
			Name:         "user.signup",
			Payload:      json.RawMessage(`{"email":"a@example.com"}`),
			Status:       status,
			MaxRetries:   job.DefaultMaxRetries,
			SubmittedAt:  time.Now().UTC(),
		}
		Expect(store.CreateJob(context.Background(), j)).To(Succeed())
		return j
	}

	post := func(body string, auth func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/retry", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if auth != nil {
			auth(req)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	withKey := func(req *http.Request) { req.Header.Set(api.HeaderAdminAPIKey, adminAPIKey) }

	Describe("POST /api/admin/jobs/retry", func() {
		It("returns 401 without an API key", func() {
			w := post(`{}`, nil)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(retrier.jobs).To(BeEmpty())
		})

		It("returns 401 with a wrong API key", func() {
			w := post(`{}`, func(r *http.Request) { r.Header.Set(api.HeaderAdminAPIKey, "nope") })
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("returns 503 when no API key is configured", func() {
			router = newRouter("")
			w := post(`{}`, withKey)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("accepts a bearer token", func() {
			w := post(`{}`, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+adminAPIKey) })
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("rejects a key sent without the Bearer scheme", func() {
			w := post(`{}`, func(r *http.Request) { r.Header.Set("Authorization", adminAPIKey) })
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(retrier.jobs).To(BeEmpty())
		})

		It("retries failed jobs and reports them", func() {
			failed := seed(job.StatusFailed)
			seed(job.StatusCompleted)

			w := post(`{"scope":"failed"}`, withKey)
			Expect(w.Code).To(Equal(http.StatusOK))

			var report admin.Report
			Expect(json.Unmarshal(w.Body.Bytes(), &report)).To(Succeed())
			Expect(report.Matched).To(Equal(1))
			Expect(report.Retried).To(Equal(1))
			Expect(report.RetriedJobs[0].ID).To(Equal(failed.ID))
			Expect(report.RetriedJobs[0].Dispatched).To(BeTrue())
			Expect(report.Debug.JobsProvider).To(Equal("local"))

			Expect(retrier.jobs).To(Equal([]string{failed.ID}))
			Expect(retrier.sources).To(Equal([]string{worker.RetrySourceAdmin}))

			got, err := store.GetJob(context.Background(), failed.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(job.StatusPending))
		})

		It("honours limit", func() {
			seed(job.StatusFailed)
			seed(job.StatusFailed)
			seed(job.StatusFailed)

			w := post(`{"limit":2,"dispatch":false}`, withKey)
			Expect(w.Code).To(Equal(http.StatusOK))

			var report admin.Report
			Expect(json.Unmarshal(w.Body.Bytes(), &report)).To(Succeed())
			Expect(report.Matched).To(Equal(2))
			Expect(retrier.jobs).To(BeEmpty())
		})

		DescribeTable("rejects invalid requests with 400",
			func(body string) {
				w := post(body, withKey)
				Expect(w.Code).To(Equal(http.StatusBadRequest))
			},
			Entry("unknown field", `{"force":true}`),
			Entry("unknown scope", `{"scope":"completed"}`),
			Entry("limit too large", `{"limit":1001}`),
			Entry("zero limit", `{"limit":0}`),
			Entry("malformed JSON", `{"scope":`),
		)
	})

	Describe("GET /api/admin/jobs/definitions", func() {
		It("lists definitions with their payload schema", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/jobs/definitions", nil)
			withKey(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var defs []map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &defs)).To(Succeed())
			Expect(defs).To(HaveLen(1))
			Expect(defs[0]["id"]).To(Equal("send-welcome-email"))
			Expect(defs[0]["version"]).To(BeEquivalentTo(2))
			Expect(defs[0]["schema"]).To(HaveKey("properties"))
		})
	})

	Describe("GET /api/admin/jobs/counts", func() {
		It("counts jobs by status", func() {
			seed(job.StatusFailed)
			seed(job.StatusFailed)
			seed(job.StatusPending)

			req := httptest.NewRequest(http.MethodGet, "/api/admin/jobs/counts", nil)
			withKey(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var counts api.JobCountsResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &counts)).To(Succeed())
			Expect(counts).To(Equal(api.JobCountsResponse{Pending: 1, Failed: 2}))
		})
	})
})
