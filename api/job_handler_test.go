package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xraph/jobhook/api"
	"github.com/xraph/jobhook/id"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/signing"
	"github.com/xraph/jobhook/store/memory"
	"github.com/xraph/jobhook/taskio"
	"github.com/xraph/jobhook/worker"
)

type welcomePayload struct {
	Email string `json:"email"`
}

var _ = Describe("Job execution endpoint", func() {
	var (
		router   http.Handler
		store    *memory.Store
		signer   *signing.Signer
		calls    atomic.Int32
		failWith error
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		store = memory.New()
		signer = signing.MustNew("test-secret")
		calls.Store(0)
		failWith = nil

		registry := job.NewRegistry()
		job.MustRegisterDefinition(registry, job.NewDefinition("send-welcome-email", "user.signup",
			func(_ context.Context, _ welcomePayload, _ *taskio.IO) error {
				calls.Add(1)
				return failWith
			},
			job.WithReflectedSchema(),
		))
		job.MustRegisterDefinition(registry, job.NewDefinition("archived", "user.signup",
			func(context.Context, welcomePayload, *taskio.IO) error { return nil },
			job.WithEnabled(false),
		))

		executor := worker.NewExecutor(registry, store, signer,
			worker.WithSleep(func(context.Context, time.Duration) error { return nil }),
		)
		DeferCleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = executor.Shutdown(ctx)
		})

		router = api.New(executor).Handler()
	})

	createJob := func(maxRetries int) *job.Job {
		j := &job.Job{
			ID:           id.NewJobID(),
			DefinitionID: "send-welcome-email",
			Name:         "user.signup",
			Version:      1,
			Payload:      json.RawMessage(`{"email":"a@example.com"}`),
			Status:       job.StatusPending,
			MaxRetries:   maxRetries,
		}
		Expect(store.CreateJob(context.Background(), j)).To(Succeed())
		return j
	}

	signedRequest := func(method, defID, jobID string, opts job.TriggerOptions) *http.Request {
		body, err := opts.Canonical()
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(method, api.JobURL("", defID, jobID), bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(api.HeaderJobSignature, signer.Sign(body))
		return req
	}

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	storedJob := func(jobID string) *job.Job {
		j, err := store.GetJob(context.Background(), jobID)
		Expect(err).NotTo(HaveOccurred())
		return j
	}

	It("reports health", func() {
		w := serve(httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"ok"`))
	})

	It("rejects methods other than POST with 405", func() {
		j := createJob(3)
		w := serve(signedRequest(http.MethodGet, j.DefinitionID, j.ID, j.TriggerOptions()))
		Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
		Expect(w.Header().Get("Allow")).To(Equal(http.MethodPost))
	})

	Context("with a valid signed delivery", func() {
		It("runs the handler and completes the job", func() {
			j := createJob(3)
			w := serve(signedRequest(http.MethodPost, j.DefinitionID, j.ID, j.TriggerOptions()))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("OK"))
			Expect(calls.Load()).To(Equal(int32(1)))

			got := storedJob(j.ID)
			Expect(got.Status).To(Equal(job.StatusCompleted))
			Expect(got.CompletedAt).NotTo(BeNil())
		})

		It("answers 200 without rerunning a completed job", func() {
			j := createJob(3)
			Expect(serve(signedRequest(http.MethodPost, j.DefinitionID, j.ID, j.TriggerOptions())).Code).To(Equal(http.StatusOK))
			Expect(serve(signedRequest(http.MethodPost, j.DefinitionID, j.ID, j.TriggerOptions())).Code).To(Equal(http.StatusOK))
			Expect(calls.Load()).To(Equal(int32(1)))
		})

		It("prefers the X-Job-Id header over the path", func() {
			j := createJob(3)
			req := signedRequest(http.MethodPost, j.DefinitionID, "ignored", j.TriggerOptions())
			req.Header.Set(api.HeaderJobID, j.ID)

			Expect(serve(req).Code).To(Equal(http.StatusOK))
			Expect(storedJob(j.ID).Status).To(Equal(job.StatusCompleted))
		})

		It("counts X-Job-Retry deliveries against the retry budget", func() {
			j := createJob(3)
			req := signedRequest(http.MethodPost, j.DefinitionID, j.ID, j.TriggerOptions())
			req.Header.Set(api.HeaderJobRetry, "1")

			Expect(serve(req).Code).To(Equal(http.StatusOK))
			got := storedJob(j.ID)
			Expect(got.Retried).To(Equal(1))
			Expect(got.LastRetriedAt).NotTo(BeNil())
		})

		It("answers 200 and requeues when the handler fails with budget left", func() {
			failWith = errors.New("smtp unavailable")
			j := createJob(3)

			w := serve(signedRequest(http.MethodPost, j.DefinitionID, j.ID, j.TriggerOptions()))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(storedJob(j.ID).Status).To(Equal(job.StatusPending))
		})

		It("answers 500 and fails the job when retries are exhausted", func() {
			failWith = errors.New("smtp unavailable")
			j := createJob(0)

			w := serve(signedRequest(http.MethodPost, j.DefinitionID, j.ID, j.TriggerOptions()))
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(Equal("Task exceeded retries"))
			Expect(storedJob(j.ID).Status).To(Equal(job.StatusFailed))
		})
	})

	DescribeTable("rejections leave the job untouched",
		func(mutate func(req *http.Request, j *job.Job) *http.Request, wantCode int, wantBody string) {
			j := createJob(3)
			req := mutate(signedRequest(http.MethodPost, j.DefinitionID, j.ID, j.TriggerOptions()), j)

			w := serve(req)
			Expect(w.Code).To(Equal(wantCode))
			Expect(w.Body.String()).To(Equal(wantBody))
			Expect(calls.Load()).To(BeZero())
			Expect(storedJob(j.ID).Status).To(Equal(job.StatusPending))
		},
		Entry("malformed body", func(req *http.Request, j *job.Job) *http.Request {
			bad := httptest.NewRequest(http.MethodPost, req.URL.Path, strings.NewReader(`{"name":`))
			bad.Header = req.Header
			return bad
		}, http.StatusBadRequest, "Bad request"),
		Entry("missing name", func(req *http.Request, j *job.Job) *http.Request {
			bad := httptest.NewRequest(http.MethodPost, req.URL.Path, strings.NewReader(`{"payload":{}}`))
			bad.Header = req.Header
			return bad
		}, http.StatusBadRequest, "Bad request"),
		Entry("missing signature", func(req *http.Request, _ *job.Job) *http.Request {
			req.Header.Del(api.HeaderJobSignature)
			return req
		}, http.StatusBadRequest, "Bad request"),
		Entry("unknown definition", func(req *http.Request, j *job.Job) *http.Request {
			return signedRequest(http.MethodPost, "nope", j.ID, j.TriggerOptions())
		}, http.StatusNotFound, "Job not found"),
		Entry("disabled definition", func(req *http.Request, j *job.Job) *http.Request {
			return signedRequest(http.MethodPost, "archived", j.ID, j.TriggerOptions())
		}, http.StatusNotFound, "Job not found"),
		Entry("invalid signature", func(req *http.Request, _ *job.Job) *http.Request {
			req.Header.Set(api.HeaderJobSignature, strings.Repeat("ab", 32))
			return req
		}, http.StatusUnauthorized, "Unauthorized"),
		Entry("payload schema mismatch", func(req *http.Request, j *job.Job) *http.Request {
			return signedRequest(http.MethodPost, j.DefinitionID, j.ID, job.TriggerOptions{
				Name:    j.Name,
				Payload: json.RawMessage(`{"email":42}`),
			})
		}, http.StatusBadRequest, "Bad request"),
		Entry("unknown job", func(req *http.Request, j *job.Job) *http.Request {
			return signedRequest(http.MethodPost, j.DefinitionID, "job_missing", j.TriggerOptions())
		}, http.StatusNotFound, "Job not found"),
	)
})
