// Package api exposes the job engine over HTTP with gin: the internal
// execution endpoint that providers dispatch to, and the operator routes
// under /api/admin/jobs.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/xraph/jobhook/admin"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/worker"
)

// Headers of the internal dispatch protocol.
const (
	HeaderJobID          = "X-Job-Id"
	HeaderJobSignature   = "X-Job-Signature"
	HeaderJobRetry       = "X-Job-Retry"
	HeaderJobRetrySource = "X-Job-Retry-Source"
	HeaderAdminAPIKey    = "X-Admin-API-Key"
)

// JobRoute is the path pattern of the execution endpoint.
const JobRoute = "/api/jobs/:jobDefinitionId/:jobId"

// JobURL returns the execution endpoint URL of a job under baseURL.
func JobURL(baseURL, definitionID, jobID string) string {
	return fmt.Sprintf("%s/api/jobs/%s/%s",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(definitionID),
		url.PathEscape(jobID),
	)
}

// Executor runs deliveries. It is satisfied by *worker.Executor.
type Executor interface {
	Execute(ctx context.Context, req worker.Request) (*worker.Result, error)
}

// Retrier runs bulk retries. It is satisfied by *admin.Controller.
type Retrier interface {
	Retry(ctx context.Context, req admin.Request) (*admin.Report, error)
}

// API wires the HTTP handlers of the job engine together.
type API struct {
	executor    Executor
	retrier     Retrier
	adminAPIKey string
	registry    *job.Registry
	store       job.Store
	serviceName string
	logger      *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithAdmin enables POST /api/admin/jobs/retry. Admin routes require
// apiKey in the X-Admin-API-Key header or as a bearer token.
func WithAdmin(r Retrier, apiKey string) Option {
	return func(a *API) {
		a.retrier = r
		a.adminAPIKey = apiKey
	}
}

// WithRegistry enables GET /api/admin/jobs/definitions.
func WithRegistry(r *job.Registry) Option {
	return func(a *API) { a.registry = r }
}

// WithStore enables GET /api/admin/jobs/counts.
func WithStore(s job.Store) Option {
	return func(a *API) { a.store = s }
}

// WithServiceName turns on otelgin request tracing under the given name.
func WithServiceName(name string) Option {
	return func(a *API) { a.serviceName = name }
}

// WithLogger sets the logger for request and rejection logs.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API around an executor.
func New(executor Executor, opts ...Option) *API {
	a := &API{
		executor: executor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with every route registered.
func (a *API) Handler() http.Handler {
	router := gin.New()

	// Order matters: the span wraps recovery so panics are recorded on it.
	if a.serviceName != "" {
		router.Use(otelgin.Middleware(a.serviceName))
	}
	router.Use(a.recovery())
	router.Use(a.requestLogger())

	a.RegisterRoutes(router)
	if a.retrier == nil {
		return router
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == RetryRoute {
			clearWriteDeadline(w)
		}
		router.ServeHTTP(w, r)
	})
}

// RetryRoute is the path of the bulk-retry route.
const RetryRoute = "/api/admin/jobs/retry"

// clearWriteDeadline lifts the server's WriteTimeout for one response. A
// bulk retry dispatches its jobs synchronously in small batches and can
// outlive any deadline sized for the execution endpoint. Writers that do
// not support deadlines, such as test recorders, are left alone.
func clearWriteDeadline(w http.ResponseWriter) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}

// RegisterRoutes registers the health route, the execution endpoint and
// the admin routes enabled by options.
func (a *API) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.Any(JobRoute, a.executeJob)

	if a.retrier == nil && a.registry == nil && a.store == nil {
		return
	}
	adminRoutes := router.Group("/api/admin/jobs")
	adminRoutes.Use(a.requireAdminAPIKey())
	{
		if a.retrier != nil {
			adminRoutes.POST("/retry", a.retryJobs)
		}
		if a.registry != nil {
			adminRoutes.GET("/definitions", a.listDefinitions)
		}
		if a.store != nil {
			adminRoutes.GET("/counts", a.jobCounts)
		}
	}
}
