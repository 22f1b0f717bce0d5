package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/worker"
)

// executeJob is the internal execution endpoint. Responses are plain text.
func (a *API) executeJob(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.String(http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	jobID := c.GetHeader(HeaderJobID)
	if jobID == "" {
		jobID = c.Param("jobId")
	}

	var opts job.TriggerOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.String(http.StatusBadRequest, "Bad request")
		return
	}

	req := worker.Request{
		DefinitionID: c.Param("jobDefinitionId"),
		JobID:        jobID,
		Options:      opts,
		Signature:    c.GetHeader(HeaderJobSignature),
		Retry:        len(c.Request.Header.Values(HeaderJobRetry)) > 0,
		RetrySource:  c.GetHeader(HeaderJobRetrySource),
	}

	// The dispatcher may give up waiting; the execution still runs to the end.
	ctx := context.WithoutCancel(c.Request.Context())

	res, err := a.executor.Execute(ctx, req)
	if err != nil {
		status, msg := rejection(err)
		log := a.logger.With(
			slog.String("job_definition_id", req.DefinitionID),
			slog.String("job_id", req.JobID),
			slog.Int("status", status),
		)
		if status >= http.StatusInternalServerError {
			log.Error("job execution error", slog.String("error", err.Error()))
		} else {
			log.Warn("job delivery rejected", slog.String("error", err.Error()))
		}
		c.String(status, msg)
		return
	}

	switch res.Outcome {
	case worker.OutcomeFailed:
		c.String(http.StatusInternalServerError, "Task exceeded retries")
	default:
		c.String(http.StatusOK, "OK")
	}
}

// rejection maps an executor error to a status code and response text.
func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, worker.ErrMissingSignature),
		errors.Is(err, job.ErrInvalidPayload):
		return http.StatusBadRequest, "Bad request"
	case errors.Is(err, job.ErrDefinitionNotFound),
		errors.Is(err, job.ErrJobNotFound):
		return http.StatusNotFound, "Job not found"
	case errors.Is(err, worker.ErrInvalidSignature):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
