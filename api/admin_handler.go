package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/jobhook/admin"
	"github.com/xraph/jobhook/job"
)

// DefinitionResponse describes a registered job definition.
type DefinitionResponse struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	Enabled    bool        `json:"enabled"`
	MaxRetries int         `json:"maxRetries"`
	Schema     *job.Schema `json:"schema,omitempty"`
}

// JobCountsResponse holds job counts by status.
type JobCountsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// requireAdminAPIKey rejects requests without the configured admin key.
func (a *API) requireAdminAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.adminAPIKey == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin API not configured"})
			c.Abort()
			return
		}

		apiKey := c.GetHeader(HeaderAdminAPIKey)
		if apiKey == "" {
			// A bare key without the scheme is not accepted.
			if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				apiKey = token
			}
		}

		if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(a.adminAPIKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (a *API) retryJobs(c *gin.Context) {
	req, err := admin.DecodeRequest(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := a.retrier.Retry(c.Request.Context(), req)
	if errors.Is(err, admin.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry jobs"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (a *API) listDefinitions(c *gin.Context) {
	entries := a.registry.All()
	resp := make([]DefinitionResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, DefinitionResponse{
			ID:         e.ID,
			Name:       e.Name,
			Version:    e.Version,
			Enabled:    e.Enabled,
			MaxRetries: e.MaxRetries,
			Schema:     e.Schema,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) jobCounts(c *gin.Context) {
	defID := c.Query("jobDefinitionId")

	var resp JobCountsResponse
	for _, status := range []job.Status{
		job.StatusPending, job.StatusProcessing, job.StatusCompleted, job.StatusFailed,
	} {
		count, err := a.store.CountJobs(c.Request.Context(), job.CountOpts{Status: status, DefinitionID: defID})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count jobs"})
			return
		}
		switch status {
		case job.StatusPending:
			resp.Pending = count
		case job.StatusProcessing:
			resp.Processing = count
		case job.StatusCompleted:
			resp.Completed = count
		case job.StatusFailed:
			resp.Failed = count
		}
	}

	c.JSON(http.StatusOK, resp)
}
