package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xraph/jobhook/job"
)

const (
	// DefaultLimit is the number of jobs retried when Limit is unset.
	DefaultLimit = 200
	// MaxLimit caps Limit.
	MaxLimit = 1000
)

// ErrInvalidRequest is returned for a malformed retry request.
var ErrInvalidRequest = errors.New("admin: invalid request")

// Scope selects which job statuses a retry matches.
type Scope string

const (
	ScopeFailed     Scope = "failed"
	ScopePending    Scope = "pending"
	ScopeProcessing Scope = "processing"
	// ScopeAll matches everything except COMPLETED.
	ScopeAll Scope = "all"
)

// Statuses returns the job statuses s matches, or nil for an unknown scope.
func (s Scope) Statuses() []job.Status {
	switch s {
	case ScopeFailed:
		return []job.Status{job.StatusFailed}
	case ScopePending:
		return []job.Status{job.StatusPending}
	case ScopeProcessing:
		return []job.Status{job.StatusProcessing}
	case ScopeAll:
		return []job.Status{job.StatusFailed, job.StatusPending, job.StatusProcessing}
	default:
		return nil
	}
}

// Request selects the jobs to retry. Pointer fields distinguish "unset"
// from the zero value so defaults can be applied.
type Request struct {
	Scope           Scope  `json:"scope,omitempty"`
	JobDefinitionID string `json:"jobDefinitionId,omitempty"`
	Name            string `json:"name,omitempty"`
	Limit           *int   `json:"limit,omitempty"`
	Reset           *bool  `json:"reset,omitempty"`
	Dispatch        *bool  `json:"dispatch,omitempty"`
	// SubmittedBefore narrows the selection to jobs submitted earlier.
	SubmittedBefore *time.Time `json:"submittedBefore,omitempty"`
	// UpdatedBefore narrows the selection to jobs untouched since then.
	UpdatedBefore *time.Time `json:"updatedBefore,omitempty"`
}

// DecodeRequest reads a JSON request body. Unknown fields are rejected and
// an empty body yields the default request.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	body, err := io.ReadAll(r)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if dec.More() {
		return req, fmt.Errorf("%w: trailing data after request", ErrInvalidRequest)
	}
	return req, nil
}

// params is a validated Request with defaults applied.
type params struct {
	statuses        []job.Status
	jobDefinitionID string
	name            string
	limit           int
	reset           bool
	dispatch        bool
	submittedBefore time.Time
	updatedBefore   time.Time
}

func (r Request) params() (params, error) {
	p := params{
		jobDefinitionID: r.JobDefinitionID,
		name:            r.Name,
		limit:           DefaultLimit,
		reset:           true,
		dispatch:        true,
	}

	scope := r.Scope
	if scope == "" {
		scope = ScopeFailed
	}
	p.statuses = scope.Statuses()
	if p.statuses == nil {
		return p, fmt.Errorf("%w: unknown scope %q", ErrInvalidRequest, r.Scope)
	}

	if r.Limit != nil {
		if *r.Limit < 1 || *r.Limit > MaxLimit {
			return p, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, MaxLimit)
		}
		p.limit = *r.Limit
	}
	if r.Reset != nil {
		p.reset = *r.Reset
	}
	if r.Dispatch != nil {
		p.dispatch = *r.Dispatch
	}
	if r.SubmittedBefore != nil {
		p.submittedBefore = *r.SubmittedBefore
	}
	if r.UpdatedBefore != nil {
		p.updatedBefore = *r.UpdatedBefore
	}
	return p, nil
}
