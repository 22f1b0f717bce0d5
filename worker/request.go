package worker

import (
	"context"

	"github.com/xraph/jobhook/job"
)

// RetrySourceAdmin marks deliveries started by the admin bulk-retry tool.
const RetrySourceAdmin = "admin"

// Request is one delivery of an existing job to the executor.
type Request struct {
	// DefinitionID selects the handler.
	DefinitionID string
	// JobID is the job row being executed.
	JobID string
	// Options are the signed trigger options.
	Options job.TriggerOptions
	// Signature is the hex HMAC of Options.Canonical().
	Signature string
	// Retry marks redeliveries; they count against the job's retry budget.
	Retry bool
	// RetrySource records who asked for the redelivery, e.g. RetrySourceAdmin.
	RetrySource string
}

// IsAdmin reports whether the delivery is an operator-started retry. A
// first delivery never counts, whatever its RetrySource.
func (r Request) IsAdmin() bool { return r.Retry && r.RetrySource == RetrySourceAdmin }

// Dispatcher delivers requests to an executor, usually a remote one. The
// dispatcher signs the request; callers leave Signature empty.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}
