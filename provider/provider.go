// Package provider holds the trigger logic shared by the job providers.
// Subpackages local and stream implement the delivery transports.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/jobhook/id"
	"github.com/xraph/jobhook/job"
)

// CreateJobs persists one PENDING job per enabled definition subscribed to
// opts.Name, in registry order. It returns the jobs created so far along
// with the first store error.
func CreateJobs(ctx context.Context, registry *job.Registry, store job.Store, opts job.TriggerOptions, now time.Time) ([]*job.Job, error) {
	if _, err := opts.Canonical(); err != nil {
		return nil, err
	}

	subs := registry.Subscribers(opts.Name)
	jobs := make([]*job.Job, 0, len(subs))
	for _, e := range subs {
		j := &job.Job{
			ID:           id.NewJobID(),
			DefinitionID: e.ID,
			Name:         opts.Name,
			Version:      e.Version,
			Payload:      opts.Payload,
			Status:       job.StatusPending,
			MaxRetries:   e.MaxRetries,
			SubmittedAt:  now,
			UpdatedAt:    now,
		}
		if err := store.CreateJob(ctx, j); err != nil {
			return jobs, fmt.Errorf("create job for %q: %w", e.ID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
