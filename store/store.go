// Package store defines the aggregate persistence interface. The job and
// task subsystems each define their own store interface and the composite
// Store composes them. Backends: Postgres and Memory.
package store

import (
	"context"

	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/taskio"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem store so that job resets can
// touch jobs and tasks in one transaction.
type Store interface {
	job.Store
	taskio.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
