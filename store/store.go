// Package store defines the aggregate persistence interface. The job store
// contract lives in package job; the composite Store adds lifecycle
// operations every backend provides. Backends: Memory, Redis, Postgres and
// SQLite.
package store

import (
	"context"

	"github.com/xraph/workq/job"
)

// Store is the aggregate persistence interface.
type Store interface {
	job.Store

	// Migrate creates or updates the schema. A no-op for schemaless backends.
	Migrate(ctx context.Context) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases resources the store owns.
	Close() error
}
