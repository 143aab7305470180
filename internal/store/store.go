// Package store persists properties and run summaries. Two drivers are
// provided: Postgres for production and SQLite for local development and the
// CLI's offline mode.
package store

import (
	"context"

	"github.com/ownerfi/dealflow/internal/model"
)

// Batch limits imposed by the store API. Lookups and writes are chunked to
// these sizes; each write chunk commits independently so a late failure never
// rolls back earlier chunks.
const (
	LookupBatchSize = 100
	WriteBatchSize  = 400
)

// Store is the persistence boundary for the ingestion pipeline and the
// status-refresh job.
type Store interface {
	// FilterKnown partitions property IDs into known and unknown, looking
	// them up in chunks. A failed chunk is counted in lookupErrors and its
	// IDs are treated as unknown, so they are re-fetched rather than
	// silently dropped.
	FilterKnown(ctx context.Context, ids []string) (known map[string]bool, lookupErrors int, err error)

	// UpsertBatch merge-writes properties in chunks, preserving each
	// existing record's FirstSeenAt. Returns the number of records written.
	UpsertBatch(ctx context.Context, props []model.Property) (int, error)

	Get(ctx context.Context, id string) (*model.Property, error)

	// ListActive returns active properties, oldest refresh first, capped at
	// limit.
	ListActive(ctx context.Context, limit int) ([]model.Property, error)

	// MarkInactive deactivates a property and records why.
	MarkInactive(ctx context.Context, id, reason string) error

	// UpdateRefresh writes back refresh bookkeeping (streak, timestamps)
	// and any merged listing changes for one property.
	UpdateRefresh(ctx context.Context, prop *model.Property) error

	SaveRunSummary(ctx context.Context, s *model.RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}
