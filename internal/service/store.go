package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/logward/logward/internal/model"
)

// Store is the persistence surface the log service depends on. The pgx
// repository implements it; tests substitute an in-memory fake.
type Store interface {
	// InsertRecord persists one record.
	InsertRecord(ctx context.Context, rec *model.LogRecord) error

	// InsertRecords persists a batch in a single round trip and reports
	// which record ids were actually written. A record whose id is absent
	// from the result was skipped (already present) without affecting the
	// rest of the batch.
	InsertRecords(ctx context.Context, recs []*model.LogRecord) (map[uuid.UUID]bool, error)

	// SearchRecords returns one page of matching records ordered by
	// timestamp descending, id ascending, plus the total match count.
	SearchRecords(ctx context.Context, f model.Filter, p model.Page) ([]model.LogRecord, int64, error)

	// RecordByID fetches one tenant-scoped record, or nil when absent.
	RecordByID(ctx context.Context, tenantKey string, id uuid.UUID) (*model.LogRecord, error)

	// DeleteRecord removes one tenant-scoped record, reporting whether a
	// row was actually deleted.
	DeleteRecord(ctx context.Context, tenantKey string, id uuid.UUID) (bool, error)

	// RecentServices lists distinct service names seen since the given time.
	RecentServices(ctx context.Context, tenantKey string, since time.Time, limit int) ([]string, error)

	// AggregateMetrics computes the metrics report in a single store round
	// trip; matching rows are never materialized in process memory.
	AggregateMetrics(ctx context.Context, f model.Filter) (*model.MetricsReport, error)
}

// Options bound the service's request handling.
type Options struct {
	MaxBatchSize    int
	MaxPageSize     int
	DefaultPageSize int
	RecentWindow    time.Duration
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxBatchSize:    1000,
		MaxPageSize:     1000,
		DefaultPageSize: 100,
		RecentWindow:    7 * 24 * time.Hour,
	}
}
