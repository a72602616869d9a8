// Package retention enforces per-tenant retention policies: bounded-batch
// deletion of records past their configured maximum age (and, when set, past
// the maximum record count). Sweeps are idempotent; a partial failure
// reports progress and is safe to rerun.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
)

// Store is the slice of the repository the sweeper needs.
type Store interface {
	DeleteExpired(ctx context.Context, tenantKey string, cutoff time.Time, limit int) (int64, error)
	DeleteOldest(ctx context.Context, tenantKey string, limit int) (int64, error)
	CountRecords(ctx context.Context, tenantKey string) (int64, error)
}

// Quotas reads retention policies.
type Quotas interface {
	QuotaByTenant(ctx context.Context, tenantKey string) (*model.TenantQuota, error)
	ListQuotas(ctx context.Context) ([]model.TenantQuota, error)
}

// Manager runs retention sweeps.
type Manager struct {
	store     Store
	quotas    Quotas
	batchSize int
	retries   int
	log       zerolog.Logger
	now       func() time.Time
}

// NewManager builds a Manager. batchSize bounds each DELETE so sweeps never
// hold long locks against ingestion and query traffic.
func NewManager(store Store, quotas Quotas, batchSize int, log zerolog.Logger) *Manager {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Manager{
		store:     store,
		quotas:    quotas,
		batchSize: batchSize,
		retries:   3,
		log:       log.With().Str("component", "retention").Logger(),
		now:       time.Now,
	}
}

// Sweep applies the tenant's stored policy, unless maxAge is non-zero, in
// which case that age is used directly (the administrative on-demand path).
// It returns the number of records deleted; on failure the count covers
// everything deleted before the error, and rerunning is safe.
func (m *Manager) Sweep(ctx context.Context, tenantKey string, maxAge time.Duration) (int64, error) {
	var maxRecords *int64
	if maxAge <= 0 {
		quota, err := m.quotas.QuotaByTenant(ctx, tenantKey)
		if err != nil {
			return 0, err
		}
		if quota == nil {
			return 0, errs.New(errs.KindNotFound, "no retention policy configured for tenant")
		}
		maxAge = quota.MaxAge
		maxRecords = quota.MaxRecords
	}

	cutoff := m.now().Add(-maxAge)
	deleted, err := m.deleteExpired(ctx, tenantKey, cutoff)
	if err != nil {
		return deleted, err
	}

	if maxRecords != nil {
		trimmed, err := m.trimOverflow(ctx, tenantKey, *maxRecords)
		deleted += trimmed
		if err != nil {
			return deleted, err
		}
	}

	m.log.Info().Str("tenant", tenantKey).Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention sweep finished")
	return deleted, nil
}

// SweepAll walks every configured quota. A failing tenant does not stop the
// sweep for the others; the first error is reported after the walk.
func (m *Manager) SweepAll(ctx context.Context) (int64, error) {
	quotas, err := m.quotas.ListQuotas(ctx)
	if err != nil {
		return 0, err
	}

	var (
		total    int64
		firstErr error
	)
	for _, q := range quotas {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		deleted, err := m.Sweep(ctx, q.TenantKey, 0)
		total += deleted
		if err != nil && firstErr == nil {
			firstErr = err
			m.log.Error().Err(err).Str("tenant", q.TenantKey).Msg("retention sweep failed")
		}
	}
	return total, firstErr
}

// deleteExpired loops bounded batches until a batch comes back short.
// Sweeps are interruptible between batches; an interrupted run resumes on
// the next invocation because the cutoff predicate is stable.
func (m *Manager) deleteExpired(ctx context.Context, tenantKey string, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := m.deleteWithRetry(ctx, func() (int64, error) {
			return m.store.DeleteExpired(ctx, tenantKey, cutoff, m.batchSize)
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(m.batchSize) {
			return total, nil
		}
	}
}

// trimOverflow deletes oldest-first until the tenant is back under its
// record-count cap.
func (m *Manager) trimOverflow(ctx context.Context, tenantKey string, maxRecords int64) (int64, error) {
	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		count, err := m.store.CountRecords(ctx, tenantKey)
		if err != nil {
			return total, err
		}
		overflow := count - maxRecords
		if overflow <= 0 {
			return total, nil
		}
		limit := m.batchSize
		if overflow < int64(limit) {
			limit = int(overflow)
		}
		n, err := m.deleteWithRetry(ctx, func() (int64, error) {
			return m.store.DeleteOldest(ctx, tenantKey, limit)
		})
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// deleteWithRetry retries a batch delete a bounded number of times on
// transient storage errors. Threshold deletes are idempotent, so a retry
// can only remove rows the failed attempt left behind.
func (m *Manager) deleteWithRetry(ctx context.Context, del func() (int64, error)) (int64, error) {
	var (
		n   int64
		err error
	)
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		n, err = del()
		if err == nil || !errs.Retryable(err) {
			return n, err
		}
		m.log.Warn().Err(err).Int("attempt", attempt+1).Msg("retention batch failed, retrying")
	}
	return n, err
}
