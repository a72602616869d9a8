package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logward/logward/internal/model"
)

// TenantRepository reads organizations and manages retention quotas.
type TenantRepository struct {
	pool      *pgxpool.Pool
	opTimeout time.Duration
}

// NewTenantRepository returns a TenantRepository using the given pool.
func NewTenantRepository(pool *pgxpool.Pool, opTimeout time.Duration) *TenantRepository {
	return &TenantRepository{pool: pool, opTimeout: opTimeout}
}

func (r *TenantRepository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

// OrganizationIDByName resolves an organization name. The second return
// value is false when no organization carries the name. Results are never
// cached: tenant identity can change out-of-band.
func (r *TenantRepository) OrganizationIDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var id uuid.UUID
	err := withReadRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `SELECT id FROM organizations WHERE name = $1`, name).Scan(&id)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, mapStorageErr("resolve organization", err)
	}
	return id, true, nil
}

// UpsertQuota creates or replaces a tenant's retention policy.
func (r *TenantRepository) UpsertQuota(ctx context.Context, q model.TenantQuota) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_quotas (tenant_key, max_age_seconds, max_records, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_key) DO UPDATE
		SET max_age_seconds = EXCLUDED.max_age_seconds,
		    max_records = EXCLUDED.max_records,
		    updated_at = now()`,
		q.TenantKey, int64(q.MaxAge.Seconds()), q.MaxRecords,
	)
	if err != nil {
		return mapStorageErr("upsert quota", err)
	}
	return nil
}

// QuotaByTenant returns a tenant's retention policy, or nil when none is set.
func (r *TenantRepository) QuotaByTenant(ctx context.Context, tenantKey string) (*model.TenantQuota, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var (
		q          model.TenantQuota
		ageSeconds int64
	)
	err := withReadRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `
			SELECT tenant_key, max_age_seconds, max_records, updated_at
			FROM tenant_quotas
			WHERE tenant_key = $1`, tenantKey,
		).Scan(&q.TenantKey, &ageSeconds, &q.MaxRecords, &q.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStorageErr("get quota", err)
	}
	q.MaxAge = time.Duration(ageSeconds) * time.Second
	return &q, nil
}

// ListQuotas returns every configured retention policy.
func (r *TenantRepository) ListQuotas(ctx context.Context) ([]model.TenantQuota, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var quotas []model.TenantQuota
	err := withReadRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT tenant_key, max_age_seconds, max_records, updated_at
			FROM tenant_quotas
			ORDER BY tenant_key`)
		if err != nil {
			return err
		}
		defer rows.Close()
		quotas = quotas[:0]
		for rows.Next() {
			var (
				q          model.TenantQuota
				ageSeconds int64
			)
			if err := rows.Scan(&q.TenantKey, &ageSeconds, &q.MaxRecords, &q.UpdatedAt); err != nil {
				return err
			}
			q.MaxAge = time.Duration(ageSeconds) * time.Second
			quotas = append(quotas, q)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapStorageErr("list quotas", err)
	}
	return quotas, nil
}
