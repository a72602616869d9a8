// Package repository is the pgx-backed persistence layer. All SQL lives
// here; every value reaches the database as a bind parameter, and every
// driver error is mapped to the service error taxonomy before it escapes.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
)

const logColumns = "id, tenant_key, service_name, level, message, ts, duration_ms, correlation_id, tags, error_context, created_at"

// LogRepository persists and reads log records.
type LogRepository struct {
	pool      *pgxpool.Pool
	opTimeout time.Duration
}

// NewLogRepository returns a LogRepository using the given pool. opTimeout
// bounds each operation including the wait for a pooled connection; when the
// pool is exhausted past the timeout the operation fails with
// StorageUnavailable rather than queueing without bound.
func NewLogRepository(pool *pgxpool.Pool, opTimeout time.Duration) *LogRepository {
	return &LogRepository{pool: pool, opTimeout: opTimeout}
}

func (r *LogRepository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

// InsertRecord writes one record. Never retried: ingestion is at-least-once
// and a blind retry could duplicate the record.
func (r *LogRepository) InsertRecord(ctx context.Context, rec *model.LogRecord) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		rec.ID, rec.TenantKey, rec.ServiceName, rec.Level, rec.Message,
		rec.Timestamp, rec.DurationMS, nullIfEmpty(rec.CorrelationID), rec.Tags, rec.ErrorContext,
	)
	if err != nil {
		return mapStorageErr("insert record", err)
	}
	return nil
}

// InsertRecords writes a batch in one multi-row statement and returns the
// set of ids actually written. ON CONFLICT DO NOTHING keeps one record's
// duplicate id from failing its siblings while staying a single round trip.
func (r *LogRepository) InsertRecords(ctx context.Context, recs []*model.LogRecord) (map[uuid.UUID]bool, error) {
	if len(recs) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	const cols = 10
	values := make([]string, len(recs))
	args := make([]any, 0, len(recs)*cols)
	for i, rec := range recs {
		base := i * cols
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, now())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)
		args = append(args,
			rec.ID, rec.TenantKey, rec.ServiceName, rec.Level, rec.Message,
			rec.Timestamp, rec.DurationMS, nullIfEmpty(rec.CorrelationID), rec.Tags, rec.ErrorContext,
		)
	}

	rows, err := r.pool.Query(ctx, `
		INSERT INTO logs (`+logColumns+`)
		VALUES `+strings.Join(values, ", ")+`
		ON CONFLICT (id) DO NOTHING
		RETURNING id`, args...)
	if err != nil {
		return nil, mapStorageErr("insert batch", err)
	}
	defer rows.Close()

	persisted := make(map[uuid.UUID]bool, len(recs))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, mapStorageErr("insert batch", err)
		}
		persisted[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr("insert batch", err)
	}
	return persisted, nil
}

// SearchRecords returns one page plus the total match count. Ordering is
// timestamp descending with id ascending breaking ties, so pages are stable
// against a consistent snapshot.
func (r *LogRepository) SearchRecords(ctx context.Context, f model.Filter, p model.Page) ([]model.LogRecord, int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	where, args := buildWhere(f)

	var total int64
	err := withReadRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, "SELECT count(*) FROM logs WHERE "+where, args...).Scan(&total)
	})
	if err != nil {
		return nil, 0, mapStorageErr("count records", err)
	}

	limitArg := len(args) + 1
	offsetArg := len(args) + 2
	query := fmt.Sprintf(`
		SELECT `+logColumns+`
		FROM logs
		WHERE `+where+`
		ORDER BY ts DESC, id ASC
		LIMIT $%d OFFSET $%d`, limitArg, offsetArg)
	args = append(args, p.Limit, p.Offset)

	var recs []model.LogRecord
	err = withReadRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		recs = recs[:0]
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, mapStorageErr("search records", err)
	}
	return recs, total, nil
}

// RecordByID fetches one tenant-scoped record, or nil when absent.
func (r *LogRepository) RecordByID(ctx context.Context, tenantKey string, id uuid.UUID) (*model.LogRecord, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var rec model.LogRecord
	err := withReadRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx, `
			SELECT `+logColumns+`
			FROM logs
			WHERE tenant_key = $1 AND id = $2`, tenantKey, id)
		var scanErr error
		rec, scanErr = scanRecord(row)
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStorageErr("get record", err)
	}
	return &rec, nil
}

// DeleteRecord removes one tenant-scoped record. Deleting by id is
// idempotent; a repeat reports no row deleted.
func (r *LogRepository) DeleteRecord(ctx context.Context, tenantKey string, id uuid.UUID) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM logs
		WHERE tenant_key = $1 AND id = $2`, tenantKey, id)
	if err != nil {
		return false, mapStorageErr("delete record", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecentServices lists distinct service names active since the given time.
func (r *LogRepository) RecentServices(ctx context.Context, tenantKey string, since time.Time, limit int) ([]string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var services []string
	err := withReadRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT DISTINCT service_name
			FROM logs
			WHERE tenant_key = $1 AND ts > $2
			ORDER BY service_name
			LIMIT $3`, tenantKey, since, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		services = services[:0]
		for rows.Next() {
			var s string
			if err := rows.Scan(&s); err != nil {
				return err
			}
			services = append(services, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapStorageErr("recent services", err)
	}
	return services, nil
}

// AggregateMetrics computes the full metrics report in one aggregate query.
// percentile_disc selects the value at rank ceil(P*N) over the sorted
// durations, which is exactly the ceiling-rank percentile the API promises;
// matching rows never leave the database.
func (r *LogRepository) AggregateMetrics(ctx context.Context, f model.Filter) (*model.MetricsReport, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	where, args := buildWhere(f)
	query := `
		SELECT
			count(*) AS total,
			count(*) FILTER (WHERE level = 'DEBUG') AS debug_count,
			count(*) FILTER (WHERE level = 'INFO') AS info_count,
			count(*) FILTER (WHERE level = 'WARNING') AS warning_count,
			count(*) FILTER (WHERE level = 'ERROR') AS error_count,
			count(*) FILTER (WHERE level = 'CRITICAL') AS critical_count,
			count(duration_ms) AS duration_count,
			percentile_disc(0.5) WITHIN GROUP (ORDER BY duration_ms) AS p50,
			percentile_disc(0.95) WITHIN GROUP (ORDER BY duration_ms) AS p95,
			percentile_disc(0.99) WITHIN GROUP (ORDER BY duration_ms) AS p99,
			min(duration_ms) AS min_duration,
			avg(duration_ms) AS avg_duration,
			max(duration_ms) AS max_duration
		FROM logs
		WHERE ` + where

	var (
		report                                model.MetricsReport
		debugN, infoN, warnN, errorN, criticN int64
	)
	err := withReadRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, query, args...).Scan(
			&report.Total,
			&debugN, &infoN, &warnN, &errorN, &criticN,
			&report.DurationCount,
			&report.P50DurationMS, &report.P95DurationMS, &report.P99DurationMS,
			&report.MinDurationMS, &report.AvgDurationMS, &report.MaxDurationMS,
		)
	})
	if err != nil {
		return nil, mapStorageErr("aggregate metrics", err)
	}

	report.ByLevel = map[model.Level]int64{
		model.LevelDebug:    debugN,
		model.LevelInfo:     infoN,
		model.LevelWarning:  warnN,
		model.LevelError:    errorN,
		model.LevelCritical: criticN,
	}
	if report.Total > 0 {
		errorRate := float64(errorN+criticN) / float64(report.Total)
		successRate := 1 - errorRate
		report.ErrorRate = &errorRate
		report.SuccessRate = &successRate
	}
	return &report, nil
}

// CountRecords returns the number of records held for a tenant.
func (r *LogRepository) CountRecords(ctx context.Context, tenantKey string) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var n int64
	err := withReadRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `SELECT count(*) FROM logs WHERE tenant_key = $1`, tenantKey).Scan(&n)
	})
	if err != nil {
		return 0, mapStorageErr("count records", err)
	}
	return n, nil
}

// DeleteExpired removes up to limit records older than cutoff, oldest first.
// Deletion by threshold is idempotent, so callers may retry freely.
func (r *LogRepository) DeleteExpired(ctx context.Context, tenantKey string, cutoff time.Time, limit int) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM logs
		WHERE id IN (
			SELECT id FROM logs
			WHERE tenant_key = $1 AND ts < $2
			ORDER BY ts ASC, id ASC
			LIMIT $3
		)`, tenantKey, cutoff, limit)
	if err != nil {
		return 0, mapStorageErr("delete expired", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOldest removes up to limit of the tenant's oldest records regardless
// of age; used to trim record-count overflow.
func (r *LogRepository) DeleteOldest(ctx context.Context, tenantKey string, limit int) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM logs
		WHERE id IN (
			SELECT id FROM logs
			WHERE tenant_key = $1
			ORDER BY ts ASC, id ASC
			LIMIT $2
		)`, tenantKey, limit)
	if err != nil {
		return 0, mapStorageErr("delete oldest", err)
	}
	return tag.RowsAffected(), nil
}

// scanRecord reads one logs row in logColumns order.
func scanRecord(row pgx.Row) (model.LogRecord, error) {
	var (
		rec  model.LogRecord
		corr *string
	)
	err := row.Scan(
		&rec.ID, &rec.TenantKey, &rec.ServiceName, &rec.Level, &rec.Message,
		&rec.Timestamp, &rec.DurationMS, &corr, &rec.Tags, &rec.ErrorContext,
		&rec.CreatedAt,
	)
	if corr != nil {
		rec.CorrelationID = *corr
	}
	return rec, err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const (
	readRetryAttempts = 3
	readRetryBackoff  = 100 * time.Millisecond
)

// withReadRetry retries an idempotent read a bounded number of times on
// transient failures. Writes never go through here.
func withReadRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < readRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * readRetryBackoff):
			}
		}
		err = fn()
		if err == nil || !transient(err) {
			return err
		}
	}
	return err
}

// transient reports whether err looks like a connection-level failure worth
// retrying, as opposed to a SQL or data error.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception; class 57: operator intervention
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57")
	}
	return pgconn.Timeout(err)
}

// mapStorageErr folds a driver error into the taxonomy. Pool exhaustion and
// timeouts become StorageUnavailable (backpressure); everything else is a
// retryable StorageError. Driver text stays in the wrapped cause for logs
// and is never shown to clients.
func mapStorageErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.Wrap(errs.KindStorageUnavailable, op+": storage did not respond in time", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53") || strings.HasPrefix(pgErr.Code, "57") {
			return errs.Wrap(errs.KindStorageUnavailable, op+": storage unavailable", err)
		}
	}
	return errs.Wrap(errs.KindStorage, op+": storage operation failed", err)
}
