// Package service implements the ingestion pipeline, query engine, and
// metrics aggregation on top of a Store. Each request is an independent unit
// of work; the store is the only shared state.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
	"github.com/logward/logward/internal/sanitize"
	"github.com/logward/logward/internal/validate"
)

// Logs is the tenant-scoped log service.
type Logs struct {
	store  Store
	limits validate.Limits
	opts   Options
	log    zerolog.Logger
	now    func() time.Time
}

// NewLogs builds the log service.
func NewLogs(store Store, limits validate.Limits, opts Options, log zerolog.Logger) *Logs {
	return &Logs{
		store:  store,
		limits: limits,
		opts:   opts,
		log:    log.With().Str("component", "logs").Logger(),
		now:    time.Now,
	}
}

// BulkOutcome is the result for one record of a bulk submission, at the same
// index as its input.
type BulkOutcome struct {
	Index int
	ID    uuid.UUID
	Err   error
}

// Ingest validates, sanitizes, and persists a single record, returning the
// persisted id. Validation failures are client errors and persist nothing;
// storage failures are transient and safe for the caller to retry (ingest is
// never retried internally, to avoid duplicate records).
func (s *Logs) Ingest(ctx context.Context, tenantKey string, raw model.RawRecord) (uuid.UUID, error) {
	rec, fieldErrs := s.prepare(tenantKey, raw)
	if fieldErrs != nil {
		return uuid.Nil, errs.Validation(fieldErrs)
	}
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	s.log.Debug().Stringer("id", rec.ID).Str("service", rec.ServiceName).Msg("record ingested")
	return rec.ID, nil
}

// IngestBatch processes an ordered batch. Each record is validated and
// sanitized independently; valid records are persisted in one multi-row
// write. The returned outcomes match the input order one to one. A batch
// larger than the configured maximum is rejected whole with BatchTooLarge.
func (s *Logs) IngestBatch(ctx context.Context, tenantKey string, raws []model.RawRecord) ([]BulkOutcome, error) {
	if len(raws) > s.opts.MaxBatchSize {
		return nil, errs.Newf(errs.KindBatchTooLarge, "batch of %d exceeds maximum of %d records", len(raws), s.opts.MaxBatchSize)
	}

	outcomes := make([]BulkOutcome, len(raws))
	valid := make([]*model.LogRecord, 0, len(raws))
	seen := make(map[uuid.UUID]struct{}, len(raws))
	for i, raw := range raws {
		outcomes[i].Index = i
		rec, fieldErrs := s.prepare(tenantKey, raw)
		if fieldErrs != nil {
			outcomes[i].Err = errs.Validation(fieldErrs)
			continue
		}
		// an id repeated within the batch writes one row; the later
		// occurrence must not report success
		if _, dup := seen[rec.ID]; dup {
			outcomes[i].Err = errs.New(errs.KindValidation, "duplicate record id")
			continue
		}
		seen[rec.ID] = struct{}{}
		outcomes[i].ID = rec.ID
		valid = append(valid, rec)
	}

	if len(valid) > 0 {
		persisted, err := s.store.InsertRecords(ctx, valid)
		if err != nil {
			return nil, err
		}
		for i := range outcomes {
			if outcomes[i].Err != nil {
				continue
			}
			if !persisted[outcomes[i].ID] {
				outcomes[i].Err = errs.New(errs.KindValidation, "duplicate record id")
				outcomes[i].ID = uuid.Nil
			}
		}
	}

	s.log.Debug().Int("batch", len(raws)).Int("persisted", len(valid)).Msg("bulk ingest processed")
	return outcomes, nil
}

// prepare runs validate → sanitize → id/timestamp assignment.
func (s *Logs) prepare(tenantKey string, raw model.RawRecord) (*model.LogRecord, []errs.FieldError) {
	rec, fieldErrs := validate.Record(raw, tenantKey, s.now(), s.limits)
	if fieldErrs != nil {
		return nil, fieldErrs
	}

	rec.Message = sanitize.Message(rec.Message)
	rec.CorrelationID = sanitize.CorrelationID(rec.CorrelationID)
	if len(rec.Tags) > 0 {
		tags := make(map[string]string, len(rec.Tags))
		for k, v := range rec.Tags {
			// a key that is nothing but stripped characters carries no information
			if ck := sanitize.TagKey(k); ck != "" {
				tags[ck] = sanitize.TagValue(v)
			}
		}
		rec.Tags = tags
	}
	if rec.ErrorContext != nil {
		rec.ErrorContext.Type = sanitize.Clean(rec.ErrorContext.Type, sanitize.MaxErrorTypeLen)
		rec.ErrorContext.Message = sanitize.Message(rec.ErrorContext.Message)
		rec.ErrorContext.Stack = sanitize.Clean(rec.ErrorContext.Stack, sanitize.MaxStackLen)
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	return &rec, nil
}
