package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
)

// Search returns one page of records matching f, ordered by timestamp
// descending with id ascending breaking ties. The tenant key is forced onto
// the filter here; nothing a caller supplies can widen the scope.
func (s *Logs) Search(ctx context.Context, tenantKey string, f model.Filter, p model.Page) (*model.RecordPage, error) {
	f.TenantKey = tenantKey
	if err := s.checkFilter(f); err != nil {
		return nil, err
	}
	p, err := s.checkPage(p)
	if err != nil {
		return nil, err
	}

	recs, total, err := s.store.SearchRecords(ctx, f, p)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.LogRecord{}
	}
	return &model.RecordPage{
		Records: recs,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: int64(p.Offset+len(recs)) < total,
	}, nil
}

// Get fetches one record by id within the tenant scope.
func (s *Logs) Get(ctx context.Context, tenantKey string, id uuid.UUID) (*model.LogRecord, error) {
	rec, err := s.store.RecordByID(ctx, tenantKey, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.Newf(errs.KindNotFound, "no record with id %s", id)
	}
	return rec, nil
}

// Delete purges one record by id within the tenant scope. Records the
// tenant does not hold are NotFound, same as Get.
func (s *Logs) Delete(ctx context.Context, tenantKey string, id uuid.UUID) error {
	deleted, err := s.store.DeleteRecord(ctx, tenantKey, id)
	if err != nil {
		return err
	}
	if !deleted {
		return errs.Newf(errs.KindNotFound, "no record with id %s", id)
	}
	s.log.Info().Stringer("id", id).Str("tenant", tenantKey).Msg("record purged")
	return nil
}

// Metrics computes aggregate statistics over the records matching f.
func (s *Logs) Metrics(ctx context.Context, tenantKey string, f model.Filter) (*model.MetricsReport, error) {
	f.TenantKey = tenantKey
	if err := s.checkFilter(f); err != nil {
		return nil, err
	}
	return s.store.AggregateMetrics(ctx, f)
}

// RecentServices lists services active within the recent window.
func (s *Logs) RecentServices(ctx context.Context, tenantKey string) ([]string, error) {
	since := s.now().Add(-s.opts.RecentWindow)
	services, err := s.store.RecentServices(ctx, tenantKey, since, 50)
	if err != nil {
		return nil, err
	}
	if services == nil {
		services = []string{}
	}
	return services, nil
}

// DefaultPageSize exposes the configured page size used when a request does
// not name one, so callers translating page numbers to offsets use the same
// value the page query will.
func (s *Logs) DefaultPageSize() int { return s.opts.DefaultPageSize }

// ExportPageSize is the fetch size used when streaming export result sets.
const ExportPageSize = 500

// Export streams every record matching f to emit, page by page, so arbitrarily
// large result sets never sit in memory at once.
func (s *Logs) Export(ctx context.Context, tenantKey string, f model.Filter, emit func([]model.LogRecord) error) error {
	f.TenantKey = tenantKey
	if err := s.checkFilter(f); err != nil {
		return err
	}
	page := model.Page{Limit: ExportPageSize}
	for {
		recs, total, err := s.store.SearchRecords(ctx, f, page)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		if err := emit(recs); err != nil {
			return err
		}
		page.Offset += len(recs)
		if int64(page.Offset) >= total {
			return nil
		}
	}
}

func (s *Logs) checkFilter(f model.Filter) error {
	if f.Service != "" && f.ServicePrefix != "" {
		return errs.New(errs.KindInvalidFilter, "service and service_prefix are mutually exclusive")
	}
	if f.MinLevel != "" && !f.MinLevel.Valid() {
		return errs.New(errs.KindInvalidFilter, "min_level must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL")
	}
	if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
		return errs.New(errs.KindInvalidFilter, "start must not be after end")
	}
	if f.MinDurationMS != nil && *f.MinDurationMS < 0 {
		return errs.New(errs.KindInvalidFilter, "min_duration must not be negative")
	}
	if f.MinDurationMS != nil && f.MaxDurationMS != nil && *f.MinDurationMS > *f.MaxDurationMS {
		return errs.New(errs.KindInvalidFilter, "min_duration must not exceed max_duration")
	}
	return nil
}

func (s *Logs) checkPage(p model.Page) (model.Page, error) {
	if p.Limit == 0 {
		p.Limit = s.opts.DefaultPageSize
	}
	if p.Limit < 0 || p.Limit > s.opts.MaxPageSize {
		return p, errs.Newf(errs.KindInvalidFilter, "page_size must be between 1 and %d", s.opts.MaxPageSize)
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p, nil
}
