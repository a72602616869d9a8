package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/logward/logward/internal/model"
)

// fakeStore is an in-memory Store implementing the query semantics the pgx
// repository delegates to PostgreSQL.
type fakeStore struct {
	records []model.LogRecord
	failAll error
}

func (s *fakeStore) InsertRecord(_ context.Context, rec *model.LogRecord) error {
	if s.failAll != nil {
		return s.failAll
	}
	for _, r := range s.records {
		if r.ID == rec.ID {
			return nil // never reached by the service; single insert ids are fresh
		}
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeStore) InsertRecords(_ context.Context, recs []*model.LogRecord) (map[uuid.UUID]bool, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	persisted := make(map[uuid.UUID]bool, len(recs))
	for _, rec := range recs {
		dup := false
		for _, r := range s.records {
			if r.ID == rec.ID {
				dup = true
				break
			}
		}
		if dup || persisted[rec.ID] {
			continue
		}
		s.records = append(s.records, *rec)
		persisted[rec.ID] = true
	}
	return persisted, nil
}

func (s *fakeStore) SearchRecords(_ context.Context, f model.Filter, p model.Page) ([]model.LogRecord, int64, error) {
	if s.failAll != nil {
		return nil, 0, s.failAll
	}
	matched := s.match(f)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	total := int64(len(matched))
	if p.Offset >= len(matched) {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[p.Offset:end], total, nil
}

func (s *fakeStore) RecordByID(_ context.Context, tenantKey string, id uuid.UUID) (*model.LogRecord, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	for _, r := range s.records {
		if r.TenantKey == tenantKey && r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) DeleteRecord(_ context.Context, tenantKey string, id uuid.UUID) (bool, error) {
	if s.failAll != nil {
		return false, s.failAll
	}
	for i, r := range s.records {
		if r.TenantKey == tenantKey && r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) RecentServices(_ context.Context, tenantKey string, since time.Time, limit int) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, r := range s.records {
		if r.TenantKey == tenantKey && r.Timestamp.After(since) && !seen[r.ServiceName] {
			seen[r.ServiceName] = true
			out = append(out, r.ServiceName)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) AggregateMetrics(_ context.Context, f model.Filter) (*model.MetricsReport, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	matched := s.match(f)
	report := &model.MetricsReport{
		Total:   int64(len(matched)),
		ByLevel: map[model.Level]int64{},
	}
	var durations []float64
	var errors int64
	for _, r := range matched {
		report.ByLevel[r.Level]++
		if r.Level.IsError() {
			errors++
		}
		if r.DurationMS != nil {
			durations = append(durations, *r.DurationMS)
		}
	}
	if report.Total > 0 {
		er := float64(errors) / float64(report.Total)
		sr := 1 - er
		report.ErrorRate = &er
		report.SuccessRate = &sr
	}
	report.DurationCount = int64(len(durations))
	if len(durations) > 0 {
		sort.Float64s(durations)
		report.P50DurationMS = percentileAt(durations, 50)
		report.P95DurationMS = percentileAt(durations, 95)
		report.P99DurationMS = percentileAt(durations, 99)
	}
	return report, nil
}

// percentileAt selects the value at rank ceil(p/100*N), 1-indexed.
func percentileAt(sorted []float64, p float64) *float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	v := sorted[rank-1]
	return &v
}

func (s *fakeStore) match(f model.Filter) []model.LogRecord {
	var out []model.LogRecord
	for _, r := range s.records {
		if r.TenantKey != f.TenantKey {
			continue
		}
		if f.Service != "" && r.ServiceName != f.Service {
			continue
		}
		if f.ServicePrefix != "" && !strings.HasPrefix(r.ServiceName, f.ServicePrefix) {
			continue
		}
		if f.MinLevel != "" && r.Level.Rank() < f.MinLevel.Rank() {
			continue
		}
		if f.Start != nil && r.Timestamp.Before(*f.Start) {
			continue
		}
		if f.End != nil && !r.Timestamp.Before(*f.End) {
			continue
		}
		if f.MinDurationMS != nil && (r.DurationMS == nil || *r.DurationMS < *f.MinDurationMS) {
			continue
		}
		if f.MaxDurationMS != nil && (r.DurationMS == nil || *r.DurationMS > *f.MaxDurationMS) {
			continue
		}
		if f.CorrelationID != "" && r.CorrelationID != f.CorrelationID {
			continue
		}
		if len(f.Tags) > 0 {
			miss := false
			for k, v := range f.Tags {
				if r.Tags[k] != v {
					miss = true
					break
				}
			}
			if miss {
				continue
			}
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			hay := strings.ToLower(r.Message)
			if r.ErrorContext != nil {
				hay += " " + strings.ToLower(r.ErrorContext.Message) + " " + strings.ToLower(r.ErrorContext.Stack)
			}
			if !strings.Contains(hay, needle) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
