package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
)

func seedRecords(t *testing.T, logs *Logs, tenantKey string, raws ...model.RawRecord) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, len(raws))
	for i, raw := range raws {
		id, err := logs.Ingest(context.Background(), tenantKey, raw)
		if err != nil {
			t.Fatalf("seed record %d: %v", i, err)
		}
		ids[i] = id
	}
	return ids
}

func TestSearchTenantIsolation(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	seedRecords(t, logs, tenantA, rawRecord("svc", "INFO", "tenant a record"))
	seedRecords(t, logs, tenantB, rawRecord("svc", "INFO", "tenant b record"))

	filters := []model.Filter{
		{},
		{Service: "svc"},
		{MinLevel: model.LevelDebug},
		{Search: "record"},
	}
	for _, f := range filters {
		page, err := logs.Search(ctx, tenantB, f, model.Page{})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		for _, rec := range page.Records {
			if rec.TenantKey != tenantB {
				t.Fatalf("tenant %s leaked into tenant %s query", rec.TenantKey, tenantB)
			}
		}
		if page.Total != 1 {
			t.Fatalf("expected 1 record for tenant b, got %d", page.Total)
		}
	}
}

func TestSearchFilterCannotOverrideTenant(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	seedRecords(t, logs, tenantA, rawRecord("svc", "INFO", "a"))

	// caller-supplied tenant key on the filter must be ignored
	page, err := logs.Search(ctx, tenantB, model.Filter{TenantKey: tenantA}, model.Page{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("filter tenant key overrode scope: %d records", page.Total)
	}
}

func TestDeleteRemovesOnlyTheTenantsRecord(t *testing.T) {
	store := &fakeStore{}
	logs := newTestLogs(store)
	ctx := context.Background()

	ids := seedRecords(t, logs, tenantA, rawRecord("svc", "INFO", "keep me"))

	// another tenant cannot purge the record
	if err := logs.Delete(ctx, tenantB, ids[0]); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("cross-tenant delete: expected not_found, got %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("cross-tenant delete removed the record")
	}

	if err := logs.Delete(ctx, tenantA, ids[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("record survived delete")
	}
	if err := logs.Delete(ctx, tenantA, ids[0]); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("repeat delete: expected not_found, got %v", err)
	}
}

func TestSearchOrderedByTimestampDescIDAsc(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC()
	shared := base.Add(10 * time.Minute)
	for _, ts := range []time.Time{base, shared, shared, base.Add(30 * time.Minute)} {
		raw := rawRecord("svc", "INFO", "m")
		tsCopy := ts
		raw.Timestamp = &tsCopy
		seedRecords(t, logs, tenantA, raw)
	}

	page, err := logs.Search(ctx, tenantA, model.Filter{}, model.Page{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	recs := page.Records
	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		if prev.Timestamp.Before(cur.Timestamp) {
			t.Fatalf("not timestamp-descending at %d", i)
		}
		if prev.Timestamp.Equal(cur.Timestamp) && prev.ID.String() >= cur.ID.String() {
			t.Fatalf("tie not broken by id ascending at %d", i)
		}
	}
}

func TestSearchMinLevel(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	seedRecords(t, logs, tenantA,
		rawRecord("svc", "INFO", "fine"),
		rawRecord("svc", "ERROR", "broken"),
		rawRecord("svc", "ERROR", "broken again"),
	)

	page, err := logs.Search(ctx, tenantA, model.Filter{MinLevel: model.LevelError}, model.Page{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 records at ERROR+, got %d", page.Total)
	}
	for _, rec := range page.Records {
		if !rec.Level.IsError() {
			t.Fatalf("level %s below threshold returned", rec.Level)
		}
	}
}

func TestSearchPagination(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedRecords(t, logs, tenantA, rawRecord("svc", "INFO", "m"))
	}

	page, err := logs.Search(ctx, tenantA, model.Filter{}, model.Page{Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Records) != 2 || page.Total != 5 || !page.HasMore {
		t.Fatalf("unexpected page: len=%d total=%d has_more=%v", len(page.Records), page.Total, page.HasMore)
	}

	last, err := logs.Search(ctx, tenantA, model.Filter{}, model.Page{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(last.Records) != 1 || last.HasMore {
		t.Fatalf("unexpected last page: len=%d has_more=%v", len(last.Records), last.HasMore)
	}
}

func TestSearchInvalidFilters(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	start := time.Now()
	end := start.Add(-time.Hour)
	lo, hi := 100.0, 10.0

	cases := []struct {
		name string
		f    model.Filter
		p    model.Page
	}{
		{"inverted time range", model.Filter{Start: &start, End: &end}, model.Page{}},
		{"inverted duration range", model.Filter{MinDurationMS: &lo, MaxDurationMS: &hi}, model.Page{}},
		{"page size over maximum", model.Filter{}, model.Page{Limit: logs.opts.MaxPageSize + 1}},
		{"service and prefix together", model.Filter{Service: "a", ServicePrefix: "b"}, model.Page{}},
		{"unknown min level", model.Filter{MinLevel: model.Level("LOUD")}, model.Page{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := logs.Search(ctx, tenantA, tc.f, tc.p)
			if errs.KindOf(err) != errs.KindInvalidFilter {
				t.Fatalf("expected invalid_filter, got %v", err)
			}
		})
	}
}

func TestSearchByCorrelationAndTags(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	tagged := rawRecord("svc", "INFO", "tagged")
	tagged.Tags = map[string]string{"region": "eu", "shard": "3"}
	tagged.CorrelationID = "corr-42"
	seedRecords(t, logs, tenantA, tagged, rawRecord("svc", "INFO", "plain"))

	page, err := logs.Search(ctx, tenantA, model.Filter{Tags: map[string]string{"region": "eu", "shard": "3"}}, model.Page{})
	if err != nil {
		t.Fatalf("search by tags: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 tagged record, got %d", page.Total)
	}

	page, err = logs.Search(ctx, tenantA, model.Filter{CorrelationID: "corr-42"}, model.Page{})
	if err != nil {
		t.Fatalf("search by correlation: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 correlated record, got %d", page.Total)
	}
}

func TestGetUnknownRecordNotFound(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	_, err := logs.Get(context.Background(), tenantA, uuid.New())
	if errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestMetricsEndToEnd(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	seedRecords(t, logs, tenantA,
		rawRecord("svc", "INFO", "ok"),
		rawRecord("svc", "ERROR", "bad"),
		rawRecord("svc", "ERROR", "worse"),
	)

	report, err := logs.Metrics(ctx, tenantA, model.Filter{MinLevel: model.LevelError})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if report.Total != 2 {
		t.Fatalf("expected total 2, got %d", report.Total)
	}
	if report.ErrorRate == nil || *report.ErrorRate != 1.0 {
		t.Fatalf("expected error_rate 1.0, got %v", report.ErrorRate)
	}
	if report.SuccessRate == nil || *report.SuccessRate != 0.0 {
		t.Fatalf("expected success_rate 0.0, got %v", report.SuccessRate)
	}
}

func TestMetricsPercentilesCeilingRank(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	for _, d := range []float64{10, 20, 30, 40, 50} {
		raw := rawRecord("svc", "INFO", "timed")
		dCopy := d
		raw.DurationMS = &dCopy
		seedRecords(t, logs, tenantA, raw)
	}

	report, err := logs.Metrics(ctx, tenantA, model.Filter{})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if report.P50DurationMS == nil || *report.P50DurationMS != 30 {
		t.Fatalf("expected P50=30, got %v", report.P50DurationMS)
	}
	if report.P95DurationMS == nil || *report.P95DurationMS != 50 {
		t.Fatalf("expected P95=50, got %v", report.P95DurationMS)
	}
	if report.P99DurationMS == nil || *report.P99DurationMS != 50 {
		t.Fatalf("expected P99=50, got %v", report.P99DurationMS)
	}
}

func TestMetricsEmptySetReportsAbsentStatistics(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	report, err := logs.Metrics(context.Background(), tenantA, model.Filter{})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if report.Total != 0 {
		t.Fatalf("expected empty total, got %d", report.Total)
	}
	if report.P50DurationMS != nil || report.ErrorRate != nil {
		t.Fatalf("statistics over empty set must be absent, got %+v", report)
	}
}

func TestExportStreamsAllPages(t *testing.T) {
	logs := newTestLogs(&fakeStore{})
	ctx := context.Background()

	total := ExportPageSize + 25
	for i := 0; i < total; i++ {
		seedRecords(t, logs, tenantA, rawRecord("svc", "INFO", "m"))
	}

	var streamed int
	err := logs.Export(ctx, tenantA, model.Filter{}, func(recs []model.LogRecord) error {
		streamed += len(recs)
		return nil
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if streamed != total {
		t.Fatalf("expected %d streamed records, got %d", total, streamed)
	}
}
