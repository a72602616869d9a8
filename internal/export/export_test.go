package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/logward/logward/internal/model"
)

func sampleRecords(n int) []model.LogRecord {
	recs := make([]model.LogRecord, n)
	for i := range recs {
		d := float64(10 * (i + 1))
		recs[i] = model.LogRecord{
			ID:          uuid.New(),
			TenantKey:   "t-1",
			ServiceName: "svc",
			Level:       model.LevelInfo,
			Message:     "message with, comma",
			Timestamp:   time.Date(2026, 8, 26, 10, 0, i, 0, time.UTC),
			DurationMS:  &d,
			Tags:        map[string]string{"region": "eu"},
		}
	}
	return recs
}

func TestJSONEncoderStreamsSinglePage(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(FormatJSON, &buf)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if err := enc.Write(sampleRecords(3)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out []model.LogRecord
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
}

func TestJSONEncoderSpansPages(t *testing.T) {
	var buf bytes.Buffer
	enc, _ := NewEncoder(FormatJSON, &buf)
	if err := enc.Write(sampleRecords(2)); err != nil {
		t.Fatalf("write page 1: %v", err)
	}
	if err := enc.Write(sampleRecords(2)); err != nil {
		t.Fatalf("write page 2: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out []model.LogRecord
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 records across pages, got %d", len(out))
	}
}

func TestJSONEncoderEmptyResult(t *testing.T) {
	var buf bytes.Buffer
	enc, _ := NewEncoder(FormatJSON, &buf)
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if buf.String() != "[]" {
		t.Fatalf("expected empty array, got %q", buf.String())
	}
}

func TestCSVEncoderShape(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(FormatCSV, &buf)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if err := enc.Write(sampleRecords(2)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][2] != "level" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][3] != "message with, comma" {
		t.Fatalf("comma field not preserved: %q", rows[1][3])
	}
	if rows[1][5] != "10" {
		t.Fatalf("unexpected duration cell: %q", rows[1][5])
	}
}

func TestUnknownFormatRejected(t *testing.T) {
	_, err := NewEncoder("xml", &strings.Builder{})
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}
