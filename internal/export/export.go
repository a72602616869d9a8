// Package export serializes query result sets to JSON or CSV, streaming
// page by page so large exports never buffer whole.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
)

// Formats accepted by NewEncoder.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Encoder writes successive pages of records to an output stream.
// Close finalizes the stream and must be called exactly once.
type Encoder interface {
	Write(recs []model.LogRecord) error
	Close() error
}

// NewEncoder returns an encoder for the given format.
func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch format {
	case FormatJSON, "":
		return &jsonEncoder{w: w}, nil
	case FormatCSV:
		return &csvEncoder{w: csv.NewWriter(w)}, nil
	}
	return nil, errs.Newf(errs.KindInvalidFilter, "unknown export format %q", format)
}

// jsonEncoder emits one JSON array across all pages.
type jsonEncoder struct {
	w     io.Writer
	count int
}

func (e *jsonEncoder) Write(recs []model.LogRecord) error {
	for _, rec := range recs {
		sep := ","
		if e.count == 0 {
			sep = "["
		}
		if _, err := io.WriteString(e.w, sep); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := e.w.Write(data); err != nil {
			return err
		}
		e.count++
	}
	return nil
}

func (e *jsonEncoder) Close() error {
	if e.count == 0 {
		_, err := io.WriteString(e.w, "[]")
		return err
	}
	_, err := io.WriteString(e.w, "]")
	return err
}

var csvHeader = []string{
	"id", "service_name", "level", "message", "timestamp",
	"duration_ms", "correlation_id", "tags", "error_context",
}

// csvEncoder emits a header row followed by one row per record.
type csvEncoder struct {
	w          *csv.Writer
	headerDone bool
}

func (e *csvEncoder) Write(recs []model.LogRecord) error {
	if !e.headerDone {
		if err := e.w.Write(csvHeader); err != nil {
			return err
		}
		e.headerDone = true
	}
	for _, rec := range recs {
		row := []string{
			rec.ID.String(),
			rec.ServiceName,
			string(rec.Level),
			rec.Message,
			rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			formatDuration(rec.DurationMS),
			rec.CorrelationID,
			marshalOrEmpty(rec.Tags, len(rec.Tags) > 0),
			marshalOrEmpty(rec.ErrorContext, rec.ErrorContext != nil),
		}
		if err := e.w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (e *csvEncoder) Close() error {
	if !e.headerDone {
		if err := e.w.Write(csvHeader); err != nil {
			return err
		}
	}
	e.w.Flush()
	return e.w.Error()
}

func formatDuration(d *float64) string {
	if d == nil {
		return ""
	}
	return strconv.FormatFloat(*d, 'f', -1, 64)
}

func marshalOrEmpty(v any, present bool) string {
	if !present {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
