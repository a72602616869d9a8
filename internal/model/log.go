package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a log record. Levels are totally ordered so
// queries can filter with a minimum-severity threshold.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Levels lists all levels in ascending severity order.
var Levels = []Level{LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical}

var levelRanks = map[Level]int{
	LevelDebug:    0,
	LevelInfo:     1,
	LevelWarning:  2,
	LevelError:    3,
	LevelCritical: 4,
}

// ParseLevel matches a level name case-insensitively.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := levelRanks[l]
	return l, ok
}

// Rank returns the position of l in the severity order (DEBUG=0 .. CRITICAL=4).
func (l Level) Rank() int { return levelRanks[l] }

// IsError reports whether l counts toward the error rate (ERROR or above).
func (l Level) IsError() bool { return levelRanks[l] >= levelRanks[LevelError] }

// Valid reports whether l is one of the five known levels.
func (l Level) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// AtOrAbove returns the set of levels with severity >= min, in ascending order.
func AtOrAbove(min Level) []Level {
	out := make([]Level, 0, len(Levels))
	for _, l := range Levels {
		if l.Rank() >= min.Rank() {
			out = append(out, l)
		}
	}
	return out
}

// ErrorContext is the structured error payload attached to failed events.
type ErrorContext struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// LogRecord is a persisted log entry. Records are append-only: once written
// they are read by queries and removed by retention, never updated.
type LogRecord struct {
	ID            uuid.UUID         `json:"id"`
	TenantKey     string            `json:"tenant_key"`
	ServiceName   string            `json:"service_name"`
	Level         Level             `json:"level"`
	Message       string            `json:"message"`
	Timestamp     time.Time         `json:"timestamp"`
	DurationMS    *float64          `json:"duration_ms,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	ErrorContext  *ErrorContext     `json:"error_context,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// RawRecord is the wire shape of an ingest payload before validation.
type RawRecord struct {
	ID            string            `json:"id,omitempty"`
	ServiceName   string            `json:"service_name"`
	Level         string            `json:"level"`
	Message       string            `json:"message"`
	Timestamp     *time.Time        `json:"timestamp,omitempty"`
	DurationMS    *float64          `json:"duration_ms,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	ErrorContext  *ErrorContext     `json:"error_context,omitempty"`
}
