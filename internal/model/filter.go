package model

import "time"

// Filter selects log records for queries, metrics, export, and counting.
// Every clause is optional; set clauses combine with AND. TenantKey is filled
// by the service from the resolved tenant and is never caller-controlled.
type Filter struct {
	TenantKey     string
	Service       string // exact match
	ServicePrefix string // prefix match; mutually exclusive with Service
	MinLevel      Level  // empty means no level threshold
	Start         *time.Time
	End           *time.Time // half-open: [Start, End)
	MinDurationMS *float64
	MaxDurationMS *float64
	Tags          map[string]string // record must carry all of these
	Search        string            // substring match on message and error context
	CorrelationID string
}

// Page bounds a query result. Limit is capped by configuration.
type Page struct {
	Limit  int
	Offset int
}

// RecordPage is one page of query results with pagination metadata.
type RecordPage struct {
	Records []LogRecord `json:"data"`
	Total   int64       `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// MetricsReport holds aggregate statistics for a filtered record set.
// Rates and duration statistics are nil when their denominator is zero.
type MetricsReport struct {
	Total         int64           `json:"total"`
	ByLevel       map[Level]int64 `json:"by_level"`
	SuccessRate   *float64        `json:"success_rate,omitempty"`
	ErrorRate     *float64        `json:"error_rate,omitempty"`
	DurationCount int64           `json:"duration_count"`
	P50DurationMS *float64        `json:"p50_duration_ms,omitempty"`
	P95DurationMS *float64        `json:"p95_duration_ms,omitempty"`
	P99DurationMS *float64        `json:"p99_duration_ms,omitempty"`
	MinDurationMS *float64        `json:"min_duration_ms,omitempty"`
	AvgDurationMS *float64        `json:"avg_duration_ms,omitempty"`
	MaxDurationMS *float64        `json:"max_duration_ms,omitempty"`
}
