// Package validate checks raw log records against the record schema.
// Validation never panics and never stops at the first problem: callers get
// every violated field, which bulk ingestion surfaces per record.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
	"github.com/logward/logward/internal/sanitize"
)

// Limits are the record constraints. Clock skew and client-timestamp policy
// come from configuration; everything else mirrors the storage schema.
type Limits struct {
	MaxServiceNameLen    int
	MaxMessageLen        int
	MaxCorrelationIDLen  int
	MaxTags              int
	MaxTagKeyLen         int
	MaxTagValueLen       int
	MaxStackLen          int
	MaxDurationMS        float64
	ClockSkew            time.Duration
	AllowClientTimestamp bool
}

// DefaultLimits returns the standard record constraints.
func DefaultLimits() Limits {
	return Limits{
		MaxServiceNameLen:    255,
		MaxMessageLen:        sanitize.MaxMessageLen,
		MaxCorrelationIDLen:  sanitize.MaxCorrelationIDLen,
		MaxTags:              16,
		MaxTagKeyLen:         sanitize.MaxTagKeyLen,
		MaxTagValueLen:       sanitize.MaxTagValueLen,
		MaxStackLen:          sanitize.MaxStackLen,
		MaxDurationMS:        864000000, // ten days
		ClockSkew:            5 * time.Minute,
		AllowClientTimestamp: true,
	}
}

var servicePattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

// Record checks raw against lim and returns a normalized record bound to
// tenantKey, or the complete list of field violations. The returned record
// has no id or timestamp assigned when the input carried none; the ingestion
// pipeline fills those at write time.
func Record(raw model.RawRecord, tenantKey string, now time.Time, lim Limits) (model.LogRecord, []errs.FieldError) {
	var fields []errs.FieldError
	fail := func(field, reason string) {
		fields = append(fields, errs.FieldError{Field: field, Reason: reason})
	}

	rec := model.LogRecord{TenantKey: tenantKey}

	if raw.ID != "" {
		id, err := uuid.Parse(raw.ID)
		if err != nil {
			fail("id", "must be a valid UUID")
		} else {
			rec.ID = id
		}
	}

	service := strings.TrimSpace(raw.ServiceName)
	switch {
	case service == "":
		fail("service_name", "is required")
	case len(service) > lim.MaxServiceNameLen:
		fail("service_name", fmt.Sprintf("must be at most %d characters", lim.MaxServiceNameLen))
	case !servicePattern.MatchString(service):
		fail("service_name", "may only contain letters, digits, underscore, hyphen, and dot")
	default:
		rec.ServiceName = service
	}

	if raw.Level == "" {
		fail("level", "is required")
	} else if level, ok := model.ParseLevel(raw.Level); ok {
		rec.Level = level
	} else {
		fail("level", "must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL")
	}

	if raw.Message == "" {
		fail("message", "is required")
	} else if len([]rune(raw.Message)) > lim.MaxMessageLen {
		fail("message", fmt.Sprintf("must be at most %d characters", lim.MaxMessageLen))
	} else {
		rec.Message = raw.Message
	}

	if raw.Timestamp != nil {
		switch {
		case !lim.AllowClientTimestamp:
			// policy: client clocks are ignored, server receipt time wins
		case raw.Timestamp.After(now.Add(lim.ClockSkew)):
			fail("timestamp", "must not be in the future beyond the allowed clock skew")
		default:
			rec.Timestamp = raw.Timestamp.UTC()
		}
	}

	if raw.DurationMS != nil {
		switch {
		case *raw.DurationMS < 0:
			fail("duration_ms", "must not be negative")
		case *raw.DurationMS > lim.MaxDurationMS:
			fail("duration_ms", fmt.Sprintf("must be at most %g", lim.MaxDurationMS))
		default:
			d := *raw.DurationMS
			rec.DurationMS = &d
		}
	}

	if raw.CorrelationID != "" {
		if len(raw.CorrelationID) > lim.MaxCorrelationIDLen {
			fail("correlation_id", fmt.Sprintf("must be at most %d characters", lim.MaxCorrelationIDLen))
		} else {
			rec.CorrelationID = raw.CorrelationID
		}
	}

	if len(raw.Tags) > lim.MaxTags {
		fail("tags", fmt.Sprintf("must have at most %d entries", lim.MaxTags))
	} else if len(raw.Tags) > 0 {
		tags := make(map[string]string, len(raw.Tags))
		for k, v := range raw.Tags {
			switch {
			case strings.TrimSpace(k) == "":
				fail("tags", "keys must not be empty")
			case len(k) > lim.MaxTagKeyLen:
				fail("tags", fmt.Sprintf("key %q exceeds %d characters", k, lim.MaxTagKeyLen))
			case len([]rune(v)) > lim.MaxTagValueLen:
				fail("tags", fmt.Sprintf("value for key %q exceeds %d characters", k, lim.MaxTagValueLen))
			default:
				tags[k] = v
			}
		}
		rec.Tags = tags
	}

	if raw.ErrorContext != nil {
		ec := *raw.ErrorContext
		if len([]rune(ec.Stack)) > lim.MaxStackLen {
			fail("error_context", fmt.Sprintf("stack must be at most %d characters", lim.MaxStackLen))
		}
		if len([]rune(ec.Message)) > lim.MaxMessageLen {
			fail("error_context", fmt.Sprintf("message must be at most %d characters", lim.MaxMessageLen))
		}
		rec.ErrorContext = &ec
	}

	if len(fields) > 0 {
		return model.LogRecord{}, fields
	}
	return rec, nil
}
