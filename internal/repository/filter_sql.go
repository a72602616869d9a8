package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/logward/logward/internal/model"
	"github.com/logward/logward/internal/sanitize"
)

// condBuilder accumulates parameterized WHERE conditions. Values only ever
// travel as placeholders; no caller input is concatenated into SQL text.
type condBuilder struct {
	conds []string
	args  []any
}

// add appends a condition whose %d verbs are replaced with the placeholder
// index of a single new argument.
func (b *condBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	n := len(b.args)
	b.conds = append(b.conds, strings.ReplaceAll(cond, "%d", fmt.Sprintf("%d", n)))
}

func (b *condBuilder) where() string {
	return strings.Join(b.conds, " AND ")
}

// buildWhere compiles a filter into a WHERE clause and its arguments. The
// tenant key is always the first condition; every other clause is optional.
func buildWhere(f model.Filter) (string, []any) {
	b := &condBuilder{}
	b.add("tenant_key = $%d", f.TenantKey)

	if f.Service != "" {
		b.add("service_name = $%d", f.Service)
	}
	if f.ServicePrefix != "" {
		b.add(`service_name LIKE $%d ESCAPE '\'`, escapeLike(f.ServicePrefix)+"%")
	}
	if f.MinLevel != "" {
		levels := model.AtOrAbove(f.MinLevel)
		names := make([]string, len(levels))
		for i, l := range levels {
			names[i] = string(l)
		}
		b.add("level = ANY($%d)", names)
	}
	if f.Start != nil {
		b.add("ts >= $%d", *f.Start)
	}
	if f.End != nil {
		b.add("ts < $%d", *f.End)
	}
	if f.MinDurationMS != nil {
		b.add("duration_ms >= $%d", *f.MinDurationMS)
	}
	if f.MaxDurationMS != nil {
		b.add("duration_ms <= $%d", *f.MaxDurationMS)
	}
	if f.CorrelationID != "" {
		// correlation ids are stored sanitized, so the probe must be too
		b.add("correlation_id = $%d", sanitize.CorrelationID(f.CorrelationID))
	}
	if len(f.Tags) > 0 {
		tagsJSON, _ := json.Marshal(f.Tags)
		b.add("tags @> $%d::jsonb", string(tagsJSON))
	}
	if f.Search != "" {
		// substring match over message and error context; the needle goes
		// through the same sanitizer as stored text so encoded characters
		// still match
		needle := "%" + escapeLike(sanitize.Clean(f.Search, 256)) + "%"
		b.add(`(message ILIKE $%d ESCAPE '\'
			OR error_context->>'message' ILIKE $%d ESCAPE '\'
			OR error_context->>'type' ILIKE $%d ESCAPE '\'
			OR error_context->>'stack' ILIKE $%d ESCAPE '\')`, needle)
	}

	return b.where(), b.args
}

// escapeLike neutralizes LIKE metacharacters in user-supplied match terms.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
