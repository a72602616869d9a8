package model

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a registered tenant. Its id string is the canonical
// tenant key every record and query is scoped to.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TenantQuota is the per-tenant retention policy. MaxAge bounds record age;
// MaxRecords, when set, additionally caps the record count (oldest trimmed
// first). Mutated only through the administrative API.
type TenantQuota struct {
	TenantKey  string        `json:"tenant_key"`
	MaxAge     time.Duration `json:"max_age"`
	MaxRecords *int64        `json:"max_records,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
