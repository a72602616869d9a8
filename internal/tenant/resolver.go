// Package tenant resolves caller-supplied organization references to the
// canonical tenant key used for every isolation check.
package tenant

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/logward/logward/internal/errs"
)

// MaxOrganizationNameLen bounds organization name lookups.
const MaxOrganizationNameLen = 255

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_\-.\s]+$`)

// Ref is a caller-supplied organization reference. Exactly one of ID or
// Name must be set.
type Ref struct {
	ID   string
	Name string
}

// Directory looks up organizations in the store. Lookups are read-only and
// never cached across requests: tenant identity can change out-of-band.
type Directory interface {
	OrganizationIDByName(ctx context.Context, name string) (uuid.UUID, bool, error)
}

// Resolver maps organization references to tenant keys.
type Resolver struct {
	dir Directory
}

// NewResolver returns a Resolver backed by the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the canonical tenant key for ref.
// It fails with InvalidTenantReference when both or neither reference is
// supplied, when the id is not a valid identifier, or when no organization
// matches the given name.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	id := strings.TrimSpace(ref.ID)
	name := strings.TrimSpace(ref.Name)

	switch {
	case id == "" && name == "":
		return "", errs.New(errs.KindInvalidTenantReference, "organization_id or organization_name is required")
	case id != "" && name != "":
		return "", errs.New(errs.KindInvalidTenantReference, "organization_id and organization_name are mutually exclusive")
	}

	if id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return "", errs.New(errs.KindInvalidTenantReference, "organization_id is not a valid identifier")
		}
		return parsed.String(), nil
	}

	if len(name) > MaxOrganizationNameLen || !namePattern.MatchString(name) {
		return "", errs.New(errs.KindInvalidTenantReference, "organization_name is not a valid name")
	}
	orgID, ok, err := r.dir.OrganizationIDByName(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.Newf(errs.KindInvalidTenantReference, "no organization named %q", name)
	}
	return orgID.String(), nil
}
