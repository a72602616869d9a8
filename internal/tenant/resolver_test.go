package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/logward/logward/internal/errs"
)

type fakeDirectory struct {
	byName map[string]uuid.UUID
	err    error
}

func (d *fakeDirectory) OrganizationIDByName(_ context.Context, name string) (uuid.UUID, bool, error) {
	if d.err != nil {
		return uuid.Nil, false, d.err
	}
	id, ok := d.byName[name]
	return id, ok, nil
}

func TestResolveByID(t *testing.T) {
	r := NewResolver(&fakeDirectory{})
	id := uuid.New()

	key, err := r.Resolve(context.Background(), Ref{ID: id.String()})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != id.String() {
		t.Fatalf("expected %s, got %s", id, key)
	}
}

func TestResolveByName(t *testing.T) {
	id := uuid.New()
	r := NewResolver(&fakeDirectory{byName: map[string]uuid.UUID{"acme": id}})

	key, err := r.Resolve(context.Background(), Ref{Name: "acme"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != id.String() {
		t.Fatalf("expected %s, got %s", id, key)
	}
}

func TestResolveRejections(t *testing.T) {
	r := NewResolver(&fakeDirectory{byName: map[string]uuid.UUID{"acme": uuid.New()}})

	cases := []struct {
		name string
		ref  Ref
	}{
		{"neither", Ref{}},
		{"both", Ref{ID: uuid.NewString(), Name: "acme"}},
		{"malformed id", Ref{ID: "not-a-uuid"}},
		{"unknown name", Ref{Name: "ghost"}},
		{"invalid name characters", Ref{Name: "acme; DROP TABLE"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tc.ref)
			if err == nil {
				t.Fatal("expected error")
			}
			if errs.KindOf(err) != errs.KindInvalidTenantReference {
				t.Fatalf("expected invalid_tenant_reference, got %s", errs.KindOf(err))
			}
		})
	}
}
