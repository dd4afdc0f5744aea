package ownership

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// fakeStore answers ownership lookups from in-memory maps.
type fakeStore struct {
	owners map[string]string // resourceID → ownerID
	shares map[string]*shareRow
	err    error
}

func (f *fakeStore) LookupOwner(_ context.Context, _, resourceID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	owner, ok := f.owners[resourceID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return owner, nil
}

func (f *fakeStore) LookupOwnersBatch(_ context.Context, _ string, ids []string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	owners := make(map[string]string)
	for _, id := range ids {
		if owner, ok := f.owners[id]; ok {
			owners[id] = owner
		}
	}
	return owners, nil
}

func (f *fakeStore) LookupShare(_ context.Context, prefix string) (*shareRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	row, ok := f.shares[prefix]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return row, nil
}

func TestVerifyOwnership(t *testing.T) {
	v := newVerifierWithStore(&fakeStore{owners: map[string]string{"p-1": "user-1"}}, zap.NewNop())
	ctx := context.Background()

	res := v.VerifyOwnership(ctx, ResourceProject, "p-1", "user-1")
	if !res.IsOwner || res.OwnerID != "user-1" {
		t.Fatalf("result = %+v", res)
	}

	res = v.VerifyOwnership(ctx, ResourceProject, "p-1", "user-2")
	if res.IsOwner {
		t.Fatal("non-owner passed")
	}
	if res.Err != "user does not own this resource" {
		t.Fatalf("Err = %q", res.Err)
	}

	res = v.VerifyOwnership(ctx, ResourceProject, "missing", "user-1")
	if res.IsOwner || !res.NotFound {
		t.Fatalf("result = %+v", res)
	}

	res = v.VerifyOwnership(ctx, ResourceType("gadget"), "p-1", "user-1")
	if res.IsOwner {
		t.Fatal("unknown resource type passed")
	}

	res = v.VerifyOwnership(ctx, ResourceProject, "", "user-1")
	if res.IsOwner {
		t.Fatal("empty resource id passed")
	}
}

func TestVerifyOwnershipFailsClosedOnDBError(t *testing.T) {
	v := newVerifierWithStore(&fakeStore{err: errors.New("connection refused")}, zap.NewNop())

	res := v.VerifyOwnership(context.Background(), ResourceProject, "p-1", "user-1")
	if res.IsOwner {
		t.Fatal("DB error must not grant access")
	}
	if !res.InternalError {
		t.Fatalf("result = %+v, want InternalError", res)
	}
	if res.Err != "ownership check failed" {
		t.Fatalf("Err = %q, raw DB errors must not leak", res.Err)
	}
}

func TestVerifyToolOwnership(t *testing.T) {
	v := newVerifierWithStore(&fakeStore{owners: map[string]string{"p-1": "user-1"}}, zap.NewNop())
	ctx := context.Background()

	res := v.VerifyToolOwnership(ctx, "delete_project", map[string]any{"id": "p-1"}, "user-1")
	if !res.IsOwner || res.Skipped {
		t.Fatalf("result = %+v", res)
	}

	// Unmapped tools skip the check by explicit opt-out.
	res = v.VerifyToolOwnership(ctx, "create_project", map[string]any{"name": "x"}, "user-1")
	if !res.IsOwner || !res.Skipped {
		t.Fatalf("result = %+v, want skipped pass", res)
	}

	// A mapped tool with no extractable id is denied, not skipped.
	res = v.VerifyToolOwnership(ctx, "delete_project", map[string]any{"name": "x"}, "user-1")
	if res.IsOwner {
		t.Fatal("mapped tool without a resource id passed")
	}
	if res.Err != "no resource id found in tool input" {
		t.Fatalf("Err = %q", res.Err)
	}
}

func TestVerifyToolOwnershipNumericID(t *testing.T) {
	// JSON decodes numeric ids as float64; they must reach the lookup.
	v := newVerifierWithStore(&fakeStore{owners: map[string]string{"42": "user-1"}}, zap.NewNop())

	res := v.VerifyToolOwnership(context.Background(), "delete_project", map[string]any{"projectId": float64(42)}, "user-1")
	if !res.IsOwner {
		t.Fatalf("result = %+v", res)
	}
}

func TestExtractResourceID(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{"id key", map[string]any{"id": "r-1"}, "r-1"},
		{"typed key", map[string]any{"projectId": "p-1"}, "p-1"},
		{"id wins over typed key", map[string]any{"id": "r-1", "projectId": "p-1"}, "r-1"},
		{"json numeric id", map[string]any{"projectId": float64(42)}, "42"},
		{"int id", map[string]any{"id": 7}, "7"},
		{"bool ignored", map[string]any{"id": true}, ""},
		{"empty string ignored", map[string]any{"id": ""}, ""},
		{"nothing", map[string]any{"name": "x"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractResourceID(tc.input); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVerifyBatch(t *testing.T) {
	v := newVerifierWithStore(&fakeStore{owners: map[string]string{
		"p-1": "user-1",
		"p-2": "user-2",
	}}, zap.NewNop())

	refs := []Ref{
		{ResourceProject, "p-1"},
		{ResourceProject, "p-2"},
		{ResourceProject, "missing"},
	}
	results := v.VerifyBatch(context.Background(), refs, "user-1")

	if !results[refs[0]].IsOwner {
		t.Fatalf("p-1 = %+v", results[refs[0]])
	}
	if results[refs[1]].IsOwner {
		t.Fatal("p-2 belongs to user-2")
	}
	if !results[refs[2]].NotFound {
		t.Fatalf("missing = %+v", results[refs[2]])
	}
}

func TestQueryRegistryCoversAllMappedTools(t *testing.T) {
	for tool, resourceType := range toolResources {
		if _, ok := queryRegistry[resourceType]; !ok {
			t.Fatalf("tool %q maps to %q with no registered query", tool, resourceType)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3); got != "$1, $2, $3" {
		t.Fatalf("placeholders(3) = %q", got)
	}
	if got := placeholders(1); got != "$1" {
		t.Fatalf("placeholders(1) = %q", got)
	}
}
