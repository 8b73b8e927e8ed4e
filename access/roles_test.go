package access

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/portal/identity"
)

type roleName string

func principalWith(md map[string]any) *identity.Principal {
	return &identity.Principal{ID: uuid.New(), AppMetadata: md}
}

func TestMatchesAdminRole(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"lowercase string", "admin", true},
		{"titlecase string", "Admin", true},
		{"uppercase string", "ADMIN", true},
		{"other string", "editor", false},
		{"padded string", " admin", false},
		{"empty string", "", false},
		{"list with admin", []any{"viewer", "admin"}, true},
		{"list with mixed case admin", []any{"ADMIN"}, true},
		{"list with non-strings", []any{42, nil, map[string]any{"role": "admin"}, "Admin"}, true},
		{"list without admin", []any{"editor", "viewer"}, false},
		{"nested list is not flattened", []any{[]any{"admin"}}, false},
		{"empty list", []any{}, false},
		{"typed string slice", []string{"admin"}, true},
		{"typed array", [2]string{"x", "admin"}, true},
		{"named string type", roleName("Admin"), true},
		{"named string type other", roleName("editor"), false},
		{"slice of named strings", []roleName{"viewer", "ADMIN"}, true},
		{"list with named string element", []any{roleName("admin")}, true},
		{"pointer to string", func() any { s := "admin"; return &s }(), false},
		{"int", 123, false},
		{"float", 1.0, false},
		{"bool", true, false},
		{"nil", nil, false},
		{"map", map[string]any{"admin": true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesAdminRole(tt.value))
		})
	}
}

func TestHasAdminRole(t *testing.T) {
	t.Run("role string in any case", func(t *testing.T) {
		for _, role := range []string{"Admin", "ADMIN", "admin"} {
			assert.True(t, HasAdminRole(principalWith(map[string]any{"role": role})), role)
		}
	})

	t.Run("roles array containing admin among other values", func(t *testing.T) {
		p := principalWith(map[string]any{"roles": []any{"editor", 7, false, "aDmIn"}})
		assert.True(t, HasAdminRole(p))
	})

	t.Run("either key is enough", func(t *testing.T) {
		assert.True(t, HasAdminRole(principalWith(map[string]any{"role": "viewer", "roles": []any{"admin"}})))
		assert.True(t, HasAdminRole(principalWith(map[string]any{"role": "admin", "roles": "nope"})))
	})

	t.Run("non-granting shapes", func(t *testing.T) {
		for name, md := range map[string]map[string]any{
			"numeric role":      {"role": 123},
			"null role":         {"role": nil},
			"roles without one": {"roles": []any{"editor", "viewer"}},
			"empty bag":         {},
			"unrelated key":     {"admin": true},
		} {
			assert.False(t, HasAdminRole(principalWith(md)), name)
		}
	})

	t.Run("nil principal and nil metadata", func(t *testing.T) {
		assert.False(t, HasAdminRole(nil))
		assert.False(t, HasAdminRole(&identity.Principal{}))
		assert.False(t, MetadataGrantsAdmin(nil))
	})

	t.Run("metadata decoded from provider JSON", func(t *testing.T) {
		var md map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{"roles":["viewer",{"x":1},null,"Admin"],"role":12}`), &md))
		assert.True(t, HasAdminRole(principalWith(md)))
	})

	t.Run("user metadata cannot grant admin", func(t *testing.T) {
		var p identity.Principal
		require.NoError(t, json.Unmarshal([]byte(`{
			"id": "6f1c2a3e-8d4b-4c2a-9f3e-1a2b3c4d5e6f",
			"app_metadata": {},
			"user_metadata": {"role": "admin", "roles": ["admin"]}
		}`), &p))
		assert.False(t, HasAdminRole(&p))

		p.AppMetadata = nil
		assert.False(t, HasAdminRole(&p))
	})

	t.Run("does not mutate the bag", func(t *testing.T) {
		roles := []any{"editor", "admin"}
		md := map[string]any{"roles": roles}
		HasAdminRole(principalWith(md))
		assert.Equal(t, []any{"editor", "admin"}, md["roles"])
		assert.Len(t, md, 1)
	})

	t.Run("concurrent calls agree", func(t *testing.T) {
		p := principalWith(map[string]any{"roles": []any{"x", "admin"}})
		var wg sync.WaitGroup
		results := make([]bool, 64)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = HasAdminRole(p)
			}(i)
		}
		wg.Wait()
		for _, r := range results {
			assert.True(t, r)
		}
	})
}

func TestClassifyRoleClaim(t *testing.T) {
	md := map[string]any{"role": "admin", "roles": []any{"a"}, "n": nil, "i": 3}

	assert.Equal(t, RoleClaim{Kind: RoleClaimString, Value: "admin"}, ClassifyRoleClaim(md, "role"))
	assert.Equal(t, RoleClaimList, ClassifyRoleClaim(md, "roles").Kind)
	assert.Equal(t, RoleClaimOther, ClassifyRoleClaim(md, "n").Kind)
	assert.Equal(t, RoleClaimOther, ClassifyRoleClaim(md, "i").Kind)
	assert.Equal(t, RoleClaimAbsent, ClassifyRoleClaim(md, "missing").Kind)
	assert.Equal(t, RoleClaimAbsent, ClassifyRoleClaim(nil, "role").Kind)
	assert.Equal(t, RoleClaim{Kind: RoleClaimString, Value: "admin"}, ClassifyRoleClaim(map[string]any{"role": roleName("admin")}, "role"))
	assert.Equal(t, "list", RoleClaimList.String())
}
