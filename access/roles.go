package access

import (
	"reflect"
	"strings"

	"github.com/upb/portal/identity"
)

// AdminRole is the role name that grants administrative access
const AdminRole = "admin"

// Metadata keys that may carry a role claim, checked in this order
const (
	RoleKey  = "role"
	RolesKey = "roles"
)

// RoleClaimKind is the closed set of shapes a role claim can take
type RoleClaimKind int

const (
	RoleClaimAbsent RoleClaimKind = iota
	RoleClaimString
	RoleClaimList
	RoleClaimOther
)

func (k RoleClaimKind) String() string {
	switch k {
	case RoleClaimAbsent:
		return "absent"
	case RoleClaimString:
		return "string"
	case RoleClaimList:
		return "list"
	default:
		return "other"
	}
}

// RoleClaim is a classified metadata value. Only the field matching Kind is set.
type RoleClaim struct {
	Kind  RoleClaimKind
	Value string // RoleClaimString
	Items []any  // RoleClaimList
}

// ClassifyRoleClaim reads key from md and classifies it. A nil bag or a
// missing key is Absent; an explicit null is Other.
func ClassifyRoleClaim(md map[string]any, key string) RoleClaim {
	if md == nil {
		return RoleClaim{Kind: RoleClaimAbsent}
	}
	v, ok := md[key]
	if !ok {
		return RoleClaim{Kind: RoleClaimAbsent}
	}
	return classify(v)
}

func classify(v any) RoleClaim {
	switch val := v.(type) {
	case string:
		return RoleClaim{Kind: RoleClaimString, Value: val}
	case []any:
		return RoleClaim{Kind: RoleClaimList, Items: val}
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return RoleClaim{Kind: RoleClaimList, Items: items}
	case nil:
		return RoleClaim{Kind: RoleClaimOther}
	}

	// Named string types and any other slice or array shape are still strings and lists.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return RoleClaim{Kind: RoleClaimString, Value: rv.String()}
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return RoleClaim{Kind: RoleClaimList, Items: items}
	}
	return RoleClaim{Kind: RoleClaimOther}
}

// GrantsAdmin reports whether the claim names the admin role
func (c RoleClaim) GrantsAdmin() bool {
	switch c.Kind {
	case RoleClaimString:
		return isAdmin(c.Value)
	case RoleClaimList:
		for _, item := range c.Items {
			if s, ok := asString(item); ok && isAdmin(s) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MatchesAdminRole reports whether value is "admin" (any case) or a list
// containing such a string. Non-string list elements are ignored and every
// other shape is false.
func MatchesAdminRole(value any) bool {
	return classify(value).GrantsAdmin()
}

// HasAdminRole reports whether the principal's application metadata grants
// the admin role through "role" or "roles". It never fails: a nil principal,
// a nil bag, or any unexpected shape is simply false.
func HasAdminRole(p *identity.Principal) bool {
	return MetadataGrantsAdmin(p.Metadata())
}

// MetadataGrantsAdmin applies the admin check directly to a metadata bag
func MetadataGrantsAdmin(md map[string]any) bool {
	if md == nil {
		return false
	}
	return ClassifyRoleClaim(md, RoleKey).GrantsAdmin() ||
		ClassifyRoleClaim(md, RolesKey).GrantsAdmin()
}

func asString(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func isAdmin(s string) bool {
	return strings.EqualFold(s, AdminRole)
}
