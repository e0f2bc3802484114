// Package auth turns the authenticated backend user into the capability
// checks the console components consume.
package auth

import (
	"sort"
	"strings"

	"gestionale/internal/core"
)

// Authorizer answers capability checks.
type Authorizer interface {
	Has(permission string) bool
}

// PermissionSet is the immutable set of permission names granted to a user
// through their role. Users whose role name equals the configured super
// admin role pass every check.
type PermissionSet struct {
	names      map[string]struct{}
	superAdmin bool
}

// NewPermissionSet computes the set from the user's role. superAdminRole
// is compared case-insensitively; an empty value disables the bypass.
func NewPermissionSet(user core.User, superAdminRole string) PermissionSet {
	ps := PermissionSet{names: make(map[string]struct{})}
	if user.Role == nil {
		return ps
	}
	if superAdminRole != "" && strings.EqualFold(strings.TrimSpace(user.Role.Name), strings.TrimSpace(superAdminRole)) {
		ps.superAdmin = true
	}
	for _, name := range user.Role.PermissionNames() {
		if name = strings.TrimSpace(name); name != "" {
			ps.names[name] = struct{}{}
		}
	}
	return ps
}

// Has reports whether permission is granted. The empty name is ungated.
func (ps PermissionSet) Has(permission string) bool {
	if permission == "" || ps.superAdmin {
		return true
	}
	_, ok := ps.names[permission]
	return ok
}

// IsSuperAdmin reports whether the bypass applies.
func (ps PermissionSet) IsSuperAdmin() bool { return ps.superAdmin }

// Names returns the granted names sorted.
func (ps PermissionSet) Names() []string {
	out := make([]string, 0, len(ps.names))
	for name := range ps.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Deny is an Authorizer that grants nothing but ungated entries.
type Deny struct{}

func (Deny) Has(permission string) bool { return permission == "" }
