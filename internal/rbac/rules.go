package rbac

import (
	"slices"
	"strings"
)

const (
	PermGradesViewOwn  = "grades:view-own"
	PermGradesViewAll  = "grades:view-all"
	PermGradesExport   = "grades:export"
	PermGradebookSync  = "gradebook:sync"
	PermRosterManage   = "roster:manage"
	PermChangePassword = "user:change_password"
)

// Policy maps a role to its grants. A grant ending in "*" covers a whole
// permission family, so "grades:*" holds every grades: permission.
type Policy map[string][]string

// Default policy. Teachers see and export a dojo's grades; only admins push
// them to the LMS.
var Default = Policy{
	"student": {
		PermGradesViewOwn,
		PermChangePassword,
	},
	"teacher": {
		"grades:*",
		PermRosterManage,
		PermChangePassword,
	},
	"admin": {
		"*",
	},
}

func (p Policy) Grants(role, perm string) bool {
	for _, g := range p[role] {
		if g == perm || g == "*" {
			return true
		}
		if family, ok := strings.CutSuffix(g, "*"); ok && strings.HasPrefix(perm, family) {
			return true
		}
	}
	return false
}

func (p Policy) GrantsAny(role string, perms ...string) bool {
	return slices.ContainsFunc(perms, func(perm string) bool { return p.Grants(role, perm) })
}

// Staff reports whether role can see other students' grades. Staff have no
// student identity of their own in a dojo.
func (p Policy) Staff(role string) bool {
	return p.Grants(role, PermGradesViewAll)
}
