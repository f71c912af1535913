// Package tenant carries the resolved access scope of a principal: which
// organization it belongs to, which sites it may touch and which department
// it works in. Every read and write in the checklist engine is filtered
// through a Scope.
package tenant

import "slices"

// Role is the coarse authorisation level of a user.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleOrgAdmin   Role = "org_admin"
	RoleSiteUser   Role = "site_user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOrgAdmin, RoleSiteUser:
		return true
	}
	return false
}

// Department groups site staff. Tasks may be allocated to departments.
type Department string

const (
	DepartmentManagement Department = "management"
	DepartmentBOH        Department = "boh"
	DepartmentFOH        Department = "foh"
)

// Valid reports whether d is a known department.
func (d Department) Valid() bool {
	switch d {
	case DepartmentManagement, DepartmentBOH, DepartmentFOH:
		return true
	}
	return false
}

// SystemUserID identifies the scheduler and other system-initiated work.
const SystemUserID int64 = 0

// Scope is the resolved (principal, organization, site-set, department) tuple.
type Scope struct {
	UserID          int64       `json:"user_id"`
	Role            Role        `json:"role"`
	OrganizationID  *int64      `json:"organization_id,omitempty"`
	AssignedSiteIDs []int64     `json:"assigned_site_ids"`
	Department      *Department `json:"department,omitempty"`
	ManagementLevel bool        `json:"is_management_level"`
}

// SystemScope returns the unrestricted scope used by the daily generator and
// event consumers.
func SystemScope() Scope {
	return Scope{UserID: SystemUserID, Role: RoleSuperAdmin}
}

// IsSystem reports whether the scope belongs to the system principal.
func (s Scope) IsSystem() bool {
	return s.Role == RoleSuperAdmin && s.UserID == SystemUserID
}

// IsSuperAdmin reports whether the scope is unrestricted.
func (s Scope) IsSuperAdmin() bool {
	return s.Role == RoleSuperAdmin
}

// IsAdmin reports whether the scope may administer templates and defects.
func (s Scope) IsAdmin() bool {
	return s.Role == RoleSuperAdmin || s.Role == RoleOrgAdmin
}

// InOrganization reports whether the scope may see entities owned by orgID.
func (s Scope) InOrganization(orgID int64) bool {
	if s.IsSuperAdmin() {
		return true
	}
	return s.OrganizationID != nil && *s.OrganizationID == orgID
}

// CanAccessSite reports whether the scope may touch the given site.
func (s Scope) CanAccessSite(siteOrgID, siteID int64) bool {
	if !s.InOrganization(siteOrgID) {
		return false
	}
	if s.Role == RoleSiteUser {
		return slices.Contains(s.AssignedSiteIDs, siteID)
	}
	return true
}

// RestrictSites intersects a requested site filter with the scope's site set.
// It returns the effective filter and whether the result is definitely empty.
// A nil return with empty=false means "no site restriction" for admins.
func (s Scope) RestrictSites(requested []int64) (sites []int64, empty bool) {
	if s.Role != RoleSiteUser {
		return requested, false
	}
	if len(requested) == 0 {
		out := slices.Clone(s.AssignedSiteIDs)
		return out, len(out) == 0
	}
	out := make([]int64, 0, len(requested))
	for _, id := range requested {
		if slices.Contains(s.AssignedSiteIDs, id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, len(out) == 0
}

// CanSeeTask applies department visibility: a task allocated to a non-empty
// department set is hidden from site users outside those departments unless
// they are management-level.
func (s Scope) CanSeeTask(allocated []Department) bool {
	if len(allocated) == 0 || s.IsAdmin() || s.ManagementLevel {
		return true
	}
	if s.Department == nil {
		return false
	}
	return slices.Contains(allocated, *s.Department)
}
