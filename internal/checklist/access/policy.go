package access

import (
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// ReadSite fails with NOT_FOUND when the scope cannot see the site, so
// callers cannot probe for entities of other tenants.
func ReadSite(s tenant.Scope, siteOrgID, siteID int64, resource string) error {
	if !s.CanAccessSite(siteOrgID, siteID) {
		return apperrors.NotFound(resource)
	}
	return nil
}

// WriteSite is ReadSite for writes: another organization's entity is
// NOT_FOUND, a site of the scope's own organization it is not assigned to
// is PERMISSION_DENIED.
func WriteSite(s tenant.Scope, siteOrgID, siteID int64, resource string) error {
	if !s.InOrganization(siteOrgID) {
		return apperrors.NotFound(resource)
	}
	if !s.CanAccessSite(siteOrgID, siteID) {
		return apperrors.PermissionDenied("not assigned to this site")
	}
	return nil
}

// RequireAdmin allows org admins and super admins.
func RequireAdmin(s tenant.Scope) error {
	if !s.IsAdmin() {
		return apperrors.PermissionDenied("administrator role required")
	}
	return nil
}

// RequireSuperAdmin allows only super admins.
func RequireSuperAdmin(s tenant.Scope) error {
	if !s.IsSuperAdmin() {
		return apperrors.PermissionDenied("super admin role required")
	}
	return nil
}

// CanViewCategory reports whether a category is visible to the scope:
// global categories are visible to everyone.
func CanViewCategory(s tenant.Scope, c *domain.Category) bool {
	if c.IsGlobal || c.OrganizationID == nil {
		return true
	}
	return s.InOrganization(*c.OrganizationID)
}

// CategoryAppliesTo reports whether the scheduler should materialise c for
// sites of the given organization.
func CategoryAppliesTo(c *domain.Category, orgID int64) bool {
	if c.IsGlobal || c.OrganizationID == nil {
		return true
	}
	return *c.OrganizationID == orgID
}

// AuthorCategory checks that the scope may modify c and everything under
// it. Global templates belong to super admins; org templates to their
// organization's admins.
func AuthorCategory(s tenant.Scope, c *domain.Category) error {
	if !CanViewCategory(s, c) {
		return apperrors.NotFound("category")
	}
	if err := RequireAdmin(s); err != nil {
		return err
	}
	if (c.IsGlobal || c.OrganizationID == nil) && !s.IsSuperAdmin() {
		return apperrors.PermissionDenied("global templates can only be changed by a super admin")
	}
	return nil
}

// VisibleItems drops items allocated to departments the scope does not
// work in. Admins and management-level staff see everything.
func VisibleItems(s tenant.Scope, items []domain.ChecklistItem) []domain.ChecklistItem {
	out := make([]domain.ChecklistItem, 0, len(items))
	for _, it := range items {
		if s.CanSeeTask(domain.Departments(it.AllocatedDepartments)) {
			out = append(out, it)
		}
	}
	return out
}

// CanSeeItem applies VisibleItems to a single item.
func CanSeeItem(s tenant.Scope, item *domain.ChecklistItem) bool {
	return s.CanSeeTask(domain.Departments(item.AllocatedDepartments))
}
