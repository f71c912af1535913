// Package access resolves principals into scopes and holds the rules that
// decide what a scope may read and write.
package access

import (
	"context"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// Directory looks up principals and their memberships.
type Directory interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetOrganization(ctx context.Context, id int64) (*domain.Organization, error)
	AssignedSiteIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Resolver turns an authenticated user id into a Scope.
type Resolver struct {
	dir    Directory
	logger *logger.Logger
}

func NewResolver(dir Directory, log *logger.Logger) *Resolver {
	return &Resolver{dir: dir, logger: log.WithComponent("access")}
}

// Resolve loads the user and builds its scope. Unknown users are
// UNAUTHENTICATED; a deactivated user or organization is INACTIVE.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (tenant.Scope, error) {
	user, err := r.dir.GetUser(ctx, userID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return tenant.Scope{}, apperrors.Unauthenticated("unknown principal")
		}
		return tenant.Scope{}, err
	}
	if !user.IsActive {
		return tenant.Scope{}, apperrors.Inactive("user account is inactive")
	}
	if !user.Role.Valid() {
		r.logger.Warn().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("user has unknown role")
		return tenant.Scope{}, apperrors.Unauthenticated("unknown role")
	}

	scope := tenant.Scope{
		UserID:          user.ID,
		Role:            user.Role,
		Department:      user.Department,
		ManagementLevel: user.IsManagementLevel(),
		AssignedSiteIDs: []int64{},
	}

	if user.Role == tenant.RoleSuperAdmin {
		return scope, nil
	}

	if user.OrganizationID == nil {
		r.logger.Warn().Int64("user_id", user.ID).Msg("non super admin user without organization")
		return tenant.Scope{}, apperrors.Unauthenticated("user has no organization")
	}
	org, err := r.dir.GetOrganization(ctx, *user.OrganizationID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return tenant.Scope{}, apperrors.Unauthenticated("unknown organization")
		}
		return tenant.Scope{}, err
	}
	if !org.IsActive {
		return tenant.Scope{}, apperrors.Inactive("organization is inactive")
	}
	orgID := org.ID
	scope.OrganizationID = &orgID

	if user.Role == tenant.RoleSiteUser {
		sites, err := r.dir.AssignedSiteIDs(ctx, user.ID)
		if err != nil {
			return tenant.Scope{}, err
		}
		if sites != nil {
			scope.AssignedSiteIDs = sites
		}
	}

	return scope, nil
}
