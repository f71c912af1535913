package repository

import (
	"context"

	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
)

// TenancyRepository reads organizations, sites, users and site assignments.
type TenancyRepository struct {
	db *database.DB
}

func NewTenancyRepository(db *database.DB) *TenancyRepository {
	return &TenancyRepository{db: db}
}

func (r *TenancyRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := r.db.Conn(ctx).GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (r *TenancyRepository) GetOrganization(ctx context.Context, id int64) (*domain.Organization, error) {
	var o domain.Organization
	if err := r.db.Conn(ctx).GetContext(ctx, &o, `SELECT * FROM organizations WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "organization")
	}
	return &o, nil
}

// AssignedSiteIDs lists the sites a user is assigned to.
func (r *TenancyRepository) AssignedSiteIDs(ctx context.Context, userID int64) ([]int64, error) {
	ids := []int64{}
	err := r.db.Conn(ctx).SelectContext(ctx, &ids,
		`SELECT site_id FROM user_sites WHERE user_id = $1 ORDER BY site_id`, userID)
	return ids, err
}

func (r *TenancyRepository) GetSite(ctx context.Context, id int64) (*domain.Site, error) {
	var s domain.Site
	if err := r.db.Conn(ctx).GetContext(ctx, &s, `SELECT * FROM sites WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "site")
	}
	return &s, nil
}

// SiteFilter narrows ListActiveSites. Nil fields do not restrict.
type SiteFilter struct {
	OrganizationID *int64
	SiteIDs        []int64
}

// ListActiveSites returns active sites in an active organization.
func (r *TenancyRepository) ListActiveSites(ctx context.Context, f SiteFilter) ([]domain.Site, error) {
	w := &where{}
	w.add("s.is_active")
	w.add("o.is_active")
	if f.OrganizationID != nil {
		w.add("s.organization_id = ?", *f.OrganizationID)
	}
	if f.SiteIDs != nil {
		w.add("s.id = ANY(?)", pq.Array(f.SiteIDs))
	}

	sites := []domain.Site{}
	query := `SELECT s.* FROM sites s JOIN organizations o ON o.id = s.organization_id` + w.String() + ` ORDER BY s.id`
	if err := r.db.Conn(ctx).SelectContext(ctx, &sites, query, w.args...); err != nil {
		return nil, err
	}
	return sites, nil
}
