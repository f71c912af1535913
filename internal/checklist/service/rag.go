package service

import (
	"context"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/access"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/rollup"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// RAGService grades sites and organizations.
type RAGService struct {
	sites  SiteStore
	stats  StatsStore
	cal    Calendar
	logger *logger.Logger
}

func NewRAGService(sites SiteStore, stats StatsStore, cal Calendar, log *logger.Logger) *RAGService {
	return &RAGService{
		sites:  sites,
		stats:  stats,
		cal:    cal,
		logger: log.WithComponent("rag"),
	}
}

func (s *RAGService) ForSite(ctx context.Context, scope tenant.Scope, siteID int64) (*rollup.SiteSnapshot, error) {
	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if err := access.ReadSite(scope, site.OrganizationID, site.ID, "site"); err != nil {
		return nil, err
	}

	snaps, err := s.snapshots(ctx, []int64{site.ID})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, apperrors.NotFound("site")
	}
	return &snaps[0], nil
}

// ForOrganization grades every active site of the organization the scope
// can see and rolls them up to the worst one.
func (s *RAGService) ForOrganization(ctx context.Context, scope tenant.Scope, orgID int64) (*rollup.OrgRollup, error) {
	if !scope.InOrganization(orgID) {
		return nil, apperrors.NotFound("organization")
	}

	out := rollup.Rollup(orgID, nil)
	restricted, empty := scope.RestrictSites(nil)
	if empty {
		return &out, nil
	}
	sites, err := s.sites.ListActiveSites(ctx, repository.SiteFilter{OrganizationID: &orgID, SiteIDs: restricted})
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		return &out, nil
	}

	ids := make([]int64, len(sites))
	for i, site := range sites {
		ids[i] = site.ID
	}
	snaps, err := s.snapshots(ctx, ids)
	if err != nil {
		return nil, err
	}
	out = rollup.Rollup(orgID, snaps)
	return &out, nil
}

func (s *RAGService) snapshots(ctx context.Context, siteIDs []int64) ([]rollup.SiteSnapshot, error) {
	now := s.cal.Now()
	since := now.AddDate(0, 0, -rollup.Window)
	overdueBefore := now.AddDate(0, 0, -rollup.DefectOverdueAfterDays)

	stats, err := s.stats.SiteStats(ctx, siteIDs, since, overdueBefore)
	if err != nil {
		return nil, err
	}
	out := make([]rollup.SiteSnapshot, len(stats))
	for i, st := range stats {
		out[i] = rollup.Snapshot(st)
	}
	return out, nil
}
