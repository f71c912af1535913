package service

import (
	"context"
	"strings"
	"time"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/access"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/metrics"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// DefectService runs the manual side of the defect lifecycle:
// open -> in_progress -> closed, with open -> closed allowed directly.
type DefectService struct {
	tx         Transactor
	sites      SiteStore
	checklists ChecklistStore
	defects    DefectStore
	events     EventPublisher
	metrics    *metrics.Metrics
	cal        Calendar
	logger     *logger.Logger
}

func NewDefectService(
	tx Transactor,
	sites SiteStore,
	checklists ChecklistStore,
	defects DefectStore,
	events EventPublisher,
	m *metrics.Metrics,
	cal Calendar,
	log *logger.Logger,
) *DefectService {
	return &DefectService{
		tx:         tx,
		sites:      sites,
		checklists: checklists,
		defects:    defects,
		events:     events,
		metrics:    m,
		cal:        cal,
		logger:     log.WithComponent("defects"),
	}
}

// DefectInput opens a defect by hand.
type DefectInput struct {
	SiteID          int64           `json:"site_id" validate:"required,gt=0"`
	ChecklistItemID *int64          `json:"checklist_item_id,omitempty" validate:"omitempty,gt=0"`
	Title           string          `json:"title" validate:"required,max=255"`
	Description     string          `json:"description" validate:"max=4000"`
	Severity        domain.Severity `json:"severity" validate:"required,oneof=low medium high critical"`
	PhotoURL        *string         `json:"photo_url,omitempty" validate:"omitempty,max=2048"`
}

func (s *DefectService) Open(ctx context.Context, scope tenant.Scope, in DefectInput) (*domain.Defect, error) {
	site, err := s.sites.GetSite(ctx, in.SiteID)
	if err != nil {
		return nil, err
	}
	if err := access.WriteSite(scope, site.OrganizationID, site.ID, "site"); err != nil {
		return nil, err
	}
	if !in.Severity.Valid() {
		return nil, apperrors.Validation(map[string]string{"severity": "must be one of low, medium, high, critical"})
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperrors.Validation(map[string]string{"title": "is required"})
	}

	if in.ChecklistItemID != nil {
		item, err := s.checklists.GetItem(ctx, *in.ChecklistItemID)
		if err != nil {
			return nil, err
		}
		c, err := s.checklists.Get(ctx, item.ChecklistID)
		if err != nil {
			return nil, err
		}
		if c.SiteID != site.ID {
			return nil, apperrors.Validation(map[string]string{
				"checklist_item_id": "item belongs to another site",
			})
		}
	}

	d := &domain.Defect{
		OrganizationID:  site.OrganizationID,
		SiteID:          site.ID,
		ChecklistItemID: in.ChecklistItemID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Severity:        in.Severity,
		Status:          domain.DefectOpen,
		PhotoURL:        in.PhotoURL,
		ReportedByID:    reporterID(scope),
	}
	if err := s.defects.Create(ctx, d); err != nil {
		return nil, err
	}

	s.metrics.RecordDefectCreated(false, string(d.Severity))
	s.events.DefectCreated(ctx, d)
	s.logger.Info().
		Int64("defect_id", d.ID).
		Int64("site_id", d.SiteID).
		Str("severity", string(d.Severity)).
		Msg("defect opened")
	return d, nil
}

func (s *DefectService) Get(ctx context.Context, scope tenant.Scope, id int64) (*domain.Defect, error) {
	d, err := s.defects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.ReadSite(scope, d.OrganizationID, d.SiteID, "defect"); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DefectService) List(ctx context.Context, scope tenant.Scope, f domain.DefectFilter) ([]domain.Defect, int, error) {
	sites, empty := scope.RestrictSites(f.SiteIDs)
	if empty {
		return []domain.Defect{}, 0, nil
	}
	f.SiteIDs = sites
	if !scope.IsSuperAdmin() {
		f.OrganizationID = scope.OrganizationID
	}
	return s.defects.List(ctx, f)
}

// StartProgress moves an open defect to in_progress.
func (s *DefectService) StartProgress(ctx context.Context, scope tenant.Scope, id int64) (*domain.Defect, error) {
	return s.mutate(ctx, scope, id, func(d *domain.Defect) error {
		if d.Status != domain.DefectOpen {
			return apperrors.Conflict("only open defects can be started")
		}
		d.Status = domain.DefectInProgress
		return nil
	})
}

// Close closes a defect, appending notes to its description.
func (s *DefectService) Close(ctx context.Context, scope tenant.Scope, id int64, notes string) (*domain.Defect, error) {
	d, err := s.mutate(ctx, scope, id, func(d *domain.Defect) error {
		now := s.cal.Now().UTC()
		d.Status = domain.DefectClosed
		d.ClosedAt = &now
		d.ClosedByID = reporterID(scope)
		if notes = strings.TrimSpace(notes); notes != "" {
			if d.Description == "" {
				d.Description = "Closure notes: " + notes
			} else {
				d.Description += "\n\nClosure notes: " + notes
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDefectClosed()
	s.events.DefectClosed(ctx, d)
	s.logger.Info().Int64("defect_id", d.ID).Int64("user_id", scope.UserID).Msg("defect closed")
	return d, nil
}

// UpdateSeverity regrades an unclosed defect. Administrators only.
func (s *DefectService) UpdateSeverity(ctx context.Context, scope tenant.Scope, id int64, sev domain.Severity) (*domain.Defect, error) {
	if !sev.Valid() {
		return nil, apperrors.Validation(map[string]string{"severity": "must be one of low, medium, high, critical"})
	}
	return s.mutate(ctx, scope, id, func(d *domain.Defect) error {
		if err := access.RequireAdmin(scope); err != nil {
			return err
		}
		d.Severity = sev
		return nil
	})
}

// Delete removes a defect. Super admins only.
func (s *DefectService) Delete(ctx context.Context, scope tenant.Scope, id int64) error {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return err
	}
	if err := access.RequireSuperAdmin(scope); err != nil {
		return err
	}
	if err := s.defects.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("defect_id", id).Int64("user_id", scope.UserID).Msg("defect deleted")
	return nil
}

// mutate locks the defect, checks write access, rejects changes to closed
// defects and persists whatever fn changed.
func (s *DefectService) mutate(ctx context.Context, scope tenant.Scope, id int64, fn func(*domain.Defect) error) (*domain.Defect, error) {
	defer s.metrics.TrackDBOperation("update_defect")(time.Now())

	var out *domain.Defect
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.defects.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := access.WriteSite(scope, d.OrganizationID, d.SiteID, "defect"); err != nil {
			return err
		}
		if d.Status == domain.DefectClosed {
			return apperrors.Conflict("defect is already closed")
		}
		if err := fn(d); err != nil {
			return err
		}
		if err := s.defects.Update(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}
