package service

import (
	"context"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/access"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/rollup"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// ChecklistService serves scoped reads of checklist instances.
type ChecklistService struct {
	checklists ChecklistStore
	responses  ResponseStore
	cal        Calendar
	logger     *logger.Logger
}

func NewChecklistService(checklists ChecklistStore, responses ResponseStore, cal Calendar, log *logger.Logger) *ChecklistService {
	return &ChecklistService{
		checklists: checklists,
		responses:  responses,
		cal:        cal,
		logger:     log.WithComponent("checklists"),
	}
}

// ChecklistView is a checklist with its derived completion percentage.
type ChecklistView struct {
	domain.Checklist
	CompletionPercentage float64 `json:"completion_percentage"`
}

// ItemView is an item with its stored responses.
type ItemView struct {
	domain.ChecklistItem
	Responses []domain.TaskFieldResponse `json:"responses"`
}

// ChecklistDetail is a checklist with the items the caller may see.
type ChecklistDetail struct {
	ChecklistView
	Items []ItemView `json:"items"`
}

// ListChecklists returns one page of checklists visible to scope. Site users
// only ever see their assigned sites; a filter naming none of them yields an
// empty page.
func (s *ChecklistService) ListChecklists(ctx context.Context, scope tenant.Scope, f domain.ChecklistFilter) ([]ChecklistView, int, error) {
	sites, empty := scope.RestrictSites(f.SiteIDs)
	if empty {
		return []ChecklistView{}, 0, nil
	}
	f.SiteIDs = sites
	if !scope.IsSuperAdmin() {
		f.OrganizationID = scope.OrganizationID
	}
	today := s.cal.Today()
	f.Today = &today

	list, total, err := s.checklists.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	out := make([]ChecklistView, len(list))
	for i := range list {
		out[i] = s.view(list[i], today)
	}
	return out, total, nil
}

// GetChecklist returns a checklist with the items visible to scope and
// their responses.
func (s *ChecklistService) GetChecklist(ctx context.Context, scope tenant.Scope, id int64) (*ChecklistDetail, error) {
	c, err := s.checklists.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.ReadSite(scope, c.OrganizationID, c.SiteID, "checklist"); err != nil {
		return nil, err
	}

	items, err := s.checklists.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	visible := access.VisibleItems(scope, items)

	detail := &ChecklistDetail{
		ChecklistView: s.view(*c, s.cal.Today()),
		Items:         make([]ItemView, 0, len(visible)),
	}
	for _, it := range visible {
		responses, err := s.responses.ListByItem(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		detail.Items = append(detail.Items, ItemView{ChecklistItem: it, Responses: responses})
	}
	return detail, nil
}

// view derives the status from the counters so a checklist dated in the past
// reads as overdue before the nightly sweep has run.
func (s *ChecklistService) view(c domain.Checklist, today domain.Date) ChecklistView {
	c.Status = rollup.Status(c.ChecklistDate, today, c.CompletedItems, c.TotalItems)
	return ChecklistView{
		Checklist:            c,
		CompletionPercentage: rollup.CompletionPercentage(c.CompletedItems, c.TotalItems),
	}
}
