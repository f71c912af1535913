package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/access"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/schedule"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/messaging"
	"github.com/kitchensafe/kitchensafe-backend/pkg/metrics"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// Generation triggers, reported on the completion event.
const (
	TriggerCron = "cron"
	TriggerAPI  = "api"
	TriggerCLI  = "cli"
)

// GenerationResult counts the (site, category, date) triples of one run.
type GenerationResult struct {
	Date    domain.Date `json:"date"`
	Created int         `json:"created"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
}

// Scheduler materialises checklist instances from templates.
type Scheduler struct {
	tx         Transactor
	sites      SiteStore
	templates  TemplateStore
	checklists ChecklistStore
	events     EventPublisher
	metrics    *metrics.Metrics
	cal        Calendar
	logger     *logger.Logger
}

func NewScheduler(
	tx Transactor,
	sites SiteStore,
	templates TemplateStore,
	checklists ChecklistStore,
	events EventPublisher,
	m *metrics.Metrics,
	cal Calendar,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		tx:         tx,
		sites:      sites,
		templates:  templates,
		checklists: checklists,
		events:     events,
		metrics:    m,
		cal:        cal,
		logger:     log.WithComponent("scheduler"),
	}
}

// InstantiateForDate creates the scheduled checklists due on date for every
// active site in scope and every active scheduled category applying to it.
// Empty siteIDs or categoryIDs mean "all". Triples that already exist are
// skipped; a failing triple is logged and counted without stopping the run.
func (s *Scheduler) InstantiateForDate(ctx context.Context, scope tenant.Scope, date domain.Date, siteIDs, categoryIDs []int64) (*GenerationResult, error) {
	return s.run(ctx, scope, date, siteIDs, categoryIDs, TriggerAPI)
}

func (s *Scheduler) run(ctx context.Context, scope tenant.Scope, date domain.Date, siteIDs, categoryIDs []int64, trigger string) (*GenerationResult, error) {
	if err := access.RequireAdmin(scope); err != nil {
		return nil, err
	}

	categories, err := s.scheduledCategories(ctx, scope, categoryIDs)
	if err != nil {
		return nil, err
	}

	restricted, empty := scope.RestrictSites(siteIDs)
	result := &GenerationResult{Date: date}
	if empty {
		return result, nil
	}
	sf := repository.SiteFilter{SiteIDs: restricted}
	if !scope.IsSuperAdmin() {
		sf.OrganizationID = scope.OrganizationID
	}
	sites, err := s.sites.ListActiveSites(ctx, sf)
	if err != nil {
		return nil, err
	}

	for i := range sites {
		site := &sites[i]
		for j := range categories {
			cat := &categories[j]
			if !access.CategoryAppliesTo(cat, site.OrganizationID) {
				continue
			}
			for _, target := range schedule.TargetDates(cat.Frequency, date) {
				created, err := s.instantiate(ctx, site, cat, target)
				switch {
				case err != nil:
					result.Failed++
					s.logger.WithOrganization(&site.OrganizationID).Error().Err(err).
						Int64("site_id", site.ID).
						Int64("category_id", cat.ID).
						Str("date", target.String()).
						Msg("failed to instantiate checklist")
				case created:
					result.Created++
				default:
					result.Skipped++
				}
			}
		}
	}

	s.metrics.RecordGeneration(result.Created, result.Skipped, result.Failed)
	s.events.GenerationCompleted(ctx, messaging.GenerationCompletedEvent{
		Date:      date.String(),
		SiteIDs:   restricted,
		Created:   result.Created,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
		Triggered: trigger,
	})

	s.logger.Info().
		Str("date", date.String()).
		Str("trigger", trigger).
		Int("sites", len(sites)).
		Int("categories", len(categories)).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("checklist generation finished")

	return result, nil
}

// scheduledCategories resolves the categories a run covers. An explicit
// selection containing an event-driven category is rejected outright.
func (s *Scheduler) scheduledCategories(ctx context.Context, scope tenant.Scope, ids []int64) ([]domain.Category, error) {
	f := repository.CategoryFilter{IDs: ids, ActiveOnly: true}
	if !scope.IsSuperAdmin() {
		f.OrganizationID = scope.OrganizationID
	}
	all, err := s.templates.ListCategories(ctx, f)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Category, 0, len(all))
	for _, c := range all {
		if c.Frequency.IsEvent() {
			if len(ids) > 0 {
				return nil, apperrors.InvalidFrequency(
					"category " + c.Name + " is event-driven and cannot be scheduled")
			}
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// instantiate creates one scheduled checklist with its items in a single
// transaction. It reports false when the checklist already existed.
func (s *Scheduler) instantiate(ctx context.Context, site *domain.Site, cat *domain.Category, date domain.Date) (bool, error) {
	defer s.metrics.TrackDBOperation("instantiate_checklist")(time.Now())

	var created bool
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		catID := cat.ID
		c := &domain.Checklist{
			SiteID:        site.ID,
			CategoryID:    &catID,
			CategoryName:  cat.Name,
			ChecklistDate: date,
			Status:        domain.StatusPending,
		}
		ok, err := s.checklists.InsertScheduled(ctx, c)
		if err != nil || !ok {
			return err
		}
		if _, err := s.checklists.MaterialiseItems(ctx, c.ID, cat.ID); err != nil {
			return err
		}
		created = true
		return nil
	})
	if apperrors.HasCode(err, apperrors.CodeConflictingUniqueness) {
		return false, nil
	}
	return created, err
}

// EventRequest asks for one event-driven checklist.
type EventRequest struct {
	CategoryID int64           `json:"category_id" validate:"required,gt=0"`
	SiteID     int64           `json:"site_id" validate:"required,gt=0"`
	EventType  *string         `json:"event_type,omitempty" validate:"omitempty,max=100"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// InstantiateEvent creates an event-driven checklist for today. Any number
// may exist per site, category and day.
func (s *Scheduler) InstantiateEvent(ctx context.Context, scope tenant.Scope, req EventRequest) (*domain.Checklist, error) {
	site, err := s.sites.GetSite(ctx, req.SiteID)
	if err != nil {
		return nil, err
	}
	if err := access.WriteSite(scope, site.OrganizationID, site.ID, "site"); err != nil {
		return nil, err
	}

	cat, err := s.templates.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}
	if !access.CategoryAppliesTo(cat, site.OrganizationID) {
		return nil, apperrors.NotFound("category")
	}
	if !cat.Frequency.IsEvent() {
		return nil, apperrors.InvalidFrequency(
			"category " + cat.Name + " runs on a " + string(cat.Frequency) + " schedule")
	}
	if !cat.IsActive {
		return nil, apperrors.BadRequest("category is inactive")
	}

	var metadata *types.JSONText
	if raw := strings.TrimSpace(string(req.Metadata)); raw != "" && raw != "null" {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, apperrors.Validation(map[string]string{"metadata": "must be a JSON object"})
		}
		j := types.JSONText(raw)
		metadata = &j
	}

	catID := cat.ID
	c := &domain.Checklist{
		SiteID:         site.ID,
		OrganizationID: site.OrganizationID,
		CategoryID:     &catID,
		CategoryName:   cat.Name,
		ChecklistDate:  s.cal.Today(),
		Status:         domain.StatusPending,
		IsEvent:        true,
		EventType:      req.EventType,
		EventMetadata:  metadata,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checklists.InsertEvent(ctx, c); err != nil {
			return err
		}
		_, err := s.checklists.MaterialiseItems(ctx, c.ID, cat.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("checklist_id", c.ID).
		Int64("site_id", site.ID).
		Int64("category_id", cat.ID).
		Str("frequency", string(cat.Frequency)).
		Msg("event checklist created")
	return s.checklists.Get(ctx, c.ID)
}

// MarkOverdue flips past-dated, incomplete checklists to overdue.
func (s *Scheduler) MarkOverdue(ctx context.Context, today domain.Date) (int64, error) {
	n, err := s.checklists.MarkOverdue(ctx, today)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordOverdue(n)
	if n > 0 {
		s.logger.Info().Int64("count", n).Str("today", today.String()).Msg("checklists marked overdue")
	}
	return n, nil
}
