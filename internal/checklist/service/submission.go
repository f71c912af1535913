package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/access"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/form"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/rollup"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/schedule"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/metrics"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// SubmissionService records item submissions and keeps the checklist
// rollup in step with them.
type SubmissionService struct {
	tx         Transactor
	checklists ChecklistStore
	templates  TemplateStore
	responses  ResponseStore
	defects    DefectStore
	events     EventPublisher
	metrics    *metrics.Metrics
	cal        Calendar
	logger     *logger.Logger
}

func NewSubmissionService(
	tx Transactor,
	checklists ChecklistStore,
	templates TemplateStore,
	responses ResponseStore,
	defects DefectStore,
	events EventPublisher,
	m *metrics.Metrics,
	cal Calendar,
	log *logger.Logger,
) *SubmissionService {
	return &SubmissionService{
		tx:         tx,
		checklists: checklists,
		templates:  templates,
		responses:  responses,
		defects:    defects,
		events:     events,
		metrics:    m,
		cal:        cal,
		logger:     log.WithComponent("submissions"),
	}
}

// SubmitResult is the state after an accepted submission.
type SubmitResult struct {
	Item           *domain.ChecklistItem      `json:"item"`
	Checklist      *domain.Checklist          `json:"checklist"`
	Responses      []domain.TaskFieldResponse `json:"responses"`
	DefectsCreated []domain.Defect            `json:"defects_created"`
}

// SubmitItem evaluates sub against the item's task fields and, when it is
// accepted, stores the responses, raises threshold defects, completes the
// item and recomputes the checklist rollup in one transaction. A rejected
// submission writes nothing.
//
// Resubmitting replaces the responses. A field whose response already
// carries an automatic defect never raises another one.
func (s *SubmissionService) SubmitItem(ctx context.Context, scope tenant.Scope, itemID int64, sub form.Submission) (*SubmitResult, error) {
	defer s.metrics.TrackDBOperation("submit_item")(time.Now())

	var (
		result    *SubmitResult
		completed bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		item, err := s.checklists.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		c, err := s.checklists.GetForUpdate(ctx, item.ChecklistID)
		if err != nil {
			return err
		}
		if err := access.WriteSite(scope, c.OrganizationID, c.SiteID, "checklist item"); err != nil {
			return err
		}
		if !access.CanSeeItem(scope, item) {
			return apperrors.NotFound("checklist item")
		}
		if err := s.checkOpen(c); err != nil {
			return err
		}

		var taskFields []domain.TaskField
		if item.TaskID != nil {
			if taskFields, err = s.templates.ListFields(ctx, *item.TaskID); err != nil {
				return err
			}
		}
		fields, err := form.DecodeAll(taskFields)
		if err != nil {
			return err
		}
		eval, err := form.Evaluate(fields, sub)
		if err != nil {
			return err
		}

		existing, err := s.responses.ListByItem(ctx, item.ID)
		if err != nil {
			return err
		}
		linked := make(map[int64]domain.TaskFieldResponse, len(existing))
		for _, r := range existing {
			if r.TaskFieldID != nil && r.AutoDefectID != nil {
				linked[*r.TaskFieldID] = r
			}
		}

		result = &SubmitResult{Item: item, Checklist: c}
		reporter := reporterID(scope)
		keep := make([]int64, 0, len(eval.Answers))
		data := make(map[string]interface{}, len(eval.Answers))

		for _, a := range eval.Answers {
			value := a.Value
			var defectID *int64
			prev, isLinked := linked[a.Field.ID]
			switch {
			case isLinked:
				defectID = prev.AutoDefectID
				if value, err = a.Relinked(prev.Value()); err != nil {
					return err
				}
			case len(a.Defects) > 0:
				ids := make([]int64, 0, len(a.Defects))
				for _, draft := range a.Defects {
					d := &domain.Defect{
						OrganizationID:  c.OrganizationID,
						SiteID:          c.SiteID,
						ChecklistItemID: &item.ID,
						Title:           draft.Title,
						Description:     draft.Description,
						Severity:        draft.Severity,
						Status:          domain.DefectOpen,
						AutoGenerated:   true,
						ReportedByID:    reporter,
					}
					if err := s.defects.Create(ctx, d); err != nil {
						return err
					}
					ids = append(ids, d.ID)
					result.DefectsCreated = append(result.DefectsCreated, *d)
				}
				if value, defectID, err = a.Linked(ids); err != nil {
					return err
				}
			}

			fieldID := a.Field.ID
			resp := &domain.TaskFieldResponse{
				ChecklistItemID: item.ID,
				TaskFieldID:     &fieldID,
				FieldLabel:      a.Field.Label,
				FieldType:       a.Field.Type,
				AutoDefectID:    defectID,
			}
			resp.SetValue(value)
			if err := s.responses.Upsert(ctx, resp); err != nil {
				return err
			}
			result.Responses = append(result.Responses, *resp)
			keep = append(keep, fieldID)
			data[a.Field.Key()] = value.Interface()
		}

		if _, err := s.responses.DeleteStale(ctx, item.ID, keep); err != nil {
			return err
		}

		now := s.cal.Now().UTC()
		item.IsCompleted = true
		item.CompletedAt = &now
		item.CompletedByID = reporter
		item.Notes = sub.Notes
		item.PhotoURL = sub.PhotoURL
		item.ItemData = nil
		if len(data) > 0 {
			raw, err := json.Marshal(data)
			if err != nil {
				return err
			}
			j := types.JSONText(raw)
			item.ItemData = &j
		}
		if err := s.checklists.CompleteItem(ctx, item); err != nil {
			return err
		}

		completed, err = s.recompute(ctx, c, reporter, now)
		return err
	})
	if err != nil {
		s.metrics.RecordSubmission(apperrors.CodeOf(err))
		return nil, err
	}

	s.metrics.RecordSubmission("accepted")
	for i := range result.DefectsCreated {
		d := &result.DefectsCreated[i]
		s.metrics.RecordDefectCreated(true, string(d.Severity))
		s.events.DefectCreated(ctx, d)
	}
	if completed {
		s.events.ChecklistCompleted(ctx, result.Checklist)
	}

	s.logger.Info().
		Int64("item_id", itemID).
		Int64("checklist_id", result.Checklist.ID).
		Int64("user_id", scope.UserID).
		Int("responses", len(result.Responses)).
		Int("defects", len(result.DefectsCreated)).
		Str("status", string(result.Checklist.Status)).
		Msg("item submitted")
	return result, nil
}

// checkOpen rejects submissions to a scheduled checklist before it opens.
// Event checklists open when they are created.
func (s *SubmissionService) checkOpen(c *domain.Checklist) error {
	if c.IsEvent {
		return nil
	}
	freq := domain.FrequencyDaily
	if c.Frequency != nil {
		freq = *c.Frequency
	}
	opens, err := schedule.OpenInstant(freq, c.ChecklistDate, c.OpensAt, s.cal.Location)
	if err != nil {
		return err
	}
	if s.cal.Now().Before(opens) {
		return apperrors.Conflict("checklist opens at " + opens.Format(time.RFC3339))
	}
	return nil
}

// recompute refreshes the counts and status of c from its items. It reports
// whether this call moved the checklist into completed.
func (s *SubmissionService) recompute(ctx context.Context, c *domain.Checklist, by *int64, now time.Time) (bool, error) {
	total, done, err := s.checklists.CountItems(ctx, c.ID)
	if err != nil {
		return false, err
	}

	was := c.Status
	c.TotalItems = total
	c.CompletedItems = done
	c.Status = rollup.Status(c.ChecklistDate, s.cal.Today(), done, total)

	transitioned := c.Status == domain.StatusCompleted && was != domain.StatusCompleted
	switch {
	case transitioned:
		c.CompletedAt = &now
		c.CompletedByID = by
	case c.Status != domain.StatusCompleted:
		c.CompletedAt = nil
		c.CompletedByID = nil
	}

	if err := s.checklists.UpdateRollup(ctx, c); err != nil {
		return false, err
	}
	return transitioned, nil
}

// reporterID is the user to attribute writes to; nil for the system scope.
func reporterID(scope tenant.Scope) *int64 {
	if scope.IsSystem() {
		return nil
	}
	id := scope.UserID
	return &id
}
