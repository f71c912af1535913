package handler

import (
	"context"
	"net/http"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/form"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/service"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/httputil"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// ChecklistReader serves checklist reads.
type ChecklistReader interface {
	ListChecklists(ctx context.Context, scope tenant.Scope, f domain.ChecklistFilter) ([]service.ChecklistView, int, error)
	GetChecklist(ctx context.Context, scope tenant.Scope, id int64) (*service.ChecklistDetail, error)
}

// Instantiator materialises checklists.
type Instantiator interface {
	InstantiateForDate(ctx context.Context, scope tenant.Scope, date domain.Date, siteIDs, categoryIDs []int64) (*service.GenerationResult, error)
	InstantiateEvent(ctx context.Context, scope tenant.Scope, req service.EventRequest) (*domain.Checklist, error)
}

// Submitter records item submissions.
type Submitter interface {
	SubmitItem(ctx context.Context, scope tenant.Scope, itemID int64, sub form.Submission) (*service.SubmitResult, error)
}

// ChecklistHandler handles checklist endpoints
type ChecklistHandler struct {
	checklists  ChecklistReader
	scheduler   Instantiator
	submissions Submitter
	logger      *logger.Logger
}

// NewChecklistHandler creates a new checklist handler
func NewChecklistHandler(checklists ChecklistReader, scheduler Instantiator, submissions Submitter, log *logger.Logger) *ChecklistHandler {
	return &ChecklistHandler{
		checklists:  checklists,
		scheduler:   scheduler,
		submissions: submissions,
		logger:      log,
	}
}

func (h *ChecklistHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f, p, err := checklistFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	list, total, err := h.checklists.ListChecklists(r.Context(), scope, f)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, list, p.meta(total))
}

func (h *ChecklistHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	id, err := httputil.IDParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}

	detail, err := h.checklists.GetChecklist(r.Context(), scope, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, detail)
}

// GenerateRequest triggers instantiation for one day. Omitted filters mean
// every site and category the caller administers.
type GenerateRequest struct {
	Date        *domain.Date `json:"date,omitempty"`
	SiteIDs     []int64      `json:"site_ids,omitempty" validate:"omitempty,dive,gt=0"`
	CategoryIDs []int64      `json:"category_ids,omitempty" validate:"omitempty,dive,gt=0"`
}

// Generate runs the scheduler on demand.
func (h *ChecklistHandler) Generate(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req GenerateRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Date == nil {
		fail(w, r, apperrors.Validation(map[string]string{"date": "is required"}))
		return
	}

	res, err := h.scheduler.InstantiateForDate(r.Context(), scope, *req.Date, req.SiteIDs, req.CategoryIDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, res)
}

// CreateEvent instantiates an event-driven checklist.
func (h *ChecklistHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req service.EventRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	c, err := h.scheduler.InstantiateEvent(r.Context(), scope, req)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.Created(w, c)
}

// SubmitItem records the responses for one checklist item.
func (h *ChecklistHandler) SubmitItem(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	id, err := httputil.IDParam(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var sub form.Submission
	if err := httputil.DecodeAndValidate(r, &sub); err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.submissions.SubmitItem(r.Context(), scope, id, sub)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, res)
}
