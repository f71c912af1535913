package handler

import (
	"context"
	"net/http"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/rollup"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/service"
	"github.com/kitchensafe/kitchensafe-backend/pkg/httputil"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// Defects is the defect lifecycle.
type Defects interface {
	Open(ctx context.Context, scope tenant.Scope, in service.DefectInput) (*domain.Defect, error)
	Get(ctx context.Context, scope tenant.Scope, id int64) (*domain.Defect, error)
	List(ctx context.Context, scope tenant.Scope, f domain.DefectFilter) ([]domain.Defect, int, error)
	StartProgress(ctx context.Context, scope tenant.Scope, id int64) (*domain.Defect, error)
	Close(ctx context.Context, scope tenant.Scope, id int64, notes string) (*domain.Defect, error)
	UpdateSeverity(ctx context.Context, scope tenant.Scope, id int64, sev domain.Severity) (*domain.Defect, error)
	Delete(ctx context.Context, scope tenant.Scope, id int64) error
}

// Grader computes RAG health.
type Grader interface {
	ForSite(ctx context.Context, scope tenant.Scope, siteID int64) (*rollup.SiteSnapshot, error)
	ForOrganization(ctx context.Context, scope tenant.Scope, orgID int64) (*rollup.OrgRollup, error)
}

// DefectHandler handles defect endpoints
type DefectHandler struct {
	defects Defects
	logger  *logger.Logger
}

// NewDefectHandler creates a new defect handler
func NewDefectHandler(defects Defects, log *logger.Logger) *DefectHandler {
	return &DefectHandler{defects: defects, logger: log}
}

func (h *DefectHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f, p, err := defectFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	list, total, err := h.defects.List(r.Context(), scope, f)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, list, p.meta(total))
}

func (h *DefectHandler) Get(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		d, err := h.defects.Get(r.Context(), scope, id)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, d)
	})
}

func (h *DefectHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var in service.DefectInput
	if err := httputil.DecodeAndValidate(r, &in); err != nil {
		fail(w, r, err)
		return
	}

	d, err := h.defects.Open(r.Context(), scope, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.Created(w, d)
}

func (h *DefectHandler) Start(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		d, err := h.defects.StartProgress(r.Context(), scope, id)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, d)
	})
}

// CloseRequest carries optional closure notes.
type CloseRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

func (h *DefectHandler) Close(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		var req CloseRequest
		if r.ContentLength != 0 {
			if err := httputil.DecodeAndValidate(r, &req); err != nil {
				fail(w, r, err)
				return
			}
		}
		d, err := h.defects.Close(r.Context(), scope, id, req.Notes)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, d)
	})
}

// SeverityRequest regrades a defect.
type SeverityRequest struct {
	Severity domain.Severity `json:"severity" validate:"required,oneof=low medium high critical"`
}

func (h *DefectHandler) UpdateSeverity(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		var req SeverityRequest
		if err := httputil.DecodeAndValidate(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		d, err := h.defects.UpdateSeverity(r.Context(), scope, id, req.Severity)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, d)
	})
}

func (h *DefectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		if err := h.defects.Delete(r.Context(), scope, id); err != nil {
			fail(w, r, err)
			return
		}
		httputil.NoContent(w)
	})
}

// RAGHandler handles health endpoints
type RAGHandler struct {
	rag    Grader
	logger *logger.Logger
}

// NewRAGHandler creates a new RAG handler
func NewRAGHandler(rag Grader, log *logger.Logger) *RAGHandler {
	return &RAGHandler{rag: rag, logger: log}
}

func (h *RAGHandler) Site(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		snap, err := h.rag.ForSite(r.Context(), scope, id)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, snap)
	})
}

func (h *RAGHandler) Organization(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		out, err := h.rag.ForOrganization(r.Context(), scope, id)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, out)
	})
}
