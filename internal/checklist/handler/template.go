package handler

import (
	"context"
	"net/http"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/service"
	"github.com/kitchensafe/kitchensafe-backend/pkg/httputil"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// Templates is the template store.
type Templates interface {
	CreateCategory(ctx context.Context, scope tenant.Scope, in service.CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, scope tenant.Scope, id int64, in service.CategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, scope tenant.Scope, id int64) error
	GetCategory(ctx context.Context, scope tenant.Scope, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context, scope tenant.Scope, activeOnly bool) ([]domain.Category, error)

	CreateTask(ctx context.Context, scope tenant.Scope, categoryID int64, in service.TaskInput) (*domain.Task, error)
	UpdateTask(ctx context.Context, scope tenant.Scope, id int64, in service.TaskInput) (*domain.Task, error)
	DeleteTask(ctx context.Context, scope tenant.Scope, id int64) error
	ListTasks(ctx context.Context, scope tenant.Scope, categoryID int64) ([]domain.Task, error)

	CreateField(ctx context.Context, scope tenant.Scope, taskID int64, in service.FieldInput) (*domain.TaskField, error)
	UpdateField(ctx context.Context, scope tenant.Scope, id int64, in service.FieldInput) (*domain.TaskField, error)
	DeleteField(ctx context.Context, scope tenant.Scope, id int64) error
	ListFields(ctx context.Context, scope tenant.Scope, taskID int64) ([]domain.TaskField, error)
}

// TemplateHandler handles category, task and field endpoints
type TemplateHandler struct {
	templates Templates
	logger    *logger.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(templates Templates, log *logger.Logger) *TemplateHandler {
	return &TemplateHandler{templates: templates, logger: log}
}

// scoped runs fn with the caller's scope and the {id} URL parameter.
func scoped(w http.ResponseWriter, r *http.Request, fn func(scope tenant.Scope, id int64)) {
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
	fn(scope, id)
}

// Category handlers

func (h *TemplateHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	activeOnly, err := boolQuery(r, "active")
	if err != nil {
		fail(w, r, err)
		return
	}

	list, err := h.templates.ListCategories(r.Context(), scope, activeOnly != nil && *activeOnly)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, list)
}

func (h *TemplateHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		c, err := h.templates.GetCategory(r.Context(), scope, id)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, c)
	})
}

func (h *TemplateHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var in service.CategoryInput
	if err := httputil.DecodeAndValidate(r, &in); err != nil {
		fail(w, r, err)
		return
	}

	c, err := h.templates.CreateCategory(r.Context(), scope, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	httputil.Created(w, c)
}

func (h *TemplateHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		var in service.CategoryInput
		if err := httputil.DecodeAndValidate(r, &in); err != nil {
			fail(w, r, err)
			return
		}
		c, err := h.templates.UpdateCategory(r.Context(), scope, id, in)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, c)
	})
}

func (h *TemplateHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		if err := h.templates.DeleteCategory(r.Context(), scope, id); err != nil {
			fail(w, r, err)
			return
		}
		httputil.NoContent(w)
	})
}

// Task handlers

func (h *TemplateHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, categoryID int64) {
		tasks, err := h.templates.ListTasks(r.Context(), scope, categoryID)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, tasks)
	})
}

func (h *TemplateHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, categoryID int64) {
		var in service.TaskInput
		if err := httputil.DecodeAndValidate(r, &in); err != nil {
			fail(w, r, err)
			return
		}
		t, err := h.templates.CreateTask(r.Context(), scope, categoryID, in)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.Created(w, t)
	})
}

func (h *TemplateHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		var in service.TaskInput
		if err := httputil.DecodeAndValidate(r, &in); err != nil {
			fail(w, r, err)
			return
		}
		t, err := h.templates.UpdateTask(r.Context(), scope, id, in)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, t)
	})
}

func (h *TemplateHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		if err := h.templates.DeleteTask(r.Context(), scope, id); err != nil {
			fail(w, r, err)
			return
		}
		httputil.NoContent(w)
	})
}

// Field handlers

func (h *TemplateHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, taskID int64) {
		fields, err := h.templates.ListFields(r.Context(), scope, taskID)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, fields)
	})
}

func (h *TemplateHandler) CreateField(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, taskID int64) {
		var in service.FieldInput
		if err := httputil.DecodeAndValidate(r, &in); err != nil {
			fail(w, r, err)
			return
		}
		f, err := h.templates.CreateField(r.Context(), scope, taskID, in)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.Created(w, f)
	})
}

func (h *TemplateHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		var in service.FieldInput
		if err := httputil.DecodeAndValidate(r, &in); err != nil {
			fail(w, r, err)
			return
		}
		f, err := h.templates.UpdateField(r.Context(), scope, id, in)
		if err != nil {
			fail(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, f)
	})
}

func (h *TemplateHandler) DeleteField(w http.ResponseWriter, r *http.Request) {
	scoped(w, r, func(scope tenant.Scope, id int64) {
		if err := h.templates.DeleteField(r.Context(), scope, id); err != nil {
			fail(w, r, err)
			return
		}
		httputil.NoContent(w)
	})
}
