package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/access"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/form"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/schedule"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// TemplateService authors categories, tasks and task fields.
type TemplateService struct {
	tx     Transactor
	store  TemplateStore
	logger *logger.Logger
}

func NewTemplateService(tx Transactor, store TemplateStore, log *logger.Logger) *TemplateService {
	return &TemplateService{
		tx:     tx,
		store:  store,
		logger: log.WithComponent("templates"),
	}
}

// CategoryInput is the writable part of a category.
type CategoryInput struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description *string          `json:"description,omitempty"`
	Icon        *string          `json:"icon,omitempty" validate:"omitempty,max=100"`
	Frequency   domain.Frequency `json:"frequency" validate:"required"`
	OpensAt     *string          `json:"opens_at,omitempty"`
	ClosesAt    *string          `json:"closes_at,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`

	// Only honoured on create, and only for super admins.
	IsGlobal       bool   `json:"is_global"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
}

// TaskInput is the writable part of a task. OrderIndex is the position to
// place the task at; tasks at or after it move down. Nil appends on create
// and keeps the position on update.
type TaskInput struct {
	Name                 string   `json:"name" validate:"required,max=255"`
	Description          *string  `json:"description,omitempty"`
	OrderIndex           *int     `json:"order_index,omitempty" validate:"omitempty,min=1"`
	IsActive             *bool    `json:"is_active,omitempty"`
	AllocatedDepartments []string `json:"allocated_departments,omitempty" validate:"omitempty,dive,oneof=management boh foh"`
}

// FieldInput is the writable part of a task field. The JSON members are
// stored after validation in their canonical form.
type FieldInput struct {
	FieldType       domain.FieldType `json:"field_type" validate:"required"`
	Label           string           `json:"label" validate:"required,max=255"`
	FieldOrder      *int             `json:"field_order,omitempty" validate:"omitempty,min=1"`
	IsRequired      bool             `json:"is_required"`
	ValidationRules json.RawMessage  `json:"validation_rules,omitempty"`
	Options         json.RawMessage  `json:"options,omitempty"`
	ShowIf          json.RawMessage  `json:"show_if,omitempty"`
}

// ============================================================================
// CATEGORIES
// ============================================================================

func (s *TemplateService) CreateCategory(ctx context.Context, scope tenant.Scope, in CategoryInput) (*domain.Category, error) {
	if err := access.RequireAdmin(scope); err != nil {
		return nil, err
	}

	c := &domain.Category{IsActive: true}
	switch {
	case in.IsGlobal:
		if !scope.IsSuperAdmin() {
			return nil, apperrors.PermissionDenied("global templates can only be created by a super admin")
		}
		c.IsGlobal = true
	case scope.IsSuperAdmin():
		if in.OrganizationID == nil {
			return nil, apperrors.Validation(map[string]string{
				"organization_id": "required for non-global categories",
			})
		}
		c.OrganizationID = in.OrganizationID
	default:
		c.OrganizationID = scope.OrganizationID
	}

	if err := applyCategory(c, in); err != nil {
		return nil, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("category_id", c.ID).
		Bool("global", c.IsGlobal).
		Str("frequency", string(c.Frequency)).
		Msg("category created")
	return c, nil
}

func (s *TemplateService) UpdateCategory(ctx context.Context, scope tenant.Scope, id int64, in CategoryInput) (*domain.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorCategory(scope, c); err != nil {
		return nil, err
	}
	if err := applyCategory(c, in); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCategory removes the template. Checklists already generated from it
// keep their category name and item names.
func (s *TemplateService) DeleteCategory(ctx context.Context, scope tenant.Scope, id int64) error {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if err := access.AuthorCategory(scope, c); err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("category_id", id).Int64("user_id", scope.UserID).Msg("category deleted")
	return nil
}

func (s *TemplateService) GetCategory(ctx context.Context, scope tenant.Scope, id int64) (*domain.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanViewCategory(scope, c) {
		return nil, apperrors.NotFound("category")
	}
	return c, nil
}

// ListCategories returns the global categories and those of the scope's
// organization. Super admins see every category.
func (s *TemplateService) ListCategories(ctx context.Context, scope tenant.Scope, activeOnly bool) ([]domain.Category, error) {
	f := repository.CategoryFilter{ActiveOnly: activeOnly}
	if !scope.IsSuperAdmin() {
		f.OrganizationID = scope.OrganizationID
	}
	return s.store.ListCategories(ctx, f)
}

func applyCategory(c *domain.Category, in CategoryInput) error {
	if !in.Frequency.Valid() {
		return apperrors.Validation(map[string]string{"frequency": fmt.Sprintf("unknown frequency %q", in.Frequency)})
	}

	opens, err := normaliseTime("opens_at", in.OpensAt)
	if err != nil {
		return err
	}
	closes, err := normaliseTime("closes_at", in.ClosesAt)
	if err != nil {
		return err
	}
	if opens != nil && closes != nil && *opens >= *closes {
		return apperrors.InvalidSchema("opens_at must be before closes_at", map[string]string{
			"opens_at": "must be before closes_at",
		})
	}

	c.Name = strings.TrimSpace(in.Name)
	c.Description = in.Description
	c.Icon = in.Icon
	c.Frequency = in.Frequency
	c.OpensAt = opens
	c.ClosesAt = closes
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	return nil
}

// normaliseTime turns "8:05" into "08:05:00" so times compare as strings.
func normaliseTime(name string, v *string) (*string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	h, m, sec, err := schedule.ParseTimeOfDay(strings.TrimSpace(*v))
	if err != nil {
		return nil, apperrors.Validation(map[string]string{name: "must be HH:MM or HH:MM:SS"})
	}
	out := fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	return &out, nil
}

// ============================================================================
// TASKS
// ============================================================================

func (s *TemplateService) CreateTask(ctx context.Context, scope tenant.Scope, categoryID int64, in TaskInput) (*domain.Task, error) {
	var task *domain.Task
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.store.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if err := access.AuthorCategory(scope, c); err != nil {
			return err
		}

		t := &domain.Task{CategoryID: categoryID, IsActive: true}
		applyTask(t, in)

		if in.OrderIndex == nil {
			if t.OrderIndex, err = s.store.NextTaskIndex(ctx, categoryID); err != nil {
				return err
			}
		} else {
			t.OrderIndex = *in.OrderIndex
			if err := s.store.ShiftTasks(ctx, categoryID, t.OrderIndex, 0); err != nil {
				return err
			}
		}

		if err := s.store.CreateTask(ctx, t); err != nil {
			return err
		}
		if err := s.store.RenumberTasks(ctx, categoryID); err != nil {
			return err
		}
		task, err = s.store.GetTask(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TemplateService) UpdateTask(ctx context.Context, scope tenant.Scope, id int64, in TaskInput) (*domain.Task, error) {
	var task *domain.Task
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.authorTask(ctx, scope, id)
		if err != nil {
			return err
		}

		applyTask(t, in)
		if in.OrderIndex != nil && *in.OrderIndex != t.OrderIndex {
			t.OrderIndex = *in.OrderIndex
			if err := s.store.ShiftTasks(ctx, t.CategoryID, t.OrderIndex, t.ID); err != nil {
				return err
			}
		}

		if err := s.store.UpdateTask(ctx, t); err != nil {
			return err
		}
		if err := s.store.RenumberTasks(ctx, t.CategoryID); err != nil {
			return err
		}
		task, err = s.store.GetTask(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes the task and its fields. Items already materialised
// from it keep their snapshot name.
func (s *TemplateService) DeleteTask(ctx context.Context, scope tenant.Scope, id int64) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.authorTask(ctx, scope, id)
		if err != nil {
			return err
		}
		if err := s.store.DeleteTask(ctx, id); err != nil {
			return err
		}
		return s.store.RenumberTasks(ctx, t.CategoryID)
	})
}

func (s *TemplateService) ListTasks(ctx context.Context, scope tenant.Scope, categoryID int64) ([]domain.Task, error) {
	if _, err := s.GetCategory(ctx, scope, categoryID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, categoryID, false)
}

// authorTask loads a task and checks the scope may modify its category.
func (s *TemplateService) authorTask(ctx context.Context, scope tenant.Scope, id int64) (*domain.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCategory(ctx, t.CategoryID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorCategory(scope, c); err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NotFound("task")
		}
		return nil, err
	}
	return t, nil
}

func applyTask(t *domain.Task, in TaskInput) {
	t.Name = strings.TrimSpace(in.Name)
	t.Description = in.Description
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	if len(in.AllocatedDepartments) > 0 {
		t.AllocatedDepartments = pq.StringArray(in.AllocatedDepartments)
	} else {
		t.AllocatedDepartments = nil
	}
}

// ============================================================================
// FIELDS
// ============================================================================

// CreateField adds a field to a task. The task's whole field set is
// validated with the new field in place before anything is written.
func (s *TemplateService) CreateField(ctx context.Context, scope tenant.Scope, taskID int64, in FieldInput) (*domain.TaskField, error) {
	var field *domain.TaskField
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.authorTask(ctx, scope, taskID); err != nil {
			return err
		}
		existing, err := s.store.ListFields(ctx, taskID)
		if err != nil {
			return err
		}

		tf := &domain.TaskField{TaskID: taskID}
		if in.FieldOrder == nil {
			if tf.FieldOrder, err = s.store.NextFieldOrder(ctx, taskID); err != nil {
				return err
			}
		} else {
			tf.FieldOrder = *in.FieldOrder
		}
		if err := applyField(tf, in, existing); err != nil {
			return err
		}

		if err := s.store.CreateField(ctx, tf); err != nil {
			return err
		}
		field = tf
		return s.store.SyncDynamicForm(ctx, taskID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int64("field_id", field.ID).Int64("task_id", taskID).Msg("task field created")
	return field, nil
}

func (s *TemplateService) UpdateField(ctx context.Context, scope tenant.Scope, id int64, in FieldInput) (*domain.TaskField, error) {
	var field *domain.TaskField
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		tf, err := s.store.GetField(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.authorTask(ctx, scope, tf.TaskID); err != nil {
			return err
		}
		all, err := s.store.ListFields(ctx, tf.TaskID)
		if err != nil {
			return err
		}

		others := make([]domain.TaskField, 0, len(all))
		for _, f := range all {
			if f.ID != id {
				others = append(others, f)
			}
		}
		if in.FieldOrder != nil {
			tf.FieldOrder = *in.FieldOrder
		}
		if err := applyField(tf, in, others); err != nil {
			return err
		}

		field = tf
		return s.store.UpdateField(ctx, tf)
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}

// DeleteField removes a field unless another field's show_if or repeat
// count still points at it.
func (s *TemplateService) DeleteField(ctx context.Context, scope tenant.Scope, id int64) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		tf, err := s.store.GetField(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.authorTask(ctx, scope, tf.TaskID); err != nil {
			return err
		}
		all, err := s.store.ListFields(ctx, tf.TaskID)
		if err != nil {
			return err
		}

		remaining := make([]domain.TaskField, 0, len(all))
		for _, f := range all {
			if f.ID != id {
				remaining = append(remaining, f)
			}
		}
		decoded, err := form.DecodeAll(remaining)
		if err != nil {
			return err
		}
		if err := form.ValidateSchema(decoded); err != nil {
			return apperrors.InvalidSchema(
				fmt.Sprintf("field %d is referenced by other fields of the task", id),
				detailsOf(err))
		}

		if err := s.store.DeleteField(ctx, id); err != nil {
			return err
		}
		return s.store.SyncDynamicForm(ctx, tf.TaskID)
	})
}

func (s *TemplateService) ListFields(ctx context.Context, scope tenant.Scope, taskID int64) ([]domain.TaskField, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetCategory(ctx, scope, t.CategoryID); err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NotFound("task")
		}
		return nil, err
	}
	return s.store.ListFields(ctx, taskID)
}

// applyField fills tf from in, validates the task's field set with tf in
// it, and rewrites the JSON columns canonically.
func applyField(tf *domain.TaskField, in FieldInput, others []domain.TaskField) error {
	tf.FieldType = in.FieldType
	tf.Label = strings.TrimSpace(in.Label)
	tf.IsRequired = in.IsRequired
	tf.ValidationRules = rawColumn(in.ValidationRules)
	tf.Options = rawColumn(in.Options)
	tf.ShowIf = rawColumn(in.ShowIf)

	candidate, err := form.Decode(*tf)
	if err != nil {
		return err
	}
	fields, err := form.DecodeAll(others)
	if err != nil {
		return err
	}
	if err := form.ValidateSchema(append(fields, candidate)); err != nil {
		return err
	}

	rules, options, showIf, err := candidate.Columns()
	if err != nil {
		return fmt.Errorf("encode field columns: %w", err)
	}
	tf.ValidationRules, tf.Options, tf.ShowIf = rules, options, showIf
	return nil
}

func rawColumn(raw json.RawMessage) *types.JSONText {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	j := types.JSONText(trimmed)
	return &j
}

func detailsOf(err error) map[string]string {
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}
