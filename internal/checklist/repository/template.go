package repository

import (
	"context"

	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
)

// TemplateRepository stores categories, tasks and task fields.
type TemplateRepository struct {
	db *database.DB
}

func NewTemplateRepository(db *database.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// ============================================================================
// CATEGORIES
// ============================================================================

// CategoryFilter narrows ListCategories. With OrganizationID set, the
// organization's own categories and every global category match.
type CategoryFilter struct {
	OrganizationID *int64
	IDs            []int64
	ActiveOnly     bool
}

func (r *TemplateRepository) CreateCategory(ctx context.Context, c *domain.Category) error {
	query := `
		INSERT INTO categories (organization_id, name, description, icon, frequency, opens_at, closes_at, is_global, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		c.OrganizationID, c.Name, c.Description, c.Icon, c.Frequency,
		c.OpensAt, c.ClosesAt, c.IsGlobal, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return database.Translate(err)
}

func (r *TemplateRepository) UpdateCategory(ctx context.Context, c *domain.Category) error {
	query := `
		UPDATE categories
		SET name = $2, description = $3, icon = $4, frequency = $5, opens_at = $6, closes_at = $7, is_active = $8
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		c.ID, c.Name, c.Description, c.Icon, c.Frequency, c.OpensAt, c.ClosesAt, c.IsActive,
	).Scan(&c.UpdatedAt)
	return notFound(database.Translate(err), "category")
}

// DeleteCategory removes a category with its tasks and fields. Checklists
// already generated keep their snapshots.
func (r *TemplateRepository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err)
	}
	return expectOne(res, "category")
}

func (r *TemplateRepository) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	if err := r.db.Conn(ctx).GetContext(ctx, &c, `SELECT * FROM categories WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "category")
	}
	return &c, nil
}

func (r *TemplateRepository) ListCategories(ctx context.Context, f CategoryFilter) ([]domain.Category, error) {
	w := &where{}
	if f.OrganizationID != nil {
		w.add("(is_global OR organization_id = ?)", *f.OrganizationID)
	}
	if f.IDs != nil {
		w.add("id = ANY(?)", pq.Array(f.IDs))
	}
	if f.ActiveOnly {
		w.add("is_active")
	}

	out := []domain.Category{}
	query := `SELECT * FROM categories` + w.String() + ` ORDER BY is_global DESC, name, id`
	if err := r.db.Conn(ctx).SelectContext(ctx, &out, query, w.args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================================
// TASKS
// ============================================================================

func (r *TemplateRepository) CreateTask(ctx context.Context, t *domain.Task) error {
	query := `
		INSERT INTO tasks (category_id, name, description, order_index, is_active, allocated_departments)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, has_dynamic_form, created_at, updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		t.CategoryID, t.Name, t.Description, t.OrderIndex, t.IsActive, t.AllocatedDepartments,
	).Scan(&t.ID, &t.HasDynamicForm, &t.CreatedAt, &t.UpdatedAt)
	return database.Translate(err)
}

func (r *TemplateRepository) UpdateTask(ctx context.Context, t *domain.Task) error {
	query := `
		UPDATE tasks
		SET name = $2, description = $3, order_index = $4, is_active = $5, allocated_departments = $6
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		t.ID, t.Name, t.Description, t.OrderIndex, t.IsActive, t.AllocatedDepartments,
	).Scan(&t.UpdatedAt)
	return notFound(database.Translate(err), "task")
}

func (r *TemplateRepository) DeleteTask(ctx context.Context, id int64) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err)
	}
	return expectOne(res, "task")
}

func (r *TemplateRepository) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	var t domain.Task
	if err := r.db.Conn(ctx).GetContext(ctx, &t, `SELECT * FROM tasks WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "task")
	}
	return &t, nil
}

// ListTasks returns a category's tasks in order.
func (r *TemplateRepository) ListTasks(ctx context.Context, categoryID int64, activeOnly bool) ([]domain.Task, error) {
	query := `SELECT * FROM tasks WHERE category_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY order_index, id`

	out := []domain.Task{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &out, query, categoryID); err != nil {
		return nil, err
	}
	return out, nil
}

// NextTaskIndex is one past the highest order index in the category.
func (r *TemplateRepository) NextTaskIndex(ctx context.Context, categoryID int64) (int, error) {
	var next int
	err := r.db.Conn(ctx).GetContext(ctx, &next,
		`SELECT COALESCE(MAX(order_index), 0) + 1 FROM tasks WHERE category_id = $1`, categoryID)
	return next, err
}

// ShiftTasks moves every task at or after index down by one to open a slot.
func (r *TemplateRepository) ShiftTasks(ctx context.Context, categoryID int64, index int, exceptID int64) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE tasks SET order_index = order_index + 1
		WHERE category_id = $1 AND order_index >= $2 AND id <> $3`,
		categoryID, index, exceptID)
	return err
}

// RenumberTasks rewrites order indices to 1..n keeping the current order.
func (r *TemplateRepository) RenumberTasks(ctx context.Context, categoryID int64) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE tasks t SET order_index = ranked.position
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY order_index, id) AS position
			FROM tasks WHERE category_id = $1
		) ranked
		WHERE t.id = ranked.id AND t.order_index <> ranked.position`,
		categoryID)
	return err
}

// SyncDynamicForm sets has_dynamic_form from whether the task has fields.
func (r *TemplateRepository) SyncDynamicForm(ctx context.Context, taskID int64) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE tasks SET has_dynamic_form = EXISTS (SELECT 1 FROM task_fields WHERE task_id = $1)
		WHERE id = $1`,
		taskID)
	return err
}

// ============================================================================
// FIELDS
// ============================================================================

func (r *TemplateRepository) CreateField(ctx context.Context, f *domain.TaskField) error {
	query := `
		INSERT INTO task_fields (task_id, field_type, label, field_order, is_required, validation_rules, options, show_if)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		f.TaskID, f.FieldType, f.Label, f.FieldOrder, f.IsRequired, f.ValidationRules, f.Options, f.ShowIf,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	return database.Translate(err)
}

func (r *TemplateRepository) UpdateField(ctx context.Context, f *domain.TaskField) error {
	query := `
		UPDATE task_fields
		SET field_type = $2, label = $3, field_order = $4, is_required = $5,
			validation_rules = $6, options = $7, show_if = $8
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		f.ID, f.FieldType, f.Label, f.FieldOrder, f.IsRequired, f.ValidationRules, f.Options, f.ShowIf,
	).Scan(&f.UpdatedAt)
	return notFound(database.Translate(err), "field")
}

func (r *TemplateRepository) DeleteField(ctx context.Context, id int64) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM task_fields WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err)
	}
	return expectOne(res, "field")
}

func (r *TemplateRepository) GetField(ctx context.Context, id int64) (*domain.TaskField, error) {
	var f domain.TaskField
	if err := r.db.Conn(ctx).GetContext(ctx, &f, `SELECT * FROM task_fields WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "field")
	}
	return &f, nil
}

// ListFields returns a task's fields in order.
func (r *TemplateRepository) ListFields(ctx context.Context, taskID int64) ([]domain.TaskField, error) {
	out := []domain.TaskField{}
	err := r.db.Conn(ctx).SelectContext(ctx, &out,
		`SELECT * FROM task_fields WHERE task_id = $1 ORDER BY field_order, id`, taskID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NextFieldOrder is one past the highest field order in the task.
func (r *TemplateRepository) NextFieldOrder(ctx context.Context, taskID int64) (int, error) {
	var next int
	err := r.db.Conn(ctx).GetContext(ctx, &next,
		`SELECT COALESCE(MAX(field_order), 0) + 1 FROM task_fields WHERE task_id = $1`, taskID)
	return next, err
}
