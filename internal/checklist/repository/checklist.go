package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
)

// ChecklistRepository stores checklist instances and their items.
type ChecklistRepository struct {
	db *database.DB
}

func NewChecklistRepository(db *database.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

const checklistColumns = `
	c.*, s.organization_id, cat.frequency, to_char(cat.opens_at, 'HH24:MI') AS opens_at
	FROM checklists c
	JOIN sites s ON s.id = c.site_id
	LEFT JOIN categories cat ON cat.id = c.category_id`

const itemColumns = `
	i.*, COALESCE(t.allocated_departments, '{}') AS allocated_departments,
	COALESCE(t.has_dynamic_form, FALSE) AS has_dynamic_form
	FROM checklist_items i
	LEFT JOIN tasks t ON t.id = i.task_id`

// InsertScheduled creates a scheduled checklist unless one already exists for
// the same site, category and date. created is false when it already existed.
func (r *ChecklistRepository) InsertScheduled(ctx context.Context, c *domain.Checklist) (created bool, err error) {
	query := `
		INSERT INTO checklists (site_id, category_id, category_name, checklist_date, status, is_event)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (site_id, category_id, checklist_date) WHERE NOT is_event DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err = r.db.Conn(ctx).QueryRowxContext(ctx, query,
		c.SiteID, c.CategoryID, c.CategoryName, c.ChecklistDate, domain.StatusPending,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, database.Translate(err)
	}
	c.Status = domain.StatusPending
	return true, nil
}

// InsertEvent creates an event-driven checklist. Several may share a date.
func (r *ChecklistRepository) InsertEvent(ctx context.Context, c *domain.Checklist) error {
	query := `
		INSERT INTO checklists (site_id, category_id, category_name, checklist_date, status, is_event, event_type, event_metadata)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		c.SiteID, c.CategoryID, c.CategoryName, c.ChecklistDate, domain.StatusPending,
		c.EventType, c.EventMetadata,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return database.Translate(err)
	}
	c.Status = domain.StatusPending
	c.IsEvent = true
	return nil
}

// MaterialiseItems copies the category's active tasks into the checklist and
// records the resulting item count.
func (r *ChecklistRepository) MaterialiseItems(ctx context.Context, checklistID, categoryID int64) (int, error) {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO checklist_items (checklist_id, task_id, item_name, order_index)
		SELECT $1, id, name, order_index FROM tasks
		WHERE category_id = $2 AND is_active
		ORDER BY order_index, id`,
		checklistID, categoryID)
	if err != nil {
		return 0, database.Translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE checklists SET total_items = $2 WHERE id = $1`, checklistID, n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *ChecklistRepository) Get(ctx context.Context, id int64) (*domain.Checklist, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate loads the checklist and locks its row for the surrounding transaction.
func (r *ChecklistRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Checklist, error) {
	return r.get(ctx, id, " FOR UPDATE OF c")
}

func (r *ChecklistRepository) get(ctx context.Context, id int64, lock string) (*domain.Checklist, error) {
	var c domain.Checklist
	query := `SELECT` + checklistColumns + ` WHERE c.id = $1` + lock
	if err := r.db.Conn(ctx).GetContext(ctx, &c, query, id); err != nil {
		return nil, notFound(err, "checklist")
	}
	return &c, nil
}

// List returns one page of checklists and the total number matching f.
func (r *ChecklistRepository) List(ctx context.Context, f domain.ChecklistFilter) ([]domain.Checklist, int, error) {
	w := &where{}
	if f.OrganizationID != nil {
		w.add("s.organization_id = ?", *f.OrganizationID)
	}
	if f.SiteIDs != nil {
		w.add("c.site_id = ANY(?)", pq.Array(f.SiteIDs))
	}
	if f.CategoryID != nil {
		w.add("c.category_id = ?", *f.CategoryID)
	}
	if f.Status != nil {
		statusCondition(w, *f.Status, f.Today)
	}
	if f.From != nil {
		w.add("c.checklist_date >= ?", *f.From)
	}
	if f.To != nil {
		w.add("c.checklist_date <= ?", *f.To)
	}
	if f.IsEvent != nil {
		w.add("c.is_event = ?", *f.IsEvent)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM checklists c JOIN sites s ON s.id = c.site_id` + w.String()
	if err := r.db.Conn(ctx).GetContext(ctx, &total, countQuery, w.args...); err != nil {
		return nil, 0, err
	}

	out := []domain.Checklist{}
	query := `SELECT` + checklistColumns + w.String() +
		` ORDER BY c.checklist_date DESC, c.category_name, c.id` + limitOffset(w, f.Limit, f.Offset)
	if err := r.db.Conn(ctx).SelectContext(ctx, &out, query, w.args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// statusCondition matches the derived status when today is known: pending
// and in-progress rows dated before today read as overdue.
func statusCondition(w *where, status domain.ChecklistStatus, today *domain.Date) {
	if today == nil {
		w.add("c.status = ?", status)
		return
	}
	switch status {
	case domain.StatusOverdue:
		w.add("(c.status = 'overdue' OR (c.checklist_date < ? AND c.status IN ('pending', 'in_progress')))", *today)
	case domain.StatusPending, domain.StatusInProgress:
		w.add("c.status = ? AND c.checklist_date >= ?", status, *today)
	default:
		w.add("c.status = ?", status)
	}
}

// ListItems returns a checklist's items in order.
func (r *ChecklistRepository) ListItems(ctx context.Context, checklistID int64) ([]domain.ChecklistItem, error) {
	out := []domain.ChecklistItem{}
	query := `SELECT` + itemColumns + ` WHERE i.checklist_id = $1 ORDER BY i.order_index, i.id`
	if err := r.db.Conn(ctx).SelectContext(ctx, &out, query, checklistID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ChecklistRepository) GetItem(ctx context.Context, id int64) (*domain.ChecklistItem, error) {
	return r.getItem(ctx, id, "")
}

// GetItemForUpdate loads the item and locks its row.
func (r *ChecklistRepository) GetItemForUpdate(ctx context.Context, id int64) (*domain.ChecklistItem, error) {
	return r.getItem(ctx, id, " FOR UPDATE OF i")
}

func (r *ChecklistRepository) getItem(ctx context.Context, id int64, lock string) (*domain.ChecklistItem, error) {
	var it domain.ChecklistItem
	query := `SELECT` + itemColumns + ` WHERE i.id = $1` + lock
	if err := r.db.Conn(ctx).GetContext(ctx, &it, query, id); err != nil {
		return nil, notFound(err, "checklist item")
	}
	return &it, nil
}

// CompleteItem marks an item done. Notes and photo are replaced only when given.
func (r *ChecklistRepository) CompleteItem(ctx context.Context, it *domain.ChecklistItem) error {
	query := `
		UPDATE checklist_items
		SET is_completed = TRUE, completed_at = $2, completed_by_id = $3,
			notes = COALESCE($4, notes), photo_url = COALESCE($5, photo_url), item_data = $6
		WHERE id = $1
		RETURNING notes, photo_url, updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		it.ID, it.CompletedAt, it.CompletedByID, it.Notes, it.PhotoURL, it.ItemData,
	).Scan(&it.Notes, &it.PhotoURL, &it.UpdatedAt)
	if err != nil {
		return notFound(database.Translate(err), "checklist item")
	}
	it.IsCompleted = true
	return nil
}

// CountItems returns the total and completed item counts of a checklist.
func (r *ChecklistRepository) CountItems(ctx context.Context, checklistID int64) (total, completed int, err error) {
	row := r.db.Conn(ctx).QueryRowxContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_completed)
		FROM checklist_items WHERE checklist_id = $1`,
		checklistID)
	err = row.Scan(&total, &completed)
	return total, completed, err
}

// UpdateRollup persists the counters and derived status of a checklist.
func (r *ChecklistRepository) UpdateRollup(ctx context.Context, c *domain.Checklist) error {
	query := `
		UPDATE checklists
		SET total_items = $2, completed_items = $3, status = $4, completed_by_id = $5, completed_at = $6
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		c.ID, c.TotalItems, c.CompletedItems, c.Status, c.CompletedByID, c.CompletedAt,
	).Scan(&c.UpdatedAt)
	return notFound(database.Translate(err), "checklist")
}

// MarkOverdue flips every unfinished checklist dated before today to overdue
// and returns how many changed.
func (r *ChecklistRepository) MarkOverdue(ctx context.Context, today domain.Date) (int64, error) {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE checklists SET status = 'overdue'
		WHERE checklist_date < $1 AND status IN ('pending', 'in_progress')`,
		today)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
