package repository

import (
	"context"

	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
)

// DefectRepository stores defects.
type DefectRepository struct {
	db *database.DB
}

func NewDefectRepository(db *database.DB) *DefectRepository {
	return &DefectRepository{db: db}
}

func (r *DefectRepository) Create(ctx context.Context, d *domain.Defect) error {
	query := `
		INSERT INTO defects (
			organization_id, site_id, checklist_item_id, title, description,
			severity, status, photo_url, auto_generated, reported_by_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	if d.Status == "" {
		d.Status = domain.DefectOpen
	}
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		d.OrganizationID, d.SiteID, d.ChecklistItemID, d.Title, d.Description,
		d.Severity, d.Status, d.PhotoURL, d.AutoGenerated, d.ReportedByID,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	return database.Translate(err)
}

func (r *DefectRepository) Get(ctx context.Context, id int64) (*domain.Defect, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate loads the defect and locks its row.
func (r *DefectRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Defect, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *DefectRepository) get(ctx context.Context, id int64, lock string) (*domain.Defect, error) {
	var d domain.Defect
	if err := r.db.Conn(ctx).GetContext(ctx, &d, `SELECT * FROM defects WHERE id = $1`+lock, id); err != nil {
		return nil, notFound(err, "defect")
	}
	return &d, nil
}

// List returns one page of defects, newest first, and the total matching f.
func (r *DefectRepository) List(ctx context.Context, f domain.DefectFilter) ([]domain.Defect, int, error) {
	w := &where{}
	if f.OrganizationID != nil {
		w.add("organization_id = ?", *f.OrganizationID)
	}
	if f.SiteIDs != nil {
		w.add("site_id = ANY(?)", pq.Array(f.SiteIDs))
	}
	if f.Status != nil {
		w.add("status = ?", *f.Status)
	}
	if f.Severity != nil {
		w.add("severity = ?", *f.Severity)
	}
	if f.ChecklistID != nil {
		w.add("checklist_item_id IN (SELECT id FROM checklist_items WHERE checklist_id = ?)", *f.ChecklistID)
	}

	var total int
	if err := r.db.Conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM defects`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}

	out := []domain.Defect{}
	query := `SELECT * FROM defects` + w.String() + ` ORDER BY created_at DESC, id DESC` + limitOffset(w, f.Limit, f.Offset)
	if err := r.db.Conn(ctx).SelectContext(ctx, &out, query, w.args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update persists the mutable lifecycle columns.
func (r *DefectRepository) Update(ctx context.Context, d *domain.Defect) error {
	query := `
		UPDATE defects
		SET description = $2, severity = $3, status = $4, closed_by_id = $5, closed_at = $6
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		d.ID, d.Description, d.Severity, d.Status, d.ClosedByID, d.ClosedAt,
	).Scan(&d.UpdatedAt)
	return notFound(database.Translate(err), "defect")
}

func (r *DefectRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM defects WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err)
	}
	return expectOne(res, "defect")
}
