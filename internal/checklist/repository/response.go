package repository

import (
	"context"

	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
)

// ResponseRepository stores per-field answers to checklist items.
type ResponseRepository struct {
	db *database.DB
}

func NewResponseRepository(db *database.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// ListByItem returns the stored responses of an item.
func (r *ResponseRepository) ListByItem(ctx context.Context, itemID int64) ([]domain.TaskFieldResponse, error) {
	out := []domain.TaskFieldResponse{}
	err := r.db.Conn(ctx).SelectContext(ctx, &out,
		`SELECT * FROM task_field_responses WHERE checklist_item_id = $1 ORDER BY id`, itemID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert writes the response for (item, field), replacing every value slot.
// An existing auto_defect_id is never cleared or replaced.
func (r *ResponseRepository) Upsert(ctx context.Context, resp *domain.TaskFieldResponse) error {
	query := `
		INSERT INTO task_field_responses (
			checklist_item_id, task_field_id, field_label, field_type,
			text_value, number_value, boolean_value, json_value, file_url, auto_defect_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (checklist_item_id, task_field_id) DO UPDATE SET
			field_label = EXCLUDED.field_label,
			field_type = EXCLUDED.field_type,
			text_value = EXCLUDED.text_value,
			number_value = EXCLUDED.number_value,
			boolean_value = EXCLUDED.boolean_value,
			json_value = EXCLUDED.json_value,
			file_url = EXCLUDED.file_url,
			auto_defect_id = COALESCE(task_field_responses.auto_defect_id, EXCLUDED.auto_defect_id)
		RETURNING id, auto_defect_id, created_at, updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		resp.ChecklistItemID, resp.TaskFieldID, resp.FieldLabel, resp.FieldType,
		resp.TextValue, resp.NumberValue, resp.BooleanValue, resp.JSONValue, resp.FileURL,
		resp.AutoDefectID,
	).Scan(&resp.ID, &resp.AutoDefectID, &resp.CreatedAt, &resp.UpdatedAt)
	return database.Translate(err)
}

// DeleteStale removes an item's responses to fields outside keep. Responses
// that produced a defect are retained so the linkage survives.
func (r *ResponseRepository) DeleteStale(ctx context.Context, itemID int64, keep []int64) (int64, error) {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `
		DELETE FROM task_field_responses
		WHERE checklist_item_id = $1 AND auto_defect_id IS NULL
			AND (task_field_id IS NULL OR NOT (task_field_id = ANY($2)))`,
		itemID, pq.Array(keep))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
