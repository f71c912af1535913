package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// ChecklistStatus is the derived state of a checklist instance.
type ChecklistStatus string

const (
	StatusPending    ChecklistStatus = "pending"
	StatusInProgress ChecklistStatus = "in_progress"
	StatusCompleted  ChecklistStatus = "completed"
	StatusOverdue    ChecklistStatus = "overdue"
)

// Valid reports whether s is a known status.
func (s ChecklistStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// Checklist is one materialised occurrence of a category at one site.
type Checklist struct {
	ID             int64           `json:"id" db:"id"`
	SiteID         int64           `json:"site_id" db:"site_id"`
	OrganizationID int64           `json:"organization_id" db:"organization_id"`
	CategoryID     *int64          `json:"category_id,omitempty" db:"category_id"`
	CategoryName   string          `json:"category_name" db:"category_name"`
	Frequency      *Frequency      `json:"frequency,omitempty" db:"frequency"`
	OpensAt        *string         `json:"opens_at,omitempty" db:"opens_at"`
	ChecklistDate  Date            `json:"checklist_date" db:"checklist_date"`
	Status         ChecklistStatus `json:"status" db:"status"`
	TotalItems     int             `json:"total_items" db:"total_items"`
	CompletedItems int             `json:"completed_items" db:"completed_items"`
	CompletedByID  *int64          `json:"completed_by_id,omitempty" db:"completed_by_id"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	IsEvent        bool            `json:"is_event" db:"is_event"`
	EventType      *string         `json:"event_type,omitempty" db:"event_type"`
	EventMetadata  *types.JSONText `json:"event_metadata,omitempty" db:"event_metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// CompletionPercentage is completed/total as a percentage, 0 for an empty checklist.
func (c *Checklist) CompletionPercentage() float64 {
	if c.TotalItems <= 0 {
		return 0
	}
	return float64(c.CompletedItems) / float64(c.TotalItems) * 100
}

// ChecklistItem is one task's appearance in one checklist.
type ChecklistItem struct {
	ID            int64           `json:"id" db:"id"`
	ChecklistID   int64           `json:"checklist_id" db:"checklist_id"`
	TaskID        *int64          `json:"task_id,omitempty" db:"task_id"`
	ItemName      string          `json:"item_name" db:"item_name"`
	OrderIndex    int             `json:"order_index" db:"order_index"`
	IsCompleted   bool            `json:"is_completed" db:"is_completed"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CompletedByID *int64          `json:"completed_by_id,omitempty" db:"completed_by_id"`
	Notes         *string         `json:"notes,omitempty" db:"notes"`
	ItemData      *types.JSONText `json:"item_data,omitempty" db:"item_data"`
	PhotoURL      *string         `json:"photo_url,omitempty" db:"photo_url"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`

	// Joined from the source task; empty when the task was deleted.
	AllocatedDepartments pq.StringArray `json:"allocated_departments,omitempty" db:"allocated_departments"`
	HasDynamicForm       bool           `json:"has_dynamic_form" db:"has_dynamic_form"`
}

// TaskFieldResponse is the stored answer to one field of one item. The five
// value columns are a storage detail; callers use Value.
type TaskFieldResponse struct {
	ID              int64           `json:"id" db:"id"`
	ChecklistItemID int64           `json:"checklist_item_id" db:"checklist_item_id"`
	TaskFieldID     *int64          `json:"task_field_id,omitempty" db:"task_field_id"`
	FieldLabel      string          `json:"field_label" db:"field_label"`
	FieldType       FieldType       `json:"field_type" db:"field_type"`
	TextValue       *string         `json:"-" db:"text_value"`
	NumberValue     *float64        `json:"-" db:"number_value"`
	BooleanValue    *bool           `json:"-" db:"boolean_value"`
	JSONValue       *types.JSONText `json:"-" db:"json_value"`
	FileURL         *string         `json:"-" db:"file_url"`
	AutoDefectID    *int64          `json:"auto_defect_id,omitempty" db:"auto_defect_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Value reassembles the tagged value from the storage slots.
func (r *TaskFieldResponse) Value() FieldValue {
	return FieldValueFromSlots(r.FieldType, Slots{
		Text:   r.TextValue,
		Number: r.NumberValue,
		Bool:   r.BooleanValue,
		JSON:   r.JSONValue,
		File:   r.FileURL,
	})
}

// SetValue spreads v over the storage slots.
func (r *TaskFieldResponse) SetValue(v FieldValue) {
	s := v.Slots()
	r.TextValue, r.NumberValue, r.BooleanValue, r.JSONValue, r.FileURL = s.Text, s.Number, s.Bool, s.JSON, s.File
}

// MarshalJSON renders the response with its tagged value.
func (r TaskFieldResponse) MarshalJSON() ([]byte, error) {
	type plain TaskFieldResponse
	return marshalWithValue(plain(r), r.Value())
}
