package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// Frequency is how often a category is instantiated.
type Frequency string

const (
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyQuarterly   Frequency = "quarterly"
	FrequencyPerBatch    Frequency = "per_batch"
	FrequencyPerDelivery Frequency = "per_delivery"
	FrequencyAsNeeded    Frequency = "as_needed"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly,
		FrequencyPerBatch, FrequencyPerDelivery, FrequencyAsNeeded:
		return true
	}
	return false
}

// IsEvent reports whether f is only instantiated by events, never by the
// daily generator.
func (f Frequency) IsEvent() bool {
	switch f {
	case FrequencyPerBatch, FrequencyPerDelivery, FrequencyAsNeeded:
		return true
	}
	return false
}

// Category is a checklist template.
type Category struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID *int64    `json:"organization_id,omitempty" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Description    *string   `json:"description,omitempty" db:"description"`
	Icon           *string   `json:"icon,omitempty" db:"icon"`
	Frequency      Frequency `json:"frequency" db:"frequency"`
	OpensAt        *string   `json:"opens_at,omitempty" db:"opens_at"`
	ClosesAt       *string   `json:"closes_at,omitempty" db:"closes_at"`
	IsGlobal       bool      `json:"is_global" db:"is_global"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Task is one checkable unit of a category.
type Task struct {
	ID                   int64          `json:"id" db:"id"`
	CategoryID           int64          `json:"category_id" db:"category_id"`
	Name                 string         `json:"name" db:"name"`
	Description          *string        `json:"description,omitempty" db:"description"`
	OrderIndex           int            `json:"order_index" db:"order_index"`
	IsActive             bool           `json:"is_active" db:"is_active"`
	HasDynamicForm       bool           `json:"has_dynamic_form" db:"has_dynamic_form"`
	AllocatedDepartments pq.StringArray `json:"allocated_departments" db:"allocated_departments"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
}

// Departments returns the allocated departments as typed values.
func (t *Task) Departments() []tenant.Department {
	return Departments(t.AllocatedDepartments)
}

// Departments converts a stored department array.
func Departments(raw []string) []tenant.Department {
	if len(raw) == 0 {
		return nil
	}
	out := make([]tenant.Department, len(raw))
	for i, d := range raw {
		out[i] = tenant.Department(d)
	}
	return out
}

// FieldType is the input kind of a task field.
type FieldType string

const (
	FieldNumber         FieldType = "number"
	FieldText           FieldType = "text"
	FieldTemperature    FieldType = "temperature"
	FieldYesNo          FieldType = "yes_no"
	FieldDropdown       FieldType = "dropdown"
	FieldPhoto          FieldType = "photo"
	FieldRepeatingGroup FieldType = "repeating_group"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldNumber, FieldText, FieldTemperature, FieldYesNo, FieldDropdown, FieldPhoto, FieldRepeatingGroup:
		return true
	}
	return false
}

// IsNumeric reports whether the field takes a number.
func (t FieldType) IsNumeric() bool {
	return t == FieldNumber || t == FieldTemperature
}

// TaskField is one node of a task's dynamic form. The JSON columns hold the
// validation rules, dropdown options and visibility predicate as stored; the
// form package decodes them.
type TaskField struct {
	ID              int64           `json:"id" db:"id"`
	TaskID          int64           `json:"task_id" db:"task_id"`
	FieldType       FieldType       `json:"field_type" db:"field_type"`
	Label           string          `json:"label" db:"label"`
	FieldOrder      int             `json:"field_order" db:"field_order"`
	IsRequired      bool            `json:"is_required" db:"is_required"`
	ValidationRules *types.JSONText `json:"validation_rules,omitempty" db:"validation_rules"`
	Options         *types.JSONText `json:"options,omitempty" db:"options"`
	ShowIf          *types.JSONText `json:"show_if,omitempty" db:"show_if"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}
