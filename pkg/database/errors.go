package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/kitchensafe/kitchensafe-backend/pkg/errors"
)

// PostgreSQL error codes the engine reacts to.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqNotNullViolation    = "23502"
	pqCheckViolation      = "23514"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique violation.
// The scheduler treats these as "already present".
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case pqCheckViolation:
		return mapCheckConstraint(pqErr)

	case pqUniqueViolation:
		return errors.ConflictingUniqueness(formatConstraintMessage(pqErr))

	case pqForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	case pqNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// Translate maps PostgreSQL errors to AppErrors and passes other errors through.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if appErr := MapPQError(err); appErr != nil {
		appErr.Err = err
		return appErr
	}
	return err
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "single_value_slot"):
		return errors.Rejection(errors.CodeTypeMismatch, map[string]string{
			"value": "exactly one value slot must be populated",
		})

	case strings.Contains(constraint, "opening_window"):
		return errors.InvalidSchema("opens_at must be before closes_at", map[string]string{
			"opens_at": "must be before closes_at",
		})

	case strings.Contains(constraint, "global_owner"):
		return errors.InvalidSchema("global categories have no owning organization", map[string]string{
			"organization_id": "must be empty for global categories and set otherwise",
		})

	case strings.Contains(constraint, "completed_le_total"):
		return errors.Conflict("completed items cannot exceed total items")

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "checklists_site_category_date"):
		return "a checklist for this site, category and date already exists"
	case strings.Contains(constraint, "organizations_slug"):
		return "an organization with this slug already exists"
	case strings.Contains(constraint, "sites_org_code"):
		return "a site with this code already exists in the organization"
	case strings.Contains(constraint, "users_email"):
		return "a user with this email already exists"
	case strings.Contains(constraint, "responses_item_field"):
		return "a response for this field already exists"
	default:
		return "a record with these values already exists"
	}
}
