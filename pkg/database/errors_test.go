package database

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/kitchensafe/kitchensafe-backend/pkg/errors"
)

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantNil  bool
	}{
		{
			name:     "unique violation on checklist key",
			err:      &pq.Error{Code: "23505", Constraint: "checklists_site_category_date_key"},
			wantCode: errors.CodeConflictingUniqueness,
		},
		{
			name:     "check violation on value slots",
			err:      &pq.Error{Code: "23514", Constraint: "task_field_responses_single_value_slot"},
			wantCode: errors.CodeTypeMismatch,
		},
		{
			name:     "check violation on opening window",
			err:      &pq.Error{Code: "23514", Constraint: "categories_opening_window"},
			wantCode: errors.CodeInvalidSchema,
		},
		{
			name:     "foreign key violation",
			err:      &pq.Error{Code: "23503"},
			wantCode: errors.CodeBadRequest,
		},
		{
			name:     "not null violation",
			err:      &pq.Error{Code: "23502", Column: "name"},
			wantCode: errors.CodeValidation,
		},
		{
			name:    "unrelated pq code",
			err:     &pq.Error{Code: "40001"},
			wantNil: true,
		},
		{
			name:    "non pq error",
			err:     fmt.Errorf("boom"),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPQError(tt.err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.wantCode, got.Code)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(nil))
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, Translate(nil))

	plain := fmt.Errorf("network down")
	assert.Equal(t, plain, Translate(plain))

	translated := Translate(&pq.Error{Code: "23505", Constraint: "users_email_key"})
	assert.True(t, errors.HasCode(translated, errors.CodeConflictingUniqueness))
}
