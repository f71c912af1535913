package service

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

const (
	orgA int64 = 100
	orgB int64 = 200
)

var friday = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.CodeOf(err), "unexpected error: %v", err)
}

func TestTemplateService_CategoryAuthoring(t *testing.T) {
	h := newHarness(t, friday)
	ctx := h.ctx()

	t.Run("site users cannot author", func(t *testing.T) {
		_, err := h.templates.CreateCategory(ctx, siteUser(orgA, tenant.DepartmentBOH), CategoryInput{
			Name: "Opening", Frequency: domain.FrequencyDaily,
		})
		assertCode(t, err, apperrors.CodePermissionDenied)
	})

	t.Run("global categories need a super admin", func(t *testing.T) {
		_, err := h.templates.CreateCategory(ctx, orgAdmin(orgA), CategoryInput{
			Name: "Allergens", Frequency: domain.FrequencyDaily, IsGlobal: true,
		})
		assertCode(t, err, apperrors.CodePermissionDenied)

		global, err := h.templates.CreateCategory(ctx, superAdmin(), CategoryInput{
			Name: "Allergens", Frequency: domain.FrequencyDaily, IsGlobal: true,
		})
		require.NoError(t, err)
		assert.True(t, global.IsGlobal)
		assert.Nil(t, global.OrganizationID)

		_, err = h.templates.UpdateCategory(ctx, orgAdmin(orgA), global.ID, CategoryInput{
			Name: "Renamed", Frequency: domain.FrequencyDaily,
		})
		assertCode(t, err, apperrors.CodePermissionDenied)
	})

	t.Run("org admin creates in own organization", func(t *testing.T) {
		c, err := h.templates.CreateCategory(ctx, orgAdmin(orgA), CategoryInput{
			Name: "  Opening checks ", Frequency: domain.FrequencyDaily,
			OpensAt: ptr("6:30"), ClosesAt: ptr("11:00"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Opening checks", c.Name)
		require.NotNil(t, c.OrganizationID)
		assert.Equal(t, orgA, *c.OrganizationID)
		assert.Equal(t, "06:30:00", *c.OpensAt)
		assert.Equal(t, "11:00:00", *c.ClosesAt)
		assert.True(t, c.IsActive)

		_, err = h.templates.GetCategory(ctx, orgAdmin(orgB), c.ID)
		assertCode(t, err, apperrors.CodeNotFound)
		_, err = h.templates.UpdateCategory(ctx, orgAdmin(orgB), c.ID, CategoryInput{Name: "x", Frequency: domain.FrequencyDaily})
		assertCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("opening must precede closing", func(t *testing.T) {
		_, err := h.templates.CreateCategory(ctx, orgAdmin(orgA), CategoryInput{
			Name: "Closing", Frequency: domain.FrequencyDaily,
			OpensAt: ptr("22:00"), ClosesAt: ptr("21:59"),
		})
		assertCode(t, err, apperrors.CodeInvalidSchema)
	})

	t.Run("unknown frequency", func(t *testing.T) {
		_, err := h.templates.CreateCategory(ctx, orgAdmin(orgA), CategoryInput{Name: "x", Frequency: "hourly"})
		assertCode(t, err, apperrors.CodeValidation)
	})

	t.Run("listing shows globals and own organization", func(t *testing.T) {
		h.category(orgB, "Other org", domain.FrequencyDaily, nil)

		list, err := h.templates.ListCategories(ctx, orgAdmin(orgA), false)
		require.NoError(t, err)
		names := make([]string, len(list))
		for i, c := range list {
			names[i] = c.Name
		}
		assert.Equal(t, []string{"Allergens", "Opening checks"}, names)
	})
}

func taskNames(t *testing.T, h *harness, categoryID int64) []string {
	t.Helper()
	tasks, err := h.templates.ListTasks(h.ctx(), orgAdmin(orgA), categoryID)
	require.NoError(t, err)
	out := make([]string, len(tasks))
	for i, task := range tasks {
		assert.Equal(t, i+1, task.OrderIndex)
		out[i] = task.Name
	}
	return out
}

func TestTemplateService_TaskOrdering(t *testing.T) {
	h := newHarness(t, friday)
	ctx := h.ctx()
	cat := h.category(orgA, "Opening", domain.FrequencyDaily, nil)

	h.task(orgA, cat.ID, "A")
	h.task(orgA, cat.ID, "B")
	c := h.task(orgA, cat.ID, "C")
	assert.Equal(t, []string{"A", "B", "C"}, taskNames(t, h, cat.ID))

	d, err := h.templates.CreateTask(ctx, orgAdmin(orgA), cat.ID, TaskInput{Name: "D", OrderIndex: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, d.OrderIndex)
	assert.Equal(t, []string{"A", "D", "B", "C"}, taskNames(t, h, cat.ID))

	_, err = h.templates.UpdateTask(ctx, orgAdmin(orgA), c.ID, TaskInput{Name: "C", OrderIndex: ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "D", "B"}, taskNames(t, h, cat.ID))

	require.NoError(t, h.templates.DeleteTask(ctx, orgAdmin(orgA), d.ID))
	assert.Equal(t, []string{"C", "A", "B"}, taskNames(t, h, cat.ID))

	err = h.templates.DeleteTask(ctx, orgAdmin(orgB), c.ID)
	assertCode(t, err, apperrors.CodeNotFound)

	_, err = h.templates.CreateTask(ctx, orgAdmin(orgA), cat.ID, TaskInput{Name: "E", AllocatedDepartments: []string{"boh"}})
	require.NoError(t, err)
	tasks, err := h.store.ListTasks(ctx, cat.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []tenant.Department{tenant.DepartmentBOH}, tasks[3].Departments())
}

func TestTemplateService_FieldSchema(t *testing.T) {
	h := newHarness(t, friday)
	ctx := h.ctx()
	admin := orgAdmin(orgA)
	cat := h.category(orgA, "Deliveries", domain.FrequencyPerDelivery, nil)
	task := h.task(orgA, cat.ID, "Check delivery")

	f1 := h.field(orgA, task.ID, FieldInput{FieldType: domain.FieldYesNo, Label: "Chilled goods?", IsRequired: true})
	f2 := h.field(orgA, task.ID, FieldInput{
		FieldType: domain.FieldTemperature, Label: "Probe temperature", IsRequired: true,
		ValidationRules: json.RawMessage(`{"max": 8, "create_defect_if": "out_of_range"}`),
		ShowIf:          json.RawMessage(fmt.Sprintf(`{"field_id": %d, "operator": "==", "value": true}`, f1.ID)),
	})
	assert.Equal(t, 1, f1.FieldOrder)
	assert.Equal(t, 2, f2.FieldOrder)
	assert.JSONEq(t, fmt.Sprintf(`{"field_id": %d, "operator": "eq", "value": true}`, f1.ID), string(*f2.ShowIf))

	stored, err := h.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasDynamicForm)

	t.Run("show_if must point backwards", func(t *testing.T) {
		_, err := h.templates.UpdateField(ctx, admin, f1.ID, FieldInput{
			FieldType: domain.FieldYesNo, Label: "Chilled goods?",
			ShowIf: json.RawMessage(fmt.Sprintf(`{"field_id": %d, "value": 1}`, f2.ID)),
		})
		assertCode(t, err, apperrors.CodeCycleInVisibility)
	})

	t.Run("dropdown needs options", func(t *testing.T) {
		_, err := h.templates.CreateField(ctx, admin, task.ID, FieldInput{FieldType: domain.FieldDropdown, Label: "Supplier"})
		assertCode(t, err, apperrors.CodeInvalidSchema)

		f, err := h.templates.CreateField(ctx, admin, task.ID, FieldInput{
			FieldType: domain.FieldDropdown, Label: "Supplier",
			Options: json.RawMessage(`[{"value": "brakes"}, {"value": "bidfood"}]`),
		})
		require.NoError(t, err)
		assert.JSONEq(t, `["brakes", "bidfood"]`, string(*f.Options))
	})

	t.Run("min and max only on numbers", func(t *testing.T) {
		_, err := h.templates.CreateField(ctx, admin, task.ID, FieldInput{
			FieldType: domain.FieldText, Label: "Driver", ValidationRules: json.RawMessage(`{"min": 1}`),
		})
		assertCode(t, err, apperrors.CodeInvalidSchema)
	})

	t.Run("referenced fields cannot be deleted", func(t *testing.T) {
		err := h.templates.DeleteField(ctx, admin, f1.ID)
		assertCode(t, err, apperrors.CodeInvalidSchema)

		require.NoError(t, h.templates.DeleteField(ctx, admin, f2.ID))
		require.NoError(t, h.templates.DeleteField(ctx, admin, f1.ID))
	})

	t.Run("other organizations cannot see fields", func(t *testing.T) {
		_, err := h.templates.ListFields(ctx, orgAdmin(orgB), task.ID)
		assertCode(t, err, apperrors.CodeNotFound)
	})
}
