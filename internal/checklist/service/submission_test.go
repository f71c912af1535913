package service

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/form"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/messaging"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

func answers(pairs ...interface{}) form.Submission {
	var sub form.Submission
	for i := 0; i+1 < len(pairs); i += 2 {
		sub.Responses = append(sub.Responses, form.ResponseInput{
			FieldID: pairs[i].(int64),
			Value:   json.RawMessage(pairs[i+1].(string)),
		})
	}
	return sub
}

// fridgeSetup builds a daily category with one task: a fridge count and a
// repeating group of temperature readings. It returns the generated item.
func fridgeSetup(t *testing.T) (h *harness, site *domain.Site, item domain.ChecklistItem, count, group *domain.TaskField) {
	h = newHarness(t, friday)
	site = h.store.addSite(orgA, "Soho", true)
	cat := h.category(orgA, "Fridge checks", domain.FrequencyDaily, nil)
	task := h.task(orgA, cat.ID, "Record fridge temperatures")

	count = h.field(orgA, task.ID, FieldInput{FieldType: domain.FieldNumber, Label: "How many fridges", IsRequired: true})
	group = h.field(orgA, task.ID, FieldInput{
		FieldType: domain.FieldRepeatingGroup, Label: "Fridges", IsRequired: true,
		ValidationRules: json.RawMessage(fmt.Sprintf(`{
			"repeat_count_field_id": %d,
			"repeat_label": "Fridge",
			"template": [
				{"key": "temp", "label": "temperature", "field_type": "temperature", "required": true,
				 "validation_rules": {"min": 0, "max": 5, "create_defect_if": "out_of_range"}},
				{"key": "photo", "label": "photo", "field_type": "photo"}
			]
		}`, count.ID)),
	})

	h.generate(orgA)
	c := h.checklistsOf(site.ID)[0]
	items := h.items(c.ID)
	require.Len(t, items, 1)
	return h, site, items[0], count, group
}

const threeFridges = `[{"temp": 4.0, "photo": "u1"}, {"temp": 7.2, "photo": "u2"}, {"temp": 2.1, "photo": "u3"}]`

func TestSubmitItem_TemperatureDefect(t *testing.T) {
	h, site, item, count, group := fridgeSetup(t)
	user := siteUser(orgA, tenant.DepartmentBOH, site.ID)

	res, err := h.submissions.SubmitItem(h.ctx(), user, item.ID, answers(count.ID, `3`, group.ID, threeFridges))
	require.NoError(t, err)

	require.Len(t, res.DefectsCreated, 1)
	d := res.DefectsCreated[0]
	assert.Equal(t, "Fridge 2 temperature 7.2°C exceeded 5°C", d.Title)
	assert.Equal(t, domain.SeverityHigh, d.Severity)
	assert.Equal(t, domain.DefectOpen, d.Status)
	assert.True(t, d.AutoGenerated)
	assert.Equal(t, site.ID, d.SiteID)
	require.NotNil(t, d.ChecklistItemID)
	assert.Equal(t, item.ID, *d.ChecklistItemID)

	assert.True(t, res.Item.IsCompleted)
	require.NotNil(t, res.Item.CompletedByID)
	assert.Equal(t, user.UserID, *res.Item.CompletedByID)

	stored, err := h.store.ListByItem(h.ctx(), item.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	var groupResp domain.TaskFieldResponse
	for _, r := range stored {
		if *r.TaskFieldID == group.ID {
			groupResp = r
		}
	}
	require.NotNil(t, groupResp.AutoDefectID)
	assert.Equal(t, d.ID, *groupResp.AutoDefectID)

	raw, ok := groupResp.Value().Group()
	require.True(t, ok)
	var fridges []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fridges))
	require.Len(t, fridges, 3)
	assert.Equal(t, float64(d.ID), fridges[1]["auto_defect_id"])
	assert.NotContains(t, fridges[0], "auto_defect_id")
	assert.Equal(t, "u2", fridges[1]["photo"])

	assert.Equal(t, domain.StatusCompleted, res.Checklist.Status)
	assert.Len(t, h.sent.Of(messaging.EventDefectCreated), 1)
	assert.Len(t, h.sent.Of(messaging.EventChecklistCompleted), 1)
}

func TestSubmitItem_ResubmissionKeepsSingleDefect(t *testing.T) {
	h, site, item, count, group := fridgeSetup(t)
	user := siteUser(orgA, tenant.DepartmentBOH, site.ID)
	sub := answers(count.ID, `3`, group.ID, threeFridges)

	first, err := h.submissions.SubmitItem(h.ctx(), user, item.ID, sub)
	require.NoError(t, err)
	require.Len(t, first.DefectsCreated, 1)

	second, err := h.submissions.SubmitItem(h.ctx(), user, item.ID, sub)
	require.NoError(t, err)
	assert.Empty(t, second.DefectsCreated)

	defects, total, err := defectStore{h.store}.List(h.ctx(), domain.DefectFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	stored, err := h.store.ListByItem(h.ctx(), item.ID)
	require.NoError(t, err)
	var groupResp domain.TaskFieldResponse
	for _, r := range stored {
		if *r.TaskFieldID == group.ID {
			groupResp = r
		}
	}
	require.NotNil(t, groupResp.AutoDefectID)
	assert.Equal(t, defects[0].ID, *groupResp.AutoDefectID)

	raw, ok := groupResp.Value().Group()
	require.True(t, ok)
	var fridges []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fridges))
	require.Len(t, fridges, 3)
	assert.Equal(t, float64(defects[0].ID), fridges[1]["auto_defect_id"])
	assert.NotContains(t, fridges[0], "auto_defect_id")
	assert.NotContains(t, fridges[2], "auto_defect_id")

	for _, r := range second.Responses {
		if *r.TaskFieldID == group.ID {
			require.NotNil(t, r.AutoDefectID)
			assert.Equal(t, defects[0].ID, *r.AutoDefectID)
		}
	}
	assert.Len(t, h.sent.Of(messaging.EventChecklistCompleted), 1)
}

func TestSubmitItem_RepeatCountMismatchWritesNothing(t *testing.T) {
	h, site, item, count, group := fridgeSetup(t)
	user := siteUser(orgA, tenant.DepartmentBOH, site.ID)

	_, err := h.submissions.SubmitItem(h.ctx(), user, item.ID,
		answers(count.ID, `3`, group.ID, `[{"temp": 9.5}, {"temp": 3.0}]`))
	assertCode(t, err, apperrors.CodeRepeatCountMismatch)

	stored, err := h.store.ListByItem(h.ctx(), item.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, total, err := defectStore{h.store}.List(h.ctx(), domain.DefectFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	got, err := h.store.GetItem(h.ctx(), item.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCompleted)
	assert.Empty(t, h.sent.Of(messaging.EventDefectCreated))
}

func TestSubmitItem_Rejections(t *testing.T) {
	h, site, item, count, group := fridgeSetup(t)
	user := siteUser(orgA, tenant.DepartmentBOH, site.ID)

	tests := []struct {
		name string
		sub  form.Submission
		code string
	}{
		{"missing required count", answers(group.ID, `[]`), apperrors.CodeRepeatCountMismatch},
		{"missing required group", answers(count.ID, `2`), apperrors.CodeIncompleteSubmission},
		{"text in a number", answers(count.ID, `"three"`, group.ID, `[]`), apperrors.CodeTypeMismatch},
		{"unknown field", answers(count.ID, `0`, group.ID, `[]`, int64(99999), `1`), apperrors.CodeValidation},
		{"missing temperature", answers(count.ID, `1`, group.ID, `[{"photo": "u1"}]`), apperrors.CodeIncompleteSubmission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.submissions.SubmitItem(h.ctx(), user, item.ID, tt.sub)
			assertCode(t, err, tt.code)
		})
	}

	_, err := h.submissions.SubmitItem(h.ctx(), user, item.ID, answers(count.ID, `0`, group.ID, `[]`))
	require.NoError(t, err)
}

func TestSubmitItem_ConditionalRequired(t *testing.T) {
	h := newHarness(t, friday)
	site := h.store.addSite(orgA, "Soho", true)
	cat := h.category(orgA, "Deliveries", domain.FrequencyPerDelivery, nil)
	task := h.task(orgA, cat.ID, "Check delivery")
	chilled := h.field(orgA, task.ID, FieldInput{FieldType: domain.FieldYesNo, Label: "Chilled goods?", IsRequired: true})
	probe := h.field(orgA, task.ID, FieldInput{
		FieldType: domain.FieldTemperature, Label: "Probe temperature", IsRequired: true,
		ShowIf: json.RawMessage(fmt.Sprintf(`{"field_id": %d, "operator": "eq", "value": true}`, chilled.ID)),
	})

	user := siteUser(orgA, tenant.DepartmentBOH, site.ID)
	c, err := h.scheduler.InstantiateEvent(h.ctx(), user, EventRequest{CategoryID: cat.ID, SiteID: site.ID})
	require.NoError(t, err)
	item := h.items(c.ID)[0]

	_, err = h.submissions.SubmitItem(h.ctx(), user, item.ID, answers(chilled.ID, `true`))
	assertCode(t, err, apperrors.CodeIncompleteSubmission)

	res, err := h.submissions.SubmitItem(h.ctx(), user, item.ID, answers(chilled.ID, `true`, probe.ID, `3.5`))
	require.NoError(t, err)
	assert.Len(t, res.Responses, 2)

	res, err = h.submissions.SubmitItem(h.ctx(), user, item.ID, answers(chilled.ID, `false`, probe.ID, `3.5`))
	require.NoError(t, err)
	require.Len(t, res.Responses, 1)

	stored, err := h.store.ListByItem(h.ctx(), item.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1, "the hidden probe response is dropped")
	b, ok := stored[0].Value().Bool()
	assert.True(t, ok)
	assert.False(t, b)
}

func TestSubmitItem_ChecklistRollup(t *testing.T) {
	h, sites, _ := dailySetup(t)
	h.generate(orgA)
	c := h.checklistsOf(sites[0].ID)[0]
	items := h.items(c.ID)
	user := siteUser(orgA, tenant.DepartmentFOH, sites[0].ID)

	res, err := h.submissions.SubmitItem(h.ctx(), user, items[0].ID, form.Submission{Notes: ptr("all good")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, res.Checklist.Status)
	assert.Equal(t, 1, res.Checklist.CompletedItems)
	assert.Nil(t, res.Checklist.CompletedAt)
	assert.Equal(t, "all good", *res.Item.Notes)

	h.now = h.now.Add(time.Hour)
	_, err = h.submissions.SubmitItem(h.ctx(), user, items[1].ID, form.Submission{})
	require.NoError(t, err)

	finisher := orgAdmin(orgA)
	res, err = h.submissions.SubmitItem(h.ctx(), finisher, items[2].ID, form.Submission{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Checklist.Status)
	assert.Equal(t, 3, res.Checklist.CompletedItems)
	require.NotNil(t, res.Checklist.CompletedByID)
	assert.Equal(t, finisher.UserID, *res.Checklist.CompletedByID)
	completedAt := *res.Checklist.CompletedAt

	h.now = h.now.Add(time.Hour)
	res, err = h.submissions.SubmitItem(h.ctx(), user, items[0].ID, form.Submission{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Checklist.Status)
	assert.Equal(t, completedAt, *res.Checklist.CompletedAt)
	assert.Len(t, h.sent.Of(messaging.EventChecklistCompleted), 1)

	stored, err := h.store.Get(h.ctx(), c.ID)
	require.NoError(t, err)
	total, done, err := h.store.CountItems(h.ctx(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, done, stored.CompletedItems)
	assert.Equal(t, total, stored.TotalItems)
	require.NotNil(t, h.items(c.ID)[0].Notes)
	assert.Equal(t, "all good", *h.items(c.ID)[0].Notes, "omitted notes are kept")
}

func TestSubmitItem_LateSubmissionIsOverdue(t *testing.T) {
	h, sites, _ := dailySetup(t)
	h.generate(orgA)
	c := h.checklistsOf(sites[0].ID)[0]
	items := h.items(c.ID)

	h.now = h.now.AddDate(0, 0, 2)
	res, err := h.submissions.SubmitItem(h.ctx(), orgAdmin(orgA), items[0].ID, form.Submission{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, res.Checklist.Status)
}

func TestSubmitItem_NotOpenYet(t *testing.T) {
	h := newHarness(t, time.Date(2025, time.January, 10, 5, 0, 0, 0, time.UTC))
	site := h.store.addSite(orgA, "Soho", true)
	cat := h.category(orgA, "Opening", domain.FrequencyDaily, ptr("06:30"))
	h.task(orgA, cat.ID, "Unlock")
	h.generate(orgA)
	item := h.items(h.checklistsOf(site.ID)[0].ID)[0]

	_, err := h.submissions.SubmitItem(h.ctx(), orgAdmin(orgA), item.ID, form.Submission{})
	assertCode(t, err, apperrors.CodeConflict)

	h.now = h.now.Add(90 * time.Minute)
	_, err = h.submissions.SubmitItem(h.ctx(), orgAdmin(orgA), item.ID, form.Submission{})
	require.NoError(t, err)
}

func TestSubmitItem_Access(t *testing.T) {
	h := newHarness(t, friday)
	site := h.store.addSite(orgA, "Soho", true)
	other := h.store.addSite(orgA, "Shoreditch", true)
	cat := h.category(orgA, "Kitchen", domain.FrequencyDaily, nil)
	h.task(orgA, cat.ID, "Deep fat fryer oil", "boh")
	h.generate(orgA)
	item := h.items(h.checklistsOf(site.ID)[0].ID)[0]

	tests := []struct {
		name  string
		scope tenant.Scope
		code  string
	}{
		{"other organization", orgAdmin(orgB), apperrors.CodeNotFound},
		{"unassigned site", siteUser(orgA, tenant.DepartmentBOH, other.ID), apperrors.CodePermissionDenied},
		{"other department", siteUser(orgA, tenant.DepartmentFOH, site.ID), apperrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.submissions.SubmitItem(h.ctx(), tt.scope, item.ID, form.Submission{})
			assertCode(t, err, tt.code)
		})
	}

	manager := siteUser(orgA, tenant.DepartmentFOH, site.ID)
	manager.ManagementLevel = true
	_, err := h.submissions.SubmitItem(h.ctx(), manager, item.ID, form.Submission{})
	require.NoError(t, err)

	_, err = h.submissions.SubmitItem(h.ctx(), orgAdmin(orgA), 424242, form.Submission{})
	assertCode(t, err, apperrors.CodeNotFound)
}
