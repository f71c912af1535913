package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/events"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/form"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/service"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
	"github.com/kitchensafe/kitchensafe-backend/pkg/testutil"
)

func TestSubmitItem_ConcurrentSubmissionsCountOnce(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)

	f := suite.Fixtures
	org := f.Organization(t, ctx)
	site := f.Site(t, ctx, org)
	cat := f.Category(t, ctx, testutil.CategoryFixture{OrganizationID: &org})
	f.Task(t, ctx, cat, "Hand wash stations", 1)
	f.Task(t, ctx, cat, "Probe wipes", 2)

	db, log := suite.DB, suite.Logger
	cal := service.NewCalendar(nil, time.UTC)
	checklists := repository.NewChecklistRepository(db)
	templates := repository.NewTemplateRepository(db)
	publisher := events.NewPublisher(nil, log)

	scheduler := service.NewScheduler(db, repository.NewTenancyRepository(db), templates, checklists, publisher, nil, cal, log)
	submissions := service.NewSubmissionService(db, checklists, templates,
		repository.NewResponseRepository(db), repository.NewDefectRepository(db), publisher, nil, cal, log)

	res, err := scheduler.InstantiateForDate(ctx, tenant.SystemScope(), cal.Today(), []int64{site}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	var itemIDs []int64
	require.NoError(t, suite.RawDB.SelectContext(ctx, &itemIDs, `
		SELECT i.id FROM checklist_items i JOIN checklists c ON c.id = i.checklist_id
		WHERE c.site_id = $1 ORDER BY i.order_index`, site))
	require.Len(t, itemIDs, 2)

	// Several writers per item, both items at once.
	var wg sync.WaitGroup
	for _, id := range itemIDs {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := submissions.SubmitItem(ctx, tenant.SystemScope(), id, form.Submission{})
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	var stored struct {
		Completed int                    `db:"completed_items"`
		Total     int                    `db:"total_items"`
		Status    domain.ChecklistStatus `db:"status"`
	}
	require.NoError(t, suite.RawDB.GetContext(ctx, &stored,
		`SELECT completed_items, total_items, status FROM checklists WHERE site_id = $1`, site))
	assert.Equal(t, 2, stored.Completed)
	assert.Equal(t, 2, stored.Total)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
}
