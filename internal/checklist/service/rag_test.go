package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/rollup"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// seedHistory writes total checklists for site created at the given time,
// the first completed of them completed.
func seedHistory(h *harness, siteID int64, created time.Time, total, completed int) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	for i := 0; i < total; i++ {
		status := domain.StatusOverdue
		if i < completed {
			status = domain.StatusCompleted
		}
		id := h.store.id()
		h.store.checklists[id] = &domain.Checklist{
			ID: id, SiteID: siteID, Status: status, IsEvent: true,
			ChecklistDate: domain.DateOf(created, time.UTC),
			CreatedAt:     created, UpdatedAt: created,
		}
	}
}

func seedDefect(h *harness, orgID, siteID int64, created time.Time, status domain.DefectStatus) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	id := h.store.id()
	h.store.defects[id] = &domain.Defect{
		ID: id, OrganizationID: orgID, SiteID: siteID, Title: "Seeded",
		Severity: domain.SeverityMedium, Status: status,
		CreatedAt: created, UpdatedAt: created,
	}
}

func TestRAGService_ForSite(t *testing.T) {
	h := newHarness(t, friday)
	site := h.store.addSite(orgA, "Soho", true)

	seedHistory(h, site.ID, h.now.AddDate(0, 0, -3), 100, 96)
	seedHistory(h, site.ID, h.now.AddDate(0, 0, -45), 50, 0)
	seedDefect(h, orgA, site.ID, h.now.AddDate(0, 0, -1), domain.DefectOpen)
	for i := 0; i < 3; i++ {
		seedDefect(h, orgA, site.ID, h.now.AddDate(0, 0, -10), domain.DefectInProgress)
	}
	seedDefect(h, orgA, site.ID, h.now.AddDate(0, 0, -20), domain.DefectClosed)

	snap, err := h.rag.ForSite(h.ctx(), siteUser(orgA, tenant.DepartmentFOH, site.ID), site.ID)
	require.NoError(t, err)
	assert.Equal(t, rollup.Amber, snap.RAG)
	assert.Equal(t, float64(96), snap.CompletionRate30d)
	assert.Equal(t, 100, snap.TotalChecklists)
	assert.Equal(t, 96, snap.CompletedChecklists)
	assert.Equal(t, 4, snap.OpenDefects)
	assert.Equal(t, 3, snap.OverdueDefects)
	assert.Equal(t, "Soho", snap.SiteName)

	t.Run("hidden sites are not found", func(t *testing.T) {
		_, err := h.rag.ForSite(h.ctx(), orgAdmin(orgB), site.ID)
		assertCode(t, err, apperrors.CodeNotFound)

		_, err = h.rag.ForSite(h.ctx(), siteUser(orgA, tenant.DepartmentFOH), site.ID)
		assertCode(t, err, apperrors.CodeNotFound)
	})
}

func TestRAGService_EmptySiteIsGreen(t *testing.T) {
	h := newHarness(t, friday)
	site := h.store.addSite(orgA, "Soho", true)

	snap, err := h.rag.ForSite(h.ctx(), orgAdmin(orgA), site.ID)
	require.NoError(t, err)
	assert.Equal(t, rollup.Green, snap.RAG)
	assert.Equal(t, float64(100), snap.CompletionRate30d)
}

func TestRAGService_ForOrganization(t *testing.T) {
	h := newHarness(t, friday)
	good := h.store.addSite(orgA, "Soho", true)
	poor := h.store.addSite(orgA, "Shoreditch", true)
	h.store.addSite(orgA, "Closed", false)
	other := h.store.addSite(orgB, "Leeds", true)

	recent := h.now.AddDate(0, 0, -2)
	seedHistory(h, good.ID, recent, 10, 10)
	seedHistory(h, poor.ID, recent, 10, 8)
	seedHistory(h, other.ID, recent, 10, 0)

	t.Run("worst site decides", func(t *testing.T) {
		r, err := h.rag.ForOrganization(h.ctx(), orgAdmin(orgA), orgA)
		require.NoError(t, err)
		assert.Equal(t, rollup.Red, r.RAG)
		assert.Equal(t, 2, r.SiteCount)
		assert.Equal(t, 1, r.GreenSites)
		assert.Equal(t, 1, r.RedSites)
		assert.Equal(t, float64(90), r.AverageCompletionRate)
	})

	t.Run("site users only see their sites", func(t *testing.T) {
		r, err := h.rag.ForOrganization(h.ctx(), siteUser(orgA, tenant.DepartmentFOH, good.ID), orgA)
		require.NoError(t, err)
		assert.Equal(t, rollup.Green, r.RAG)
		require.Len(t, r.Sites, 1)
		assert.Equal(t, good.ID, r.Sites[0].SiteID)

		r, err = h.rag.ForOrganization(h.ctx(), siteUser(orgA, tenant.DepartmentFOH), orgA)
		require.NoError(t, err)
		assert.Equal(t, 0, r.SiteCount)
		assert.Equal(t, rollup.Green, r.RAG)
	})

	t.Run("other organizations are not found", func(t *testing.T) {
		_, err := h.rag.ForOrganization(h.ctx(), orgAdmin(orgB), orgA)
		assertCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("organization without sites", func(t *testing.T) {
		r, err := h.rag.ForOrganization(h.ctx(), superAdmin(), 999)
		require.NoError(t, err)
		assert.Equal(t, rollup.Green, r.RAG)
		assert.Equal(t, float64(100), r.AverageCompletionRate)
		assert.Empty(t, r.Sites)
	})
}
