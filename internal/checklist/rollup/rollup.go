// Package rollup derives checklist status from item counts and the
// red/amber/green health signal from completion rates and defects.
package rollup

import (
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
)

// Window is the trailing period the completion rate covers, in days.
const Window = 30

// DefectOverdueAfterDays is the age at which an open defect counts as overdue.
const DefectOverdueAfterDays = 7

// Status recomputes a checklist's state from its counts. It never looks at
// the previous state, so replaying a submission gives the same answer.
func Status(date, today domain.Date, completed, total int) domain.ChecklistStatus {
	switch {
	case total > 0 && completed >= total:
		return domain.StatusCompleted
	case date.Before(today):
		return domain.StatusOverdue
	case completed > 0:
		return domain.StatusInProgress
	}
	return domain.StatusPending
}

// CompletionPercentage is completed/total*100, or 0 when there is nothing to do.
func CompletionPercentage(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// RAG is the red/amber/green health signal.
type RAG string

const (
	Green RAG = "green"
	Amber RAG = "amber"
	Red   RAG = "red"
)

func (r RAG) rank() int {
	switch r {
	case Green:
		return 0
	case Amber:
		return 1
	}
	return 2
}

// Worse reports whether r is a worse signal than o.
func (r RAG) Worse(o RAG) bool {
	return r.rank() > o.rank()
}

// ComputeRAG grades a site from its 30 day completion rate (0..100) and the
// number of open defects older than a week.
func ComputeRAG(rate float64, overdueDefects int) RAG {
	switch {
	case rate >= 95 && overdueDefects <= 2:
		return Green
	case rate >= 90 || (overdueDefects >= 3 && overdueDefects <= 5):
		return Amber
	}
	return Red
}

// SiteStats are the raw counts behind a site snapshot.
type SiteStats struct {
	SiteID              int64  `db:"site_id"`
	OrganizationID      int64  `db:"organization_id"`
	SiteName            string `db:"site_name"`
	TotalChecklists     int    `db:"total_checklists"`
	CompletedChecklists int    `db:"completed_checklists"`
	// OpenDefects counts every defect not yet closed, in progress included;
	// a defect being worked on still counts against the site.
	OpenDefects         int    `db:"open_defects"`
	InProgressDefects   int    `db:"in_progress_defects"`
	OverdueDefects      int    `db:"overdue_defects"`
}

// SiteSnapshot is the health of one site.
type SiteSnapshot struct {
	SiteID              int64   `json:"site_id"`
	OrganizationID      int64   `json:"organization_id"`
	SiteName            string  `json:"site_name"`
	RAG                 RAG     `json:"rag"`
	CompletionRate30d   float64 `json:"completion_rate_30d"`
	TotalChecklists     int     `json:"total_checklists"`
	CompletedChecklists int     `json:"completed_checklists"`
	OpenDefects         int     `json:"open_defects"`
	InProgressDefects   int     `json:"in_progress_defects"`
	OverdueDefects      int     `json:"overdue_defects"`
}

// Snapshot grades one site. A site with no checklists in the window has a
// completion rate of 100.
func Snapshot(s SiteStats) SiteSnapshot {
	rate := 100.0
	if s.TotalChecklists > 0 {
		rate = CompletionPercentage(s.CompletedChecklists, s.TotalChecklists)
	}
	return SiteSnapshot{
		SiteID:              s.SiteID,
		OrganizationID:      s.OrganizationID,
		SiteName:            s.SiteName,
		RAG:                 ComputeRAG(rate, s.OverdueDefects),
		CompletionRate30d:   rate,
		TotalChecklists:     s.TotalChecklists,
		CompletedChecklists: s.CompletedChecklists,
		OpenDefects:         s.OpenDefects,
		InProgressDefects:   s.InProgressDefects,
		OverdueDefects:      s.OverdueDefects,
	}
}

// OrgRollup is the health of an organization: its worst site.
type OrgRollup struct {
	OrganizationID        int64          `json:"organization_id"`
	RAG                   RAG            `json:"rag"`
	SiteCount             int            `json:"site_count"`
	GreenSites            int            `json:"green_sites"`
	AmberSites            int            `json:"amber_sites"`
	RedSites              int            `json:"red_sites"`
	AverageCompletionRate float64        `json:"average_completion_rate"`
	Sites                 []SiteSnapshot `json:"sites"`
}

// Rollup combines site snapshots. An organization without sites is green
// at 100.
func Rollup(orgID int64, sites []SiteSnapshot) OrgRollup {
	out := OrgRollup{
		OrganizationID:        orgID,
		RAG:                   Green,
		SiteCount:             len(sites),
		AverageCompletionRate: 100,
		Sites:                 sites,
	}
	if out.Sites == nil {
		out.Sites = []SiteSnapshot{}
	}
	if len(sites) == 0 {
		return out
	}

	var sum float64
	for _, s := range sites {
		switch s.RAG {
		case Green:
			out.GreenSites++
		case Amber:
			out.AmberSites++
		default:
			out.RedSites++
		}
		if s.RAG.Worse(out.RAG) {
			out.RAG = s.RAG
		}
		sum += s.CompletionRate30d
	}
	out.AverageCompletionRate = sum / float64(len(sites))
	return out
}
