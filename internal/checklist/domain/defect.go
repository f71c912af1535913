package domain

import "time"

// Severity grades a defect.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// DefectStatus is the lifecycle state of a defect. Closed is terminal.
type DefectStatus string

const (
	DefectOpen       DefectStatus = "open"
	DefectInProgress DefectStatus = "in_progress"
	DefectClosed     DefectStatus = "closed"
)

func (s DefectStatus) Valid() bool {
	switch s {
	case DefectOpen, DefectInProgress, DefectClosed:
		return true
	}
	return false
}

// Defect is an issue recorded against a site.
type Defect struct {
	ID              int64        `json:"id" db:"id"`
	OrganizationID  int64        `json:"organization_id" db:"organization_id"`
	SiteID          int64        `json:"site_id" db:"site_id"`
	ChecklistItemID *int64       `json:"checklist_item_id,omitempty" db:"checklist_item_id"`
	Title           string       `json:"title" db:"title"`
	Description     string       `json:"description" db:"description"`
	Severity        Severity     `json:"severity" db:"severity"`
	Status          DefectStatus `json:"status" db:"status"`
	PhotoURL        *string      `json:"photo_url,omitempty" db:"photo_url"`
	AutoGenerated   bool         `json:"auto_generated" db:"auto_generated"`
	ReportedByID    *int64       `json:"reported_by_id,omitempty" db:"reported_by_id"`
	ClosedByID      *int64       `json:"closed_by_id,omitempty" db:"closed_by_id"`
	ClosedAt        *time.Time   `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the defect still counts against the site.
func (d *Defect) IsOpen() bool {
	return d.Status != DefectClosed
}

// DefectFilter narrows defect listings.
type DefectFilter struct {
	OrganizationID *int64
	SiteIDs        []int64
	Status         *DefectStatus
	Severity       *Severity
	ChecklistID    *int64
	Limit          int
	Offset         int
}

// ChecklistFilter narrows checklist listings.
type ChecklistFilter struct {
	OrganizationID *int64
	SiteIDs        []int64
	CategoryID     *int64
	Status         *ChecklistStatus
	// Today, when set, matches Status against the status as read on that
	// day, so a past checklist still stored as pending counts as overdue.
	Today          *Date
	From           *Date
	To             *Date
	IsEvent        *bool
	Limit          int
	Offset         int
}
