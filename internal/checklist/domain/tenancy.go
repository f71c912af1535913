package domain

import (
	"time"

	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// Organization is the tenant root.
type Organization struct {
	ID               int64      `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	Slug             string     `json:"slug" db:"slug"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	SubscriptionTier string     `json:"subscription_tier" db:"subscription_tier"`
	IsTrial          bool       `json:"is_trial" db:"is_trial"`
	TrialEndsAt      *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	ReportingCadence *string    `json:"reporting_cadence,omitempty" db:"reporting_cadence"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Site is a physical location owned by exactly one organization.
type Site struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Code           string    `json:"code" db:"code"`
	AddressLine1   *string   `json:"address_line1,omitempty" db:"address_line1"`
	AddressLine2   *string   `json:"address_line2,omitempty" db:"address_line2"`
	City           *string   `json:"city,omitempty" db:"city"`
	Postcode       *string   `json:"postcode,omitempty" db:"postcode"`
	Country        *string   `json:"country,omitempty" db:"country"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	ReportSchedule *string   `json:"report_schedule,omitempty" db:"report_schedule"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// JobTitle is a site staff job title.
type JobTitle string

const (
	JobTitleGeneralManager   JobTitle = "general_manager"
	JobTitleAssistantManager JobTitle = "assistant_manager"
	JobTitleHeadChef         JobTitle = "head_chef"
	JobTitleSousChef         JobTitle = "sous_chef"
	JobTitleSupervisor       JobTitle = "supervisor"
	JobTitleTeamMember       JobTitle = "team_member"
)

// User is an authenticated principal.
type User struct {
	ID                 int64              `json:"id" db:"id"`
	Email              string             `json:"email" db:"email"`
	PasswordHash       string             `json:"-" db:"password_hash"`
	FirstName          string             `json:"first_name" db:"first_name"`
	LastName           string             `json:"last_name" db:"last_name"`
	Role               tenant.Role        `json:"role" db:"role"`
	OrganizationID     *int64             `json:"organization_id,omitempty" db:"organization_id"`
	Department         *tenant.Department `json:"department,omitempty" db:"department"`
	JobTitle           *JobTitle          `json:"job_title,omitempty" db:"job_title"`
	IsActive           bool               `json:"is_active" db:"is_active"`
	MustChangePassword bool               `json:"must_change_password" db:"must_change_password"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// IsManagementLevel reports whether the user's job title grants visibility
// of every department's tasks.
func (u *User) IsManagementLevel() bool {
	if u.JobTitle == nil {
		return false
	}
	switch *u.JobTitle {
	case JobTitleGeneralManager, JobTitleAssistantManager, JobTitleHeadChef, JobTitleSousChef:
		return true
	}
	return false
}
