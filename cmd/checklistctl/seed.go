package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/service"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

type demoUser struct {
	Email      string
	FirstName  string
	LastName   string
	Role       tenant.Role
	Department *tenant.Department
	JobTitle   domain.JobTitle
	OnSite     bool
}

func dept(d tenant.Department) *tenant.Department { return &d }

var demoUsers = []demoUser{
	{Email: "admin@demo.kitchensafe.test", FirstName: "Alex", LastName: "Admin", Role: tenant.RoleOrgAdmin,
		Department: dept(tenant.DepartmentManagement), JobTitle: domain.JobTitleGeneralManager},
	{Email: "chef@demo.kitchensafe.test", FirstName: "Sam", LastName: "Cook", Role: tenant.RoleSiteUser,
		Department: dept(tenant.DepartmentBOH), JobTitle: domain.JobTitleHeadChef, OnSite: true},
	{Email: "floor@demo.kitchensafe.test", FirstName: "Jo", LastName: "Server", Role: tenant.RoleSiteUser,
		Department: dept(tenant.DepartmentFOH), JobTitle: domain.JobTitleTeamMember, OnSite: true},
}

func hashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func newSeedDemoCmd() *cobra.Command {
	var (
		password string
		slug     string
	)

	cmd := &cobra.Command{
		Use:   "seed-demo",
		Short: "Create a demo organization, site, users and templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := hashPassword(password)
			if err != nil {
				return err
			}

			_, db, log, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			return seedDemo(cmd.Context(), cmd.OutOrStdout(), db, log, slug, hash)
		},
	}

	cmd.Flags().StringVar(&password, "password", "kitchensafe-demo", "password for every demo user")
	cmd.Flags().StringVar(&slug, "slug", "demo-kitchen", "organization slug")
	return cmd
}

func seedDemo(ctx context.Context, out io.Writer, db *database.DB, log *logger.Logger, slug, hash string) error {
	templates := service.NewTemplateService(db, repository.NewTemplateRepository(db), log)

	return db.WithTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx)

		var orgID int64
		if err := q.GetContext(ctx, &orgID, `
			INSERT INTO organizations (name, slug, reporting_cadence)
			VALUES ('Demo Kitchen', $1, 'weekly')
			RETURNING id`, slug); err != nil {
			return fmt.Errorf("create organization: %w", database.Translate(err))
		}

		var siteID int64
		if err := q.GetContext(ctx, &siteID, `
			INSERT INTO sites (organization_id, name, code, city, country)
			VALUES ($1, 'High Street', 'HS01', 'London', 'United Kingdom')
			RETURNING id`, orgID); err != nil {
			return fmt.Errorf("create site: %w", database.Translate(err))
		}
		fmt.Fprintf(out, "Organization %d (%s), site %d\n", orgID, slug, siteID)

		for _, u := range demoUsers {
			var userID int64
			if err := q.GetContext(ctx, &userID, `
				INSERT INTO users (email, password_hash, first_name, last_name, role, organization_id, department, job_title)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id`,
				u.Email, hash, u.FirstName, u.LastName, u.Role, orgID, u.Department, u.JobTitle); err != nil {
				return fmt.Errorf("create user %s: %w", u.Email, database.Translate(err))
			}
			if u.OnSite {
				if _, err := q.ExecContext(ctx,
					`INSERT INTO user_sites (user_id, site_id) VALUES ($1, $2)`, userID, siteID); err != nil {
					return fmt.Errorf("assign user %s: %w", u.Email, err)
				}
			}
			fmt.Fprintf(out, "User %d %s (%s)\n", userID, u.Email, u.Role)
		}

		return seedTemplates(ctx, out, templates, orgID)
	})
}

func seedTemplates(ctx context.Context, out io.Writer, templates *service.TemplateService, orgID int64) error {
	scope := tenant.SystemScope()
	opens, closes := "06:00", "11:00"

	opening, err := templates.CreateCategory(ctx, scope, service.CategoryInput{
		Name:           "Opening checks",
		Frequency:      domain.FrequencyDaily,
		OpensAt:        &opens,
		ClosesAt:       &closes,
		OrganizationID: &orgID,
	})
	if err != nil {
		return err
	}

	fridges, err := templates.CreateTask(ctx, scope, opening.ID, service.TaskInput{
		Name:                 "Record fridge temperatures",
		AllocatedDepartments: []string{string(tenant.DepartmentBOH)},
	})
	if err != nil {
		return err
	}
	count, err := templates.CreateField(ctx, scope, fridges.ID, service.FieldInput{
		FieldType: domain.FieldNumber, Label: "How many fridges", IsRequired: true,
		ValidationRules: json.RawMessage(`{"min": 1, "max": 20}`),
	})
	if err != nil {
		return err
	}
	if _, err := templates.CreateField(ctx, scope, fridges.ID, service.FieldInput{
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
	}); err != nil {
		return err
	}

	floor, err := templates.CreateTask(ctx, scope, opening.ID, service.TaskInput{
		Name:                 "Front of house ready",
		AllocatedDepartments: []string{string(tenant.DepartmentFOH)},
	})
	if err != nil {
		return err
	}
	if _, err := templates.CreateField(ctx, scope, floor.ID, service.FieldInput{
		FieldType: domain.FieldYesNo, Label: "Tables sanitised", IsRequired: true,
	}); err != nil {
		return err
	}

	delivery, err := templates.CreateCategory(ctx, scope, service.CategoryInput{
		Name:           "Chilled delivery",
		Frequency:      domain.FrequencyPerDelivery,
		OrganizationID: &orgID,
	})
	if err != nil {
		return err
	}
	intake, err := templates.CreateTask(ctx, scope, delivery.ID, service.TaskInput{Name: "Check goods in"})
	if err != nil {
		return err
	}
	if _, err := templates.CreateField(ctx, scope, intake.ID, service.FieldInput{
		FieldType: domain.FieldTemperature, Label: "Core temperature", IsRequired: true,
		ValidationRules: json.RawMessage(`{"create_defect_if": {"threshold": 8, "operator": ">"}}`),
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "Categories %d (daily) and %d (per delivery)\n", opening.ID, delivery.ID)
	return nil
}
