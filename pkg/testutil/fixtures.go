package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the plaintext password of every fixture user.
const DefaultPassword = "Passw0rd!"

// UserFixture describes a user row to insert.
type UserFixture struct {
	Email          string
	Role           string
	OrganizationID *int64
	Department     string
	JobTitle       string
	Inactive       bool
}

// CategoryFixture describes a category row to insert.
type CategoryFixture struct {
	OrganizationID *int64
	Name           string
	Frequency      string
	OpensAt        string
	Inactive       bool
}

// FixtureFactory inserts rows with sensible defaults. Names and codes get a
// sequence suffix so fixtures never collide on unique keys.
type FixtureFactory struct {
	db       *sqlx.DB
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

func (f *FixtureFactory) insert(t *testing.T, ctx context.Context, query string, args ...interface{}) int64 {
	t.Helper()
	var id int64
	if err := f.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		t.Fatalf("fixture insert failed: %v", err)
	}
	return id
}

// Organization inserts an active organization.
func (f *FixtureFactory) Organization(t *testing.T, ctx context.Context) int64 {
	n := f.nextSeq()
	return f.insert(t, ctx,
		`INSERT INTO organizations (name, slug) VALUES ($1, $2) RETURNING id`,
		fmt.Sprintf("Organization %d", n), fmt.Sprintf("org-%d", n))
}

// Site inserts an active site in orgID.
func (f *FixtureFactory) Site(t *testing.T, ctx context.Context, orgID int64) int64 {
	n := f.nextSeq()
	return f.insert(t, ctx,
		`INSERT INTO sites (organization_id, name, code) VALUES ($1, $2, $3) RETURNING id`,
		orgID, fmt.Sprintf("Site %d", n), fmt.Sprintf("S%03d", n))
}

// User inserts a user with DefaultPassword.
func (f *FixtureFactory) User(t *testing.T, ctx context.Context, u UserFixture) int64 {
	t.Helper()
	n := f.nextSeq()
	if u.Email == "" {
		u.Email = fmt.Sprintf("user%d@example.com", n)
	}
	if u.Role == "" {
		u.Role = "site_user"
	}
	hash, err := HashPassword(DefaultPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return f.insert(t, ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role, organization_id, department, job_title, is_active)
		VALUES ($1, $2, 'Test', $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		RETURNING id`,
		u.Email, hash, fmt.Sprintf("User%d", n), u.Role, u.OrganizationID, u.Department, u.JobTitle, !u.Inactive)
}

// AssignSite links a user to a site.
func (f *FixtureFactory) AssignSite(t *testing.T, ctx context.Context, userID, siteID int64) {
	t.Helper()
	if _, err := f.db.ExecContext(ctx,
		`INSERT INTO user_sites (user_id, site_id) VALUES ($1, $2)`, userID, siteID); err != nil {
		t.Fatalf("failed to assign site: %v", err)
	}
}

// Category inserts a category; a nil OrganizationID makes it global.
func (f *FixtureFactory) Category(t *testing.T, ctx context.Context, c CategoryFixture) int64 {
	n := f.nextSeq()
	if c.Name == "" {
		c.Name = fmt.Sprintf("Category %d", n)
	}
	if c.Frequency == "" {
		c.Frequency = "daily"
	}
	return f.insert(t, ctx, `
		INSERT INTO categories (organization_id, name, frequency, opens_at, is_global, is_active)
		VALUES ($1, $2, $3, NULLIF($4, '')::time, $5, $6)
		RETURNING id`,
		c.OrganizationID, c.Name, c.Frequency, c.OpensAt, c.OrganizationID == nil, !c.Inactive)
}

// Task inserts an active task at the given position.
func (f *FixtureFactory) Task(t *testing.T, ctx context.Context, categoryID int64, name string, order int, departments ...string) int64 {
	var depts interface{}
	if len(departments) > 0 {
		depts = pq.StringArray(departments)
	}
	return f.insert(t, ctx, `
		INSERT INTO tasks (category_id, name, order_index, allocated_departments)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		categoryID, name, order, depts)
}

// HashPassword hashes with the minimum bcrypt cost to keep tests fast.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
