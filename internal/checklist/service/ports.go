// Package service implements the checklist engine's operations: template
// authoring, instantiation, submission, rollups and the defect lifecycle.
// Every operation takes the caller's tenant.Scope and applies the access
// policy before touching the store.
package service

import (
	"context"
	"time"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/rollup"
	"github.com/kitchensafe/kitchensafe-backend/pkg/messaging"
)

// Transactor runs fn in one database transaction carried by ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

// SiteStore reads sites.
type SiteStore interface {
	GetSite(ctx context.Context, id int64) (*domain.Site, error)
	ListActiveSites(ctx context.Context, f repository.SiteFilter) ([]domain.Site, error)
}

// TemplateStore persists categories, tasks and fields.
type TemplateStore interface {
	CreateCategory(ctx context.Context, c *domain.Category) error
	UpdateCategory(ctx context.Context, c *domain.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context, f repository.CategoryFilter) ([]domain.Category, error)

	CreateTask(ctx context.Context, t *domain.Task) error
	UpdateTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, id int64) error
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	ListTasks(ctx context.Context, categoryID int64, activeOnly bool) ([]domain.Task, error)
	NextTaskIndex(ctx context.Context, categoryID int64) (int, error)
	ShiftTasks(ctx context.Context, categoryID int64, index int, exceptID int64) error
	RenumberTasks(ctx context.Context, categoryID int64) error
	SyncDynamicForm(ctx context.Context, taskID int64) error

	CreateField(ctx context.Context, f *domain.TaskField) error
	UpdateField(ctx context.Context, f *domain.TaskField) error
	DeleteField(ctx context.Context, id int64) error
	GetField(ctx context.Context, id int64) (*domain.TaskField, error)
	ListFields(ctx context.Context, taskID int64) ([]domain.TaskField, error)
	NextFieldOrder(ctx context.Context, taskID int64) (int, error)
}

// ChecklistStore persists checklist instances and items.
type ChecklistStore interface {
	InsertScheduled(ctx context.Context, c *domain.Checklist) (bool, error)
	InsertEvent(ctx context.Context, c *domain.Checklist) error
	MaterialiseItems(ctx context.Context, checklistID, categoryID int64) (int, error)
	Get(ctx context.Context, id int64) (*domain.Checklist, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Checklist, error)
	List(ctx context.Context, f domain.ChecklistFilter) ([]domain.Checklist, int, error)
	ListItems(ctx context.Context, checklistID int64) ([]domain.ChecklistItem, error)
	GetItem(ctx context.Context, id int64) (*domain.ChecklistItem, error)
	GetItemForUpdate(ctx context.Context, id int64) (*domain.ChecklistItem, error)
	CompleteItem(ctx context.Context, it *domain.ChecklistItem) error
	CountItems(ctx context.Context, checklistID int64) (total, completed int, err error)
	UpdateRollup(ctx context.Context, c *domain.Checklist) error
	MarkOverdue(ctx context.Context, today domain.Date) (int64, error)
}

// ResponseStore persists field responses.
type ResponseStore interface {
	ListByItem(ctx context.Context, itemID int64) ([]domain.TaskFieldResponse, error)
	Upsert(ctx context.Context, r *domain.TaskFieldResponse) error
	DeleteStale(ctx context.Context, itemID int64, keep []int64) (int64, error)
}

// DefectStore persists defects.
type DefectStore interface {
	Create(ctx context.Context, d *domain.Defect) error
	Get(ctx context.Context, id int64) (*domain.Defect, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Defect, error)
	List(ctx context.Context, f domain.DefectFilter) ([]domain.Defect, int, error)
	Update(ctx context.Context, d *domain.Defect) error
	Delete(ctx context.Context, id int64) error
}

// StatsStore aggregates per-site RAG inputs.
type StatsStore interface {
	SiteStats(ctx context.Context, siteIDs []int64, since, overdueBefore time.Time) ([]rollup.SiteStats, error)
}

// EventPublisher announces committed changes. Implementations never fail
// the caller.
type EventPublisher interface {
	GenerationCompleted(ctx context.Context, data messaging.GenerationCompletedEvent)
	ChecklistCompleted(ctx context.Context, c *domain.Checklist)
	DefectCreated(ctx context.Context, d *domain.Defect)
	DefectClosed(ctx context.Context, d *domain.Defect)
}

// Clock returns the current instant.
type Clock func() time.Time

// Calendar answers "what day is it" in the operating time zone.
type Calendar struct {
	Now      Clock
	Location *time.Location
}

// NewCalendar uses the wall clock when now is nil and UTC when loc is nil.
func NewCalendar(now Clock, loc *time.Location) Calendar {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Now: now, Location: loc}
}

// Today is the current calendar day in the configured location.
func (c Calendar) Today() domain.Date {
	return domain.DateOf(c.Now(), c.Location)
}
