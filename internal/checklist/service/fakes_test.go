package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/events"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/rollup"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
	"github.com/kitchensafe/kitchensafe-backend/pkg/testutil"
)

// memStore is an in-memory implementation of every store port. It mirrors
// the SQL repositories closely enough for service tests: joins are derived
// on read and the scheduled-checklist uniqueness rule is enforced.
type memStore struct {
	mu  sync.Mutex
	seq int64
	now func() time.Time

	sites      map[int64]*domain.Site
	categories map[int64]*domain.Category
	tasks      map[int64]*domain.Task
	fields     map[int64]*domain.TaskField
	checklists map[int64]*domain.Checklist
	items      map[int64]*domain.ChecklistItem
	responses  map[int64]*domain.TaskFieldResponse
	defects    map[int64]*domain.Defect

	failInsert func(c *domain.Checklist) error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:        now,
		sites:      map[int64]*domain.Site{},
		categories: map[int64]*domain.Category{},
		tasks:      map[int64]*domain.Task{},
		fields:     map[int64]*domain.TaskField{},
		checklists: map[int64]*domain.Checklist{},
		items:      map[int64]*domain.ChecklistItem{},
		responses:  map[int64]*domain.TaskFieldResponse{},
		defects:    map[int64]*domain.Defect{},
	}
}

func (m *memStore) id() int64 {
	m.seq++
	return m.seq
}

func sortedIDs[T any](in map[int64]T) []int64 {
	ids := make([]int64, 0, len(in))
	for id := range in {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// WithTx runs fn directly; the store is not transactional.
func (m *memStore) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// --- sites ---

func (m *memStore) addSite(orgID int64, name string, active bool) *domain.Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.Site{ID: m.id(), OrganizationID: orgID, Name: name, Code: name, IsActive: active}
	m.sites[s.ID] = s
	return s
}

func (m *memStore) GetSite(_ context.Context, id int64) (*domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, apperrors.NotFound("site")
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListActiveSites(_ context.Context, f repository.SiteFilter) ([]domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Site{}
	for _, id := range sortedIDs(m.sites) {
		s := m.sites[id]
		if !s.IsActive {
			continue
		}
		if f.OrganizationID != nil && s.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.SiteIDs != nil && !containsID(f.SiteIDs, s.ID) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

// --- templates ---

func (m *memStore) CreateCategory(_ context.Context, c *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	c.CreatedAt, c.UpdatedAt = m.now(), m.now()
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateCategory(_ context.Context, c *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.ID]; !ok {
		return apperrors.NotFound("category")
	}
	c.UpdatedAt = m.now()
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memStore) DeleteCategory(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return apperrors.NotFound("category")
	}
	delete(m.categories, id)
	for tid, t := range m.tasks {
		if t.CategoryID == id {
			m.deleteTaskLocked(tid)
		}
	}
	for _, c := range m.checklists {
		if c.CategoryID != nil && *c.CategoryID == id {
			c.CategoryID = nil
		}
	}
	return nil
}

func (m *memStore) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, apperrors.NotFound("category")
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCategories(_ context.Context, f repository.CategoryFilter) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Category{}
	for _, id := range sortedIDs(m.categories) {
		c := m.categories[id]
		if f.ActiveOnly && !c.IsActive {
			continue
		}
		if f.IDs != nil && !containsID(f.IDs, c.ID) {
			continue
		}
		if f.OrganizationID != nil && !c.IsGlobal && (c.OrganizationID == nil || *c.OrganizationID != *f.OrganizationID) {
			continue
		}
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsGlobal != out[j].IsGlobal {
			return out[i].IsGlobal
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memStore) CreateTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[t.CategoryID]; !ok {
		return apperrors.NotFound("category")
	}
	t.ID = m.id()
	t.CreatedAt, t.UpdatedAt = m.now(), m.now()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) UpdateTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tasks[t.ID]
	if !ok {
		return apperrors.NotFound("task")
	}
	cp := *t
	cp.HasDynamicForm = old.HasDynamicForm
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return apperrors.NotFound("task")
	}
	m.deleteTaskLocked(id)
	return nil
}

func (m *memStore) deleteTaskLocked(id int64) {
	delete(m.tasks, id)
	for fid, f := range m.fields {
		if f.TaskID == id {
			delete(m.fields, fid)
		}
	}
	for _, it := range m.items {
		if it.TaskID != nil && *it.TaskID == id {
			it.TaskID = nil
		}
	}
}

func (m *memStore) GetTask(_ context.Context, id int64) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task")
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) ListTasks(_ context.Context, categoryID int64, activeOnly bool) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasksLocked(categoryID, activeOnly), nil
}

func (m *memStore) tasksLocked(categoryID int64, activeOnly bool) []domain.Task {
	out := []domain.Task{}
	for _, id := range sortedIDs(m.tasks) {
		t := m.tasks[id]
		if t.CategoryID == categoryID && (!activeOnly || t.IsActive) {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func (m *memStore) NextTaskIndex(_ context.Context, categoryID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, t := range m.tasks {
		if t.CategoryID == categoryID && t.OrderIndex > max {
			max = t.OrderIndex
		}
	}
	return max + 1, nil
}

func (m *memStore) ShiftTasks(_ context.Context, categoryID int64, index int, exceptID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.CategoryID == categoryID && t.OrderIndex >= index && t.ID != exceptID {
			t.OrderIndex++
		}
	}
	return nil
}

func (m *memStore) RenumberTasks(_ context.Context, categoryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasksLocked(categoryID, false) {
		m.tasks[t.ID].OrderIndex = i + 1
	}
	return nil
}

func (m *memStore) SyncDynamicForm(_ context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return apperrors.NotFound("task")
	}
	t.HasDynamicForm = false
	for _, f := range m.fields {
		if f.TaskID == taskID {
			t.HasDynamicForm = true
		}
	}
	return nil
}

func (m *memStore) CreateField(_ context.Context, f *domain.TaskField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.id()
	f.CreatedAt, f.UpdatedAt = m.now(), m.now()
	cp := *f
	m.fields[f.ID] = &cp
	return nil
}

func (m *memStore) UpdateField(_ context.Context, f *domain.TaskField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fields[f.ID]; !ok {
		return apperrors.NotFound("task field")
	}
	cp := *f
	m.fields[f.ID] = &cp
	return nil
}

func (m *memStore) DeleteField(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fields[id]; !ok {
		return apperrors.NotFound("task field")
	}
	delete(m.fields, id)
	return nil
}

func (m *memStore) GetField(_ context.Context, id int64) (*domain.TaskField, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fields[id]
	if !ok {
		return nil, apperrors.NotFound("task field")
	}
	cp := *f
	return &cp, nil
}

func (m *memStore) ListFields(_ context.Context, taskID int64) ([]domain.TaskField, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.TaskField{}
	for _, id := range sortedIDs(m.fields) {
		if f := m.fields[id]; f.TaskID == taskID {
			out = append(out, *f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FieldOrder < out[j].FieldOrder })
	return out, nil
}

func (m *memStore) NextFieldOrder(_ context.Context, taskID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, f := range m.fields {
		if f.TaskID == taskID && f.FieldOrder > max {
			max = f.FieldOrder
		}
	}
	return max + 1, nil
}

// --- checklists ---

func (m *memStore) InsertScheduled(_ context.Context, c *domain.Checklist) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		if err := m.failInsert(c); err != nil {
			return false, err
		}
	}
	for _, x := range m.checklists {
		if !x.IsEvent && x.SiteID == c.SiteID && x.CategoryID != nil && c.CategoryID != nil &&
			*x.CategoryID == *c.CategoryID && x.ChecklistDate.Equal(c.ChecklistDate.Time) {
			return false, nil
		}
	}
	m.insertChecklistLocked(c, false)
	return true, nil
}

func (m *memStore) InsertEvent(_ context.Context, c *domain.Checklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertChecklistLocked(c, true)
	return nil
}

func (m *memStore) insertChecklistLocked(c *domain.Checklist, event bool) {
	c.ID = m.id()
	c.Status = domain.StatusPending
	c.IsEvent = event
	c.CreatedAt, c.UpdatedAt = m.now(), m.now()
	cp := *c
	m.checklists[c.ID] = &cp
}

func (m *memStore) MaterialiseItems(_ context.Context, checklistID, categoryID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := m.tasksLocked(categoryID, true)
	for _, t := range tasks {
		taskID := t.ID
		it := &domain.ChecklistItem{
			ID: m.id(), ChecklistID: checklistID, TaskID: &taskID,
			ItemName: t.Name, OrderIndex: t.OrderIndex,
			CreatedAt: m.now(), UpdatedAt: m.now(),
		}
		m.items[it.ID] = it
	}
	m.checklists[checklistID].TotalItems = len(tasks)
	return len(tasks), nil
}

// joined fills the columns the SQL repository reads through joins.
func (m *memStore) joinedLocked(c *domain.Checklist) domain.Checklist {
	cp := *c
	if s, ok := m.sites[c.SiteID]; ok {
		cp.OrganizationID = s.OrganizationID
	}
	cp.Frequency, cp.OpensAt = nil, nil
	if c.CategoryID != nil {
		if cat, ok := m.categories[*c.CategoryID]; ok {
			freq := cat.Frequency
			cp.Frequency = &freq
			if cat.OpensAt != nil && len(*cat.OpensAt) >= 5 {
				hhmm := (*cat.OpensAt)[:5]
				cp.OpensAt = &hhmm
			}
		}
	}
	return cp
}

func (m *memStore) Get(_ context.Context, id int64) (*domain.Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checklists[id]
	if !ok {
		return nil, apperrors.NotFound("checklist")
	}
	out := m.joinedLocked(c)
	return &out, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id int64) (*domain.Checklist, error) {
	return m.Get(ctx, id)
}

func (m *memStore) List(_ context.Context, f domain.ChecklistFilter) ([]domain.Checklist, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []domain.Checklist{}
	for _, id := range sortedIDs(m.checklists) {
		c := m.joinedLocked(m.checklists[id])
		switch {
		case f.OrganizationID != nil && c.OrganizationID != *f.OrganizationID,
			f.SiteIDs != nil && !containsID(f.SiteIDs, c.SiteID),
			f.CategoryID != nil && (c.CategoryID == nil || *c.CategoryID != *f.CategoryID),
			f.Status != nil && f.Today == nil && c.Status != *f.Status,
			f.Status != nil && f.Today != nil &&
				rollup.Status(c.ChecklistDate, *f.Today, c.CompletedItems, c.TotalItems) != *f.Status,
			f.From != nil && c.ChecklistDate.Before(*f.From),
			f.To != nil && c.ChecklistDate.After(*f.To),
			f.IsEvent != nil && c.IsEvent != *f.IsEvent:
			continue
		}
		all = append(all, c)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ChecklistDate.After(all[j].ChecklistDate) })

	total := len(all)
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			all = all[:0]
		} else {
			all = all[f.Offset:]
		}
	}
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *memStore) itemLocked(it *domain.ChecklistItem) domain.ChecklistItem {
	cp := *it
	cp.AllocatedDepartments, cp.HasDynamicForm = nil, false
	if it.TaskID != nil {
		if t, ok := m.tasks[*it.TaskID]; ok {
			cp.AllocatedDepartments = t.AllocatedDepartments
			cp.HasDynamicForm = t.HasDynamicForm
		}
	}
	return cp
}

func (m *memStore) ListItems(_ context.Context, checklistID int64) ([]domain.ChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.ChecklistItem{}
	for _, id := range sortedIDs(m.items) {
		if it := m.items[id]; it.ChecklistID == checklistID {
			out = append(out, m.itemLocked(it))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *memStore) GetItem(_ context.Context, id int64) (*domain.ChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("checklist item")
	}
	out := m.itemLocked(it)
	return &out, nil
}

func (m *memStore) GetItemForUpdate(ctx context.Context, id int64) (*domain.ChecklistItem, error) {
	return m.GetItem(ctx, id)
}

func (m *memStore) CompleteItem(_ context.Context, it *domain.ChecklistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[it.ID]
	if !ok {
		return apperrors.NotFound("checklist item")
	}
	stored.IsCompleted = true
	stored.CompletedAt = it.CompletedAt
	stored.CompletedByID = it.CompletedByID
	if it.Notes != nil {
		stored.Notes = it.Notes
	}
	if it.PhotoURL != nil {
		stored.PhotoURL = it.PhotoURL
	}
	stored.ItemData = it.ItemData
	stored.UpdatedAt = m.now()
	it.Notes, it.PhotoURL, it.IsCompleted = stored.Notes, stored.PhotoURL, true
	return nil
}

func (m *memStore) CountItems(_ context.Context, checklistID int64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, done := 0, 0
	for _, it := range m.items {
		if it.ChecklistID == checklistID {
			total++
			if it.IsCompleted {
				done++
			}
		}
	}
	return total, done, nil
}

func (m *memStore) UpdateRollup(_ context.Context, c *domain.Checklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.checklists[c.ID]
	if !ok {
		return apperrors.NotFound("checklist")
	}
	stored.TotalItems, stored.CompletedItems, stored.Status = c.TotalItems, c.CompletedItems, c.Status
	stored.CompletedByID, stored.CompletedAt = c.CompletedByID, c.CompletedAt
	stored.UpdatedAt = m.now()
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *memStore) MarkOverdue(_ context.Context, today domain.Date) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.checklists {
		if c.ChecklistDate.Before(today) && (c.Status == domain.StatusPending || c.Status == domain.StatusInProgress) {
			c.Status = domain.StatusOverdue
			n++
		}
	}
	return n, nil
}

// --- responses ---

func (m *memStore) ListByItem(_ context.Context, itemID int64) ([]domain.TaskFieldResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.TaskFieldResponse{}
	for _, id := range sortedIDs(m.responses) {
		if r := m.responses[id]; r.ChecklistItemID == itemID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, r *domain.TaskFieldResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, x := range m.responses {
		if x.ChecklistItemID != r.ChecklistItemID || x.TaskFieldID == nil || r.TaskFieldID == nil || *x.TaskFieldID != *r.TaskFieldID {
			continue
		}
		defectID := x.AutoDefectID
		if defectID == nil {
			defectID = r.AutoDefectID
		}
		created := x.CreatedAt
		*x = *r
		x.ID, x.CreatedAt, x.UpdatedAt, x.AutoDefectID = id, created, m.now(), defectID
		r.ID, r.CreatedAt, r.UpdatedAt, r.AutoDefectID = id, created, x.UpdatedAt, defectID
		return nil
	}
	r.ID = m.id()
	r.CreatedAt, r.UpdatedAt = m.now(), m.now()
	cp := *r
	m.responses[r.ID] = &cp
	return nil
}

func (m *memStore) DeleteStale(_ context.Context, itemID int64, keep []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.responses {
		if r.ChecklistItemID != itemID || r.AutoDefectID != nil {
			continue
		}
		if r.TaskFieldID != nil && containsID(keep, *r.TaskFieldID) {
			continue
		}
		delete(m.responses, id)
		n++
	}
	return n, nil
}

// --- defects ---

func (m *memStore) Create(_ context.Context, d *domain.Defect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Status == "" {
		d.Status = domain.DefectOpen
	}
	d.ID = m.id()
	d.CreatedAt, d.UpdatedAt = m.now(), m.now()
	cp := *d
	m.defects[d.ID] = &cp
	return nil
}

func (m *memStore) getDefect(id int64) (*domain.Defect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.defects[id]
	if !ok {
		return nil, apperrors.NotFound("defect")
	}
	cp := *d
	return &cp, nil
}

// defectStore resolves the method names the defect port shares with the
// checklist port.
type defectStore struct{ *memStore }

func (s defectStore) Get(_ context.Context, id int64) (*domain.Defect, error) {
	return s.getDefect(id)
}

func (s defectStore) GetForUpdate(_ context.Context, id int64) (*domain.Defect, error) {
	return s.getDefect(id)
}

func (s defectStore) List(_ context.Context, f domain.DefectFilter) ([]domain.Defect, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Defect{}
	for _, id := range sortedIDs(s.defects) {
		d := s.defects[id]
		switch {
		case f.OrganizationID != nil && d.OrganizationID != *f.OrganizationID,
			f.SiteIDs != nil && !containsID(f.SiteIDs, d.SiteID),
			f.Status != nil && d.Status != *f.Status,
			f.Severity != nil && d.Severity != *f.Severity:
			continue
		}
		if f.ChecklistID != nil {
			if d.ChecklistItemID == nil {
				continue
			}
			it, ok := s.items[*d.ChecklistItemID]
			if !ok || it.ChecklistID != *f.ChecklistID {
				continue
			}
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (s defectStore) Update(_ context.Context, d *domain.Defect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defects[d.ID]; !ok {
		return apperrors.NotFound("defect")
	}
	d.UpdatedAt = s.now()
	cp := *d
	s.defects[d.ID] = &cp
	return nil
}

func (s defectStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defects[id]; !ok {
		return apperrors.NotFound("defect")
	}
	delete(s.defects, id)
	return nil
}

// --- stats ---

func (m *memStore) SiteStats(_ context.Context, siteIDs []int64, since, overdueBefore time.Time) ([]rollup.SiteStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []rollup.SiteStats{}
	for _, id := range sortedIDs(m.sites) {
		if !containsID(siteIDs, id) {
			continue
		}
		s := m.sites[id]
		st := rollup.SiteStats{SiteID: s.ID, OrganizationID: s.OrganizationID, SiteName: s.Name}
		for _, c := range m.checklists {
			if c.SiteID == id && !c.CreatedAt.Before(since) {
				st.TotalChecklists++
				if c.Status == domain.StatusCompleted {
					st.CompletedChecklists++
				}
			}
		}
		for _, d := range m.defects {
			if d.SiteID == id && d.Status != domain.DefectClosed {
				st.OpenDefects++
				if d.CreatedAt.Before(overdueBefore) {
					st.OverdueDefects++
				}
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// --- harness ---

var (
	_ Transactor     = (*memStore)(nil)
	_ SiteStore      = (*memStore)(nil)
	_ TemplateStore  = (*memStore)(nil)
	_ ChecklistStore = (*memStore)(nil)
	_ ResponseStore  = (*memStore)(nil)
	_ StatsStore     = (*memStore)(nil)
	_ DefectStore    = defectStore{}
)

// harness wires every service over one memStore with a movable clock.
type harness struct {
	t     *testing.T
	now   time.Time
	store *memStore
	sent  *testutil.MockPublisher

	templates   *TemplateService
	scheduler   *Scheduler
	submissions *SubmissionService
	checklists  *ChecklistService
	rag         *RAGService
	defects     *DefectService
	generator   *DailyGenerator
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{t: t, now: now, sent: testutil.NewMockPublisher()}
	clock := func() time.Time { return h.now }
	h.store = newMemStore(clock)

	log := logger.Nop()
	cal := NewCalendar(clock, time.UTC)
	pub := events.NewPublisher(h.sent, log)
	ds := defectStore{h.store}

	h.templates = NewTemplateService(h.store, h.store, log)
	h.scheduler = NewScheduler(h.store, h.store, h.store, h.store, pub, nil, cal, log)
	h.submissions = NewSubmissionService(h.store, h.store, h.store, h.store, ds, pub, nil, cal, log)
	h.checklists = NewChecklistService(h.store, h.store, cal, log)
	h.rag = NewRAGService(h.store, h.store, cal, log)
	h.defects = NewDefectService(h.store, h.store, h.store, ds, pub, nil, cal, log)

	gen, err := NewDailyGenerator(h.scheduler, "1 0 * * *", nil, log)
	require.NoError(t, err)
	h.generator = gen
	return h
}

func (h *harness) ctx() context.Context { return context.Background() }

func (h *harness) today() domain.Date { return domain.DateOf(h.now, time.UTC) }

// Scopes used across the service tests.
func superAdmin() tenant.Scope {
	return tenant.Scope{UserID: 1, Role: tenant.RoleSuperAdmin, AssignedSiteIDs: []int64{}}
}

func orgAdmin(orgID int64) tenant.Scope {
	return tenant.Scope{UserID: 2, Role: tenant.RoleOrgAdmin, OrganizationID: &orgID, AssignedSiteIDs: []int64{}}
}

func siteUser(orgID int64, dept tenant.Department, sites ...int64) tenant.Scope {
	return tenant.Scope{
		UserID: 3, Role: tenant.RoleSiteUser, OrganizationID: &orgID,
		Department: &dept, AssignedSiteIDs: sites,
	}
}

func ptr[T any](v T) *T { return &v }

// category creates an active category owned by orgID through the service.
func (h *harness) category(orgID int64, name string, freq domain.Frequency, opensAt *string) *domain.Category {
	h.t.Helper()
	c, err := h.templates.CreateCategory(h.ctx(), orgAdmin(orgID), CategoryInput{
		Name: name, Frequency: freq, OpensAt: opensAt,
	})
	require.NoError(h.t, err)
	return c
}

func (h *harness) task(orgID, categoryID int64, name string, depts ...string) *domain.Task {
	h.t.Helper()
	t, err := h.templates.CreateTask(h.ctx(), orgAdmin(orgID), categoryID, TaskInput{
		Name: name, AllocatedDepartments: depts,
	})
	require.NoError(h.t, err)
	return t
}

func (h *harness) field(orgID, taskID int64, in FieldInput) *domain.TaskField {
	h.t.Helper()
	f, err := h.templates.CreateField(h.ctx(), orgAdmin(orgID), taskID, in)
	require.NoError(h.t, err)
	return f
}

// generate runs the scheduler for today as the organization's admin and
// returns the checklists of site.
func (h *harness) generate(orgID int64) *GenerationResult {
	h.t.Helper()
	res, err := h.scheduler.InstantiateForDate(h.ctx(), orgAdmin(orgID), h.today(), nil, nil)
	require.NoError(h.t, err)
	return res
}

func (h *harness) checklistsOf(siteID int64) []domain.Checklist {
	h.t.Helper()
	list, _, err := h.store.List(h.ctx(), domain.ChecklistFilter{SiteIDs: []int64{siteID}})
	require.NoError(h.t, err)
	return list
}

func (h *harness) items(checklistID int64) []domain.ChecklistItem {
	h.t.Helper()
	items, err := h.store.ListItems(h.ctx(), checklistID)
	require.NoError(h.t, err)
	return items
}
