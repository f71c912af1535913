package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/httputil"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

type page struct {
	number, size int
}

func (p page) limit() int  { return p.size }
func (p page) offset() int { return (p.number - 1) * p.size }

func (p page) meta(total int) *httputil.Meta {
	return &httputil.Meta{Page: p.number, PerPage: p.size, Total: int64(total)}
}

func pageQuery(r *http.Request) (page, error) {
	n, err := httputil.IntQuery(r, "page", 1)
	if err != nil {
		return page{}, err
	}
	size, err := httputil.IntQuery(r, "per_page", defaultPerPage)
	if err != nil {
		return page{}, err
	}
	if n < 1 {
		return page{}, apperrors.Validation(map[string]string{"page": "must be at least 1"})
	}
	if size < 1 || size > maxPerPage {
		return page{}, apperrors.Validation(map[string]string{"per_page": "must be between 1 and 200"})
	}
	return page{number: n, size: size}, nil
}

// idsQuery reads a list of ids given as repeated or comma separated values.
func idsQuery(r *http.Request, name string) ([]int64, error) {
	var out []int64
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, apperrors.Validation(map[string]string{name: "must be a list of ids"})
			}
			out = append(out, id)
		}
	}
	return out, nil
}

func dateQuery(r *http.Request, name string) (*domain.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, apperrors.Validation(map[string]string{name: "must be a date (YYYY-MM-DD)"})
	}
	return &d, nil
}

func boolQuery(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.Validation(map[string]string{name: "must be true or false"})
	}
	return &b, nil
}

func checklistFilter(r *http.Request) (domain.ChecklistFilter, page, error) {
	var f domain.ChecklistFilter
	p, err := pageQuery(r)
	if err != nil {
		return f, p, err
	}
	f.Limit, f.Offset = p.limit(), p.offset()

	if f.SiteIDs, err = idsQuery(r, "site_id"); err != nil {
		return f, p, err
	}
	if f.CategoryID, err = httputil.Int64Query(r, "category_id"); err != nil {
		return f, p, err
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.ChecklistStatus(raw)
		if !s.Valid() {
			return f, p, apperrors.Validation(map[string]string{"status": "must be pending, in_progress, completed or overdue"})
		}
		f.Status = &s
	}
	if f.From, err = dateQuery(r, "from"); err != nil {
		return f, p, err
	}
	if f.To, err = dateQuery(r, "to"); err != nil {
		return f, p, err
	}
	if f.IsEvent, err = boolQuery(r, "is_event"); err != nil {
		return f, p, err
	}
	return f, p, nil
}

func defectFilter(r *http.Request) (domain.DefectFilter, page, error) {
	var f domain.DefectFilter
	p, err := pageQuery(r)
	if err != nil {
		return f, p, err
	}
	f.Limit, f.Offset = p.limit(), p.offset()

	if f.SiteIDs, err = idsQuery(r, "site_id"); err != nil {
		return f, p, err
	}
	if f.ChecklistID, err = httputil.Int64Query(r, "checklist_id"); err != nil {
		return f, p, err
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.DefectStatus(raw)
		if !s.Valid() {
			return f, p, apperrors.Validation(map[string]string{"status": "must be open, in_progress or closed"})
		}
		f.Status = &s
	}
	if raw := r.URL.Query().Get("severity"); raw != "" {
		s := domain.Severity(raw)
		if !s.Valid() {
			return f, p, apperrors.Validation(map[string]string{"severity": "must be low, medium, high or critical"})
		}
		f.Severity = &s
	}
	return f, p, nil
}
