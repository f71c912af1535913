package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestError(t *testing.T) {
	t.Run("app error keeps code, status and details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Error(rec, errors.Rejection(errors.CodeIncompleteSubmission, map[string]string{"field_3": "required"}))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decodeBody(t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, errors.CodeIncompleteSubmission, resp.Error.Code)
		assert.Equal(t, "required", resp.Error.Details["field_3"])
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Error(rec, fmt.Errorf("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decodeBody(t, rec)
		assert.Equal(t, errors.CodeInternal, resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "pq")
	})
}

func TestFriendlyError(t *testing.T) {
	rec := httptest.NewRecorder()
	FriendlyError(rec, errors.Internal("deadlock detected on checklist_items"))
	resp := decodeBody(t, rec)
	assert.Equal(t, errors.CodeInternal, resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "deadlock")

	rec = httptest.NewRecorder()
	FriendlyError(rec, errors.NotFound("checklist"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidate(t *testing.T) {
	type payload struct {
		Name     string `json:"name" validate:"required"`
		OpensAt  string `json:"opens_at" validate:"omitempty,timeofday"`
		Date     string `json:"date" validate:"omitempty,date"`
		Severity string `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	}

	assert.NoError(t, Validate(&payload{Name: "AM checks", OpensAt: "06:30", Date: "2025-01-10", Severity: "high"}))

	err := Validate(&payload{OpensAt: "25:99", Date: "10/01/2025", Severity: "urgent"})
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errors.CodeValidation, appErr.Code)
	assert.Contains(t, appErr.Details, "name")
	assert.Contains(t, appErr.Details, "opens_at")
	assert.Contains(t, appErr.Details, "date")
	assert.Contains(t, appErr.Details, "severity")
}

func TestIDParam(t *testing.T) {
	newReq := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/checklists/"+id, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	id, err := IDParam(newReq("42"), "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = IDParam(newReq("abc"), "id")
	assert.True(t, errors.HasCode(err, errors.CodeBadRequest))

	_, err = IDParam(newReq("-1"), "id")
	assert.Error(t, err)
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/checklists?site_id=5&limit=x", nil)

	siteID, err := Int64Query(req, "site_id")
	require.NoError(t, err)
	require.NotNil(t, siteID)
	assert.Equal(t, int64(5), *siteID)

	missing, err := Int64Query(req, "category_id")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = IntQuery(req, "limit", 50)
	assert.Error(t, err)

	page, err := IntQuery(req, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, page)
}

func TestMiddlewareChain(t *testing.T) {
	var seenRequestID string
	var seenUser int64

	h := RequestID(Logger(logger.Nop())(Recoverer(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRequestID = GetRequestID(r.Context())
		SetUserID(r.Context(), 9)
		seenUser = GetUserID(r.Context())
		if r.URL.Path == "/panic" {
			panic("boom")
		}
		NoContent(w)
	}))))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-1", seenRequestID)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, int64(9), seenUser)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
