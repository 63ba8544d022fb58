package tracker

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-hq/concord/pkg/identity"
)

func newTestRouter(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()
	svc, mock := newTestService(t)
	router := mux.NewRouter()
	NewHandlers(svc).RegisterRoutes(router)
	return router, mock
}

func asUser(r *http.Request, user *identity.User) *http.Request {
	return r.WithContext(identity.WithActor(r.Context(), user))
}

func TestHandlersRequireActor(t *testing.T) {
	router, _ := newTestRouter(t)

	requests := []struct {
		method, path string
	}{
		{http.MethodGet, "/projects"},
		{http.MethodPost, "/events"},
		{http.MethodGet, "/deliverables/7"},
		{http.MethodGet, "/dashboard"},
		{http.MethodPost, "/deliverables/7/progress"},
	}
	for _, req := range requests {
		t.Run(req.method+" "+req.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(req.method, req.path, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestGetProjectHandler(t *testing.T) {
	router, mock := newTestRouter(t)

	expectProjectFacts(mock, 10, manager.ID)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+projectColumns+" FROM projects WHERE id = $1")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "creator_id", "created_at", "updated_at",
		}).AddRow(10, "Atlas", "migration program", 2, testNow, testNow))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/projects/10", nil), manager))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Atlas"`)
}

func TestGetProjectHandlerForbidden(t *testing.T) {
	router, mock := newTestRouter(t)

	// Owned by someone else, visitor has no participation anywhere.
	expectProjectFacts(mock, 10, manager.ID)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/projects/10", nil), visitor))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateProgressHandlerValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	body := strings.NewReader(`{"progress": 150}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, "/deliverables/7/progress", body), worker))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEventHandlerBadJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("{")), manager))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkloadHandlerForbidden(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/reports/workload", nil), worker))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeliverableNotFoundHandler(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT dl.assignee_id, d.created_by").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"assignee_id", "created_by", "id", "project_id", "creator_id"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/deliverables/99", nil), manager))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
