package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-hq/concord/pkg/identity"
)

func newAuditRouter(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	router := mux.NewRouter()
	NewHandlers(NewStore(db)).RegisterRoutes(router)
	return router, mock
}

func asUser(r *http.Request, user *identity.User) *http.Request {
	return r.WithContext(identity.WithActor(r.Context(), user))
}

func TestListRequiresAdmin(t *testing.T) {
	router, _ := newAuditRouter(t)

	req := asUser(httptest.NewRequest(http.MethodGet, "/audit", nil),
		&identity.User{ID: 2, Role: identity.RoleManagement})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListRequiresActor(t *testing.T) {
	router, _ := newAuditRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListReturnsEntries(t *testing.T) {
	router, mock := newAuditRouter(t)

	mock.ExpectQuery("SELECT id, actor_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "actor_id", "action", "method", "path", "status_code", "request_id", "remote_addr", "created_at",
		}).AddRow(int64(1), int64(4), "create", "POST", "/api/v1/projects", 201, "req-9", "10.0.0.1", time.Now()))

	req := asUser(httptest.NewRequest(http.MethodGet, "/audit", nil),
		&identity.User{ID: 1, Role: identity.RoleAdmin})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"/api/v1/projects"`)
}

func TestPurgeRequiresCutoff(t *testing.T) {
	router, _ := newAuditRouter(t)

	req := asUser(httptest.NewRequest(http.MethodDelete, "/audit", nil),
		&identity.User{ID: 1, Role: identity.RoleAdmin})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurgeDeletes(t *testing.T) {
	router, mock := newAuditRouter(t)

	mock.ExpectExec("DELETE FROM audit_log").
		WillReturnResult(sqlmock.NewResult(0, 8))

	req := asUser(httptest.NewRequest(http.MethodDelete, "/audit?before=2026-01-01T00:00:00Z", nil),
		&identity.User{ID: 1, Role: identity.RoleAdmin})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":8`)
}
