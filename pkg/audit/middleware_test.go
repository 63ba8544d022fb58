package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-hq/concord/pkg/identity"
)

func testHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestRecorderAuditsMutations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO audit_log").
		WithArgs(int64(9), ActionUpdate, "PUT", "/api/v1/projects/3", 200, "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	rec := NewRecorder(NewStore(db))
	handler := rec.Middleware(testHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/projects/3", nil)
	req = req.WithContext(identity.WithActor(req.Context(), &identity.User{ID: 9, Role: identity.RoleManagement}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorderSkipsReads(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := NewRecorder(NewStore(db))
	handler := rec.Middleware(testHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorderKeepsResponseOnStoreFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO audit_log").
		WillReturnError(assert.AnError)

	rec := NewRecorder(NewStore(db))
	handler := rec.Middleware(testHandler(http.StatusCreated))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRecorderCapturesStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO audit_log").
		WithArgs(nil, ActionDelete, "DELETE", "/api/v1/events/5", 404, "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), time.Now()))

	rec := NewRecorder(NewStore(db))
	handler := rec.Middleware(testHandler(http.StatusNotFound))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/events/5", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
