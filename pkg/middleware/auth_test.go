package middleware

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

const testToken = "concord_dGVzdC10b2tlbg"

func newAuthFixture(t *testing.T, cacheSize int) (*Authenticator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service := identity.NewService(identity.NewStore(db), nil, 24*time.Hour)
	return NewAuthenticator(service, cacheSize, time.Minute), mock
}

func expectTokenLookup(mock sqlmock.Sqlmock) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT u.id, u.username").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "full_name", "role", "created_at", "updated_at",
		}).AddRow(4, "wren", "wren@example.com", "Wren W", "project_user", now, now))
	mock.ExpectQuery("SELECT capability, enabled FROM user_capabilities").
		WillReturnRows(sqlmock.NewRows([]string{"capability", "enabled"}))
	mock.ExpectExec("UPDATE api_tokens SET last_used_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func protectedHandler(t *testing.T, hits *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		actor, ok := identity.ActorFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "wren", actor.Username)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticatorResolvesActor(t *testing.T) {
	auth, mock := newAuthFixture(t, 16)
	expectTokenLookup(mock)

	var hits int
	handler := auth.Middleware(protectedHandler(t, &hits))

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticatorCachesTokens(t *testing.T) {
	auth, mock := newAuthFixture(t, 16)
	// One DB round trip serves both requests.
	expectTokenLookup(mock)

	var hits int
	handler := auth.Middleware(protectedHandler(t, &hits))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/projects", nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 2, hits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticatorInvalidate(t *testing.T) {
	auth, mock := newAuthFixture(t, 16)
	expectTokenLookup(mock)
	expectTokenLookup(mock)

	var hits int
	handler := auth.Middleware(protectedHandler(t, &hits))

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	auth.Invalidate(testToken)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 2, hits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticatorRejectsMissingHeader(t *testing.T) {
	auth, _ := newAuthFixture(t, 16)
	handler := auth.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	tests := []struct {
		name, header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/projects", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthenticatorRejectsBadToken(t *testing.T) {
	auth, _ := newAuthFixture(t, 16)
	handler := auth.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	// Wrong prefix fails format validation before any DB work.
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer legacy_dGVzdA")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
