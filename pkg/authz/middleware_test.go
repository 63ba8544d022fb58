package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/concord-hq/concord/pkg/identity"
)

type fakeCapabilityChecker struct {
	granted map[identity.Capability]bool
}

func (f *fakeCapabilityChecker) CheckCapability(_ *identity.User, capability identity.Capability) bool {
	return f.granted[capability]
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireCapability(t *testing.T) {
	checker := &fakeCapabilityChecker{granted: map[identity.Capability]bool{
		identity.CapViewReports: true,
	}}

	router := mux.NewRouter()
	sub := router.PathPrefix("/reports").Subrouter()
	sub.Use(RequireCapability(checker, identity.CapViewReports))
	sub.Handle("", okHandler()).Methods(http.MethodGet)

	denied := mux.NewRouter()
	deniedSub := denied.PathPrefix("/reports").Subrouter()
	deniedSub.Use(RequireCapability(checker, identity.CapUseTimeTracker))
	deniedSub.Handle("", okHandler()).Methods(http.MethodGet)

	t.Run("no actor gets 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/reports", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("actor with capability passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/reports", nil)
		req = req.WithContext(identity.WithActor(req.Context(), worker))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("actor without capability gets 403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/reports", nil)
		req = req.WithContext(identity.WithActor(req.Context(), worker))
		rec := httptest.NewRecorder()
		denied.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	router := mux.NewRouter()
	sub := router.PathPrefix("/admin").Subrouter()
	sub.Use(RequireRole(identity.RoleManagement))
	sub.Handle("", okHandler()).Methods(http.MethodGet)

	tests := []struct {
		name  string
		actor *identity.User
		want  int
	}{
		{"admin passes management gate", admin, http.StatusOK},
		{"management passes management gate", manager, http.StatusOK},
		{"project user blocked", worker, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req = req.WithContext(identity.WithActor(req.Context(), tt.actor))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
