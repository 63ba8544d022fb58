package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/concord-hq/concord/pkg/observability"
)

// RequestIDHeader is the header carrying the request ID in and out.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an ID: the caller's, when one is
// supplied, or a fresh UUID. The ID goes into the context for the loggers
// and back out on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}
