package audit

import (
	"net"
	"net/http"

	"github.com/concord-hq/concord/pkg/contextkeys"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/observability"
)

// Recorder is middleware that writes mutating requests to the audit trail
// after the response has been sent. Read requests pass through untouched.
// A failed write is logged but never fails the request.
type Recorder struct {
	store *Store
}

// NewRecorder creates a new audit recorder
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Middleware wraps a handler with audit recording
func (rec *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := ActionForMethod(r.Method)
		if action == "" {
			next.ServeHTTP(w, r)
			return
		}

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		entry := &Entry{
			Action:     action,
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: sw.status,
			RequestID:  contextkeys.GetRequestID(r.Context()),
			RemoteAddr: remoteHost(r),
		}
		if actor, ok := identity.ActorFromContext(r.Context()); ok {
			actorID := actor.ID
			entry.ActorID = &actorID
		}

		if err := rec.store.Record(r.Context(), entry); err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("audit entry not recorded")
		}
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
