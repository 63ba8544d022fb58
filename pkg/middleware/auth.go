package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/observability"
)

// Authenticator resolves Bearer tokens to actors. Validated tokens sit in a
// bounded expirable LRU so the common case skips the token table; the TTL
// bounds how long a revoked token keeps working from the cache.
type Authenticator struct {
	identities *identity.Service
	cache      *expirable.LRU[string, *identity.User]
}

// NewAuthenticator builds an authenticator with a token cache of the given
// size and TTL. A zero size disables caching.
func NewAuthenticator(identities *identity.Service, cacheSize int, cacheTTL time.Duration) *Authenticator {
	a := &Authenticator{identities: identities}
	if cacheSize > 0 {
		a.cache = expirable.NewLRU[string, *identity.User](cacheSize, nil, cacheTTL)
	}
	return a
}

// Middleware authenticates every request. Requests without a valid Bearer
// token are rejected with 401; on success the actor lands in the request
// context for handlers and the policy.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}

		actor, err := a.resolve(r, token)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := identity.WithActor(r.Context(), actor)
		ctx = observability.WithActorID(ctx, strconv.FormatInt(actor.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(r *http.Request, token string) (*identity.User, error) {
	if a.cache != nil {
		if actor, ok := a.cache.Get(token); ok {
			return actor, nil
		}
	}
	actor, err := a.identities.Authenticate(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		a.cache.Add(token, actor)
	}
	return actor, nil
}

// Invalidate drops a token from the cache, for use when a token is revoked.
func (a *Authenticator) Invalidate(token string) {
	if a.cache != nil {
		a.cache.Remove(token)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
