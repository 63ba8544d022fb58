package identity

import (
	"context"

	"github.com/concord-hq/concord/pkg/contextkeys"
)

// WithActor stores the authenticated user in the context
func WithActor(ctx context.Context, user *User) context.Context {
	return contextkeys.WithActor(ctx, user)
}

// ActorFromContext retrieves the authenticated user from the context
func ActorFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(contextkeys.ActorKey).(*User)
	return user, ok
}
