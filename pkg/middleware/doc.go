// Package middleware holds the HTTP middleware chain: request IDs, request
// logging and metrics, Bearer-token authentication with a bounded token
// cache, and per-caller rate limiting (in-process or Redis-backed).
//
// Ordering matters: RequestID and Logging run outermost so every line is
// tagged, authentication runs before anything that needs an actor, and rate
// limiting runs after authentication so limits key on the actor rather than
// the client address.
package middleware
