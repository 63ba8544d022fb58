package tracker

import (
	"errors"
)

// Workflow error taxonomy. Handlers map these to HTTP statuses; nothing in
// this package panics for control flow.
var (
	// ErrPermissionDenied wraps an authorization denial with its reason.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound marks an absent target entity.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks rejected input, e.g. progress outside [0,100].
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an integrity conflict that could not be resolved
	// idempotently.
	ErrConflict = errors.New("conflict")
)
