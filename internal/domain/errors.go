package domain

import "errors"

var (
	// ErrValidation marks malformed or incomplete input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup that matched no record owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation rejected by the current record state.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized marks a caller without the required capability.
	ErrUnauthorized = errors.New("unauthorized")
)
