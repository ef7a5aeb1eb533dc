package storage

import "errors"

// Store-level error conditions, mapped from backend-specific failures.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert collides with an existing
	// unique key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails before the
	// backend is reached.
	ErrInvalidInput = errors.New("invalid input")
)
