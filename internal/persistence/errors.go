package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrMalformed is returned when a state file cannot be decoded.
	ErrMalformed = errors.New("persistence: malformed state file")
)
