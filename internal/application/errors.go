package application

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrBusy is returned when a sync cycle is already in progress.
	ErrBusy = errors.New("application: sync already running")
	// ErrConfigInvalid is returned when an operator file fails validation on load.
	ErrConfigInvalid = errors.New("application: configuration invalid")
	// ErrUpstreamUnavailable is returned when the calendar or controller cannot be reached.
	ErrUpstreamUnavailable = errors.New("application: upstream unavailable")
	// ErrRateLimited is returned when the calendar throttles us and no cached window exists.
	ErrRateLimited = errors.New("application: rate limited")
	// ErrRemoteScheduleMissing is returned when a door's remote schedule does not exist.
	ErrRemoteScheduleMissing = errors.New("application: remote schedule missing")
	// ErrRemoteWriteFailed is returned when a controller write does not go through.
	ErrRemoteWriteFailed = errors.New("application: remote write failed")
	// ErrStateWriteFailed is returned when a state file cannot be persisted.
	ErrStateWriteFailed = errors.New("application: state write failed")
	// ErrUnauthorized is returned when a caller lacks a valid session.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrInvalidCredentials is returned when the presented password is wrong.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrSessionExpired is returned when a session token is past its expiry.
	ErrSessionExpired = errors.New("application: session expired")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
