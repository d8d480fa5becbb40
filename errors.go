package shiurhub

import "errors"

var (
	// ErrNotFound is returned when a record or index entry does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when no valid identity accompanies a protected action
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an identity is present but lacks permission
	ErrForbidden = errors.New("forbidden")
	// ErrConfiguration is returned for missing credentials or broken wiring; never retried
	ErrConfiguration = errors.New("configuration error")
	// ErrCorrupted is returned when a stored record is missing required fields
	ErrCorrupted = errors.New("corrupted record")
)
