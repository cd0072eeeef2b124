package service

import "errors"

// Service errors.
var (
	// ErrNotStarted is returned when an operation runs before Start.
	ErrNotStarted = errors.New("service not started")

	// ErrUnknownSubject is returned for operations on an unregistered
	// subject.
	ErrUnknownSubject = errors.New("unknown subject")

	// ErrInvalidSubject is returned when a subject registration is
	// missing required fields.
	ErrInvalidSubject = errors.New("invalid subject")
)
