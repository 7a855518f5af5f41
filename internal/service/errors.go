package service

import "errors"

// Domain errors for the service package.
var (
	// ErrNoTransport is returned by New when no transport is supplied.
	ErrNoTransport = errors.New("service: transport is required")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("service: already started")

	// ErrExtensionFailed wraps an extension's Start error.
	ErrExtensionFailed = errors.New("service: extension failed to start")
)
