package correlation

import "errors"

// Domain errors for the correlation package.
var (
	// ErrTimeout is returned when no matching reply arrives after every attempt.
	ErrTimeout = errors.New("correlation: request timed out")

	// ErrAbandoned is returned to waiters when the engine is closed or the
	// caller's context ends first.
	ErrAbandoned = errors.New("correlation: request abandoned")

	// ErrDuplicateRequest is returned when a (target, sequence) pair is
	// already awaiting a reply.
	ErrDuplicateRequest = errors.New("correlation: request already pending")
)
