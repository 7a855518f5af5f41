package history

import "errors"

// Domain errors for the history package.
var (
	// ErrLightIDRequired is returned when a record has no light id.
	ErrLightIDRequired = errors.New("history: light id is required")

	// ErrInvalidRetention is returned when Prune is given a non-positive age.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)
