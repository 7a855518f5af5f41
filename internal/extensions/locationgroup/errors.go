package locationgroup

import "errors"

// Domain errors for the locationgroup package.
var (
	// ErrLocationNotFound is returned when a light's recorded location is
	// missing from the tree.
	ErrLocationNotFound = errors.New("locationgroup: location not found")

	// ErrGroupNotFound is returned when a light's recorded group is missing
	// from its location.
	ErrGroupNotFound = errors.New("locationgroup: group not found")
)
