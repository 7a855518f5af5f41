package light

import "errors"

// Domain errors for the light package.
var (
	// ErrInvalidID is returned when a device id string cannot be parsed.
	ErrInvalidID = errors.New("light: invalid device id")

	// ErrUnexpectedResponse is returned when a reply has the wrong payload type.
	ErrUnexpectedResponse = errors.New("light: unexpected response type")

	// ErrUnsupported is returned when a command needs a capability the
	// product does not have.
	ErrUnsupported = errors.New("light: operation not supported by product")
)
