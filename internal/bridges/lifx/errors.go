package lifx

import "errors"

// Domain errors for the lifx bridge package.
var (
	// ErrNoMQTTClient is returned by New when no MQTT client is supplied.
	ErrNoMQTTClient = errors.New("lifx: MQTT client is required")

	// ErrUnknownCommand is returned for a command name the bridge does not
	// implement.
	ErrUnknownCommand = errors.New("lifx: unknown command")

	// ErrInvalidParameter is returned when a command parameter is missing
	// or out of range.
	ErrInvalidParameter = errors.New("lifx: invalid command parameter")

	// ErrNotStarted is returned when a command arrives before Start.
	ErrNotStarted = errors.New("lifx: bridge not started")
)
