package transport

import "errors"

// Domain errors for the transport package.
var (
	// ErrNotConnected is returned by Send while the socket is closed or
	// being rebound.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrBindFailed is returned when the local UDP port cannot be bound.
	ErrBindFailed = errors.New("transport: bind failed")

	// ErrSendFailed is returned when a datagram cannot be written.
	ErrSendFailed = errors.New("transport: send failed")
)
