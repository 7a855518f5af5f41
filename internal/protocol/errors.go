package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrTruncated is returned when a buffer ends before the frame it
	// announces, or a frame declares a size smaller than its header.
	ErrTruncated = errors.New("protocol: truncated frame")

	// ErrUnknownType is returned when a frame carries a message type with
	// no registered decoder. The frame can be skipped by its declared size.
	ErrUnknownType = errors.New("protocol: unknown message type")

	// ErrSizeMismatch is returned when a payload does not match the fixed
	// size of its message type.
	ErrSizeMismatch = errors.New("protocol: payload size mismatch")
)
