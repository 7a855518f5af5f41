package mqtt

import "errors"

// Broker errors. Operations wrap these, so compare with errors.Is.
var (
	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: broker link down")

	// ErrConnectionFailed is returned by Connect when the first dial fails.
	ErrConnectionFailed = errors.New("mqtt: could not reach broker")

	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrPayloadTooLarge is returned before a publish that the broker
	// would reject.
	ErrPayloadTooLarge = errors.New("mqtt: payload exceeds broker limit")
)
