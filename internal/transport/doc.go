// Package transport owns the UDP sockets used to talk to lights.
//
// A UDPTransport binds one local port, decodes every datagram into protocol
// frames and hands them, in arrival order, to a single callback. Sends go to
// the device port (56700) of the address supplied by the caller; a broadcast
// is simply a send to 255.255.255.255.
//
// The client normally runs two transports: one on an ephemeral port that is
// used for all sends, and one bound to the legacy device port (56700) that
// only listens, because some firmware replies to that port regardless of
// the request's source port.
//
// # Reconnection
//
// A fatal socket error marks the transport disconnected, closes the socket
// and rebinds after a fixed delay (2s by default), forever, until Close is
// called. Send returns ErrNotConnected while the socket is down.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The message callback runs on a
// single delivery goroutine.
package transport
