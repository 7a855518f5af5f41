// Package light holds the client-side record of one device and the
// commands that can be sent to it.
//
// # State reconciliation
//
// Every property is written from two directions: optimistically by
// commands issued through this client (SourceClient) and by state reports
// from the device (SourceDevice). A client write always wins and stamps the
// property. A device report is applied only when no client write of the same
// property happened within ClientChangeTimeout (2s), so a reply that was
// already in flight when the user changed something cannot revert the UI.
// Multi-zone colours are stamped per zone index.
//
// Listeners are told about a property only when its value actually changes,
// and always after the light's lock has been released, so a listener may
// read the light freely.
//
// # Reachability
//
// A light is reachable while its last inbound frame is younger than
// ReachableTimeout (11s). Reachability is recomputed on every inbound frame
// and on every scheduler tick.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package light
