// Package correlation pairs outbound requests with device replies.
//
// A request sent with AckRequired or ResponseRequired is registered under
// its (target, sequence) pair before it leaves the socket. Inbound frames
// are fed to Dispatch by the service loop; a frame whose source matches this
// client and whose target and sequence match a pending request clears the
// ack and/or response expectation. When both are satisfied the waiting
// caller is released with the response payload.
//
// Each attempt waits Timeout (100ms). On expiry the identical frame is sent
// again, up to Attempts sends in total (3). The sequence number and the
// caller's side effect are never re-applied on a retry.
package correlation
