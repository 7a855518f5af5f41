// Package protocol implements the binary wire format spoken by LIFX-compatible
// lights on the local network.
//
// Every datagram carries one or more frames. A frame is a fixed 36-byte
// little-endian header followed by a payload whose layout is selected by the
// header's message type:
//
//	 0      2      4          8                 16         22    23    24         32     34     36
//	┌──────┬──────┬──────────┬─────────────────┬──────────┬─────┬─────┬──────────┬──────┬──────┐
//	│ size │ prot │  source  │     target      │ reserved │flags│ seq │ reserved │ type │ rsvd │
//	└──────┴──────┴──────────┴─────────────────┴──────────┴─────┴─────┴──────────┴──────┴──────┘
//
// The protocol field holds the protocol number (1024) in its low 12 bits and
// two addressing flags above it. Unicast frames set bit 12, broadcast frames
// set bits 12 and 13 and use target 0.
//
// # Usage
//
//	msg := protocol.NewMessage(protocol.LightGet{}, source, target, seq, false, true)
//	frame := protocol.Encode(msg)
//
//	msgs, err := protocol.DecodeFrames(datagram)
//
// Unknown message types are skipped by their declared size so that one
// unrecognised frame does not hide the frames that follow it.
//
// # Thread Safety
//
// All functions are pure; Message values may be shared between goroutines
// as long as nobody mutates them.
package protocol
