package protocol

import "fmt"

// Header layout constants.
const (
	// HeaderSize is the fixed size of every frame header in bytes.
	HeaderSize = 36

	// ProtocolNumber is the protocol version carried in the low 12 bits
	// of the protocol field.
	ProtocolNumber uint16 = 1024

	// DefaultPort is the UDP port devices listen on.
	DefaultPort = 56700

	protocolMask    uint16 = 0x0FFF
	addressableFlag uint16 = 1 << 12
	taggedFlag      uint16 = 1 << 13

	flagResponseRequired uint8 = 0x01
	flagAckRequired      uint8 = 0x02
)

// Header is the decoded 36-byte frame header.
type Header struct {
	// Size is the total frame length, header included.
	Size uint16

	// Protocol is the 12-bit protocol number (1024 for all known devices).
	Protocol uint16

	// Addressable is set on every frame this client emits.
	Addressable bool

	// Tagged marks a broadcast frame; Target is 0 when set.
	Tagged bool

	// Source identifies the client. Devices echo it in replies.
	Source uint32

	// Target is the device id (MAC in the low six bytes) or 0 for all devices.
	Target uint64

	AckRequired      bool
	ResponseRequired bool

	// Sequence pairs a reply with its request. 0 for fire-and-forget frames.
	Sequence uint8

	Type MessageType
}

// IsBroadcast reports whether the frame is addressed to every device.
func (h Header) IsBroadcast() bool {
	return h.Target == 0
}

func (h Header) encode(w *writer) {
	bits := h.Protocol & protocolMask
	if h.Addressable {
		bits |= addressableFlag
	}
	if h.Tagged {
		bits |= taggedFlag
	}

	var flags uint8
	if h.ResponseRequired {
		flags |= flagResponseRequired
	}
	if h.AckRequired {
		flags |= flagAckRequired
	}

	w.u16(h.Size)
	w.u16(bits)
	w.u32(h.Source)
	w.u64(h.Target)
	w.bytes(nil, 6) //nolint:mnd // reserved
	w.u8(flags)
	w.u8(h.Sequence)
	w.u64(0) // reserved
	w.u16(uint16(h.Type))
	w.u16(0) // reserved
}

// DecodeHeader parses the first HeaderSize bytes of buf.
//
// Parameters:
//   - buf: Raw bytes, at least HeaderSize long
//
// Returns:
//   - Header: Decoded header
//   - error: ErrTruncated if buf is too short
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, HeaderSize, len(buf))
	}

	r := reader{buf: buf}
	h := Header{Size: r.u16()}
	bits := r.u16()
	h.Protocol = bits & protocolMask
	h.Addressable = bits&addressableFlag != 0
	h.Tagged = bits&taggedFlag != 0
	h.Source = r.u32()
	h.Target = r.u64()
	r.off += 6 //nolint:mnd // reserved
	flags := r.u8()
	h.ResponseRequired = flags&flagResponseRequired != 0
	h.AckRequired = flags&flagAckRequired != 0
	h.Sequence = r.u8()
	r.off += 8 //nolint:mnd // reserved
	h.Type = MessageType(r.u16())

	return h, nil
}
