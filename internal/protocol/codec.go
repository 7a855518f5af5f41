package protocol

import (
	"errors"
	"fmt"
)

// Message is a decoded frame: header plus typed payload.
type Message struct {
	Header  Header
	Payload Payload
}

// NewMessage builds a unicast frame addressed to target.
//
// Size and Type are derived from the payload, so the header can never
// disagree with the body it describes.
//
// Parameters:
//   - payload: Message body
//   - source: Client identifier echoed by the device
//   - target: Device id
//   - sequence: Correlation value (0 for fire-and-forget)
//   - ackRequired: Ask the device for an Acknowledgement
//   - responseRequired: Ask the device for a state reply
func NewMessage(payload Payload, source uint32, target uint64, sequence uint8, ackRequired, responseRequired bool) Message {
	return Message{
		Header: Header{
			Size:             uint16(HeaderSize + payload.Size()), //nolint:gosec // largest payload is 882 bytes
			Protocol:         ProtocolNumber,
			Addressable:      true,
			Source:           source,
			Target:           target,
			AckRequired:      ackRequired,
			ResponseRequired: responseRequired,
			Sequence:         sequence,
			Type:             payload.Type(),
		},
		Payload: payload,
	}
}

// NewBroadcast builds a tagged frame for every device on the segment.
func NewBroadcast(payload Payload, source uint32) Message {
	m := NewMessage(payload, source, 0, 0, false, false)
	m.Header.Tagged = true
	return m
}

// Encode serialises m into a new buffer of exactly HeaderSize+payload size bytes.
func Encode(m Message) []byte {
	size := HeaderSize + m.Payload.Size()
	w := writer{buf: make([]byte, size)}

	h := m.Header
	h.Size = uint16(size) //nolint:gosec // bounded by payload sizes
	h.Type = m.Payload.Type()
	h.encode(&w)
	m.Payload.encode(&w)

	return w.buf
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Message) MarshalBinary() ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrSizeMismatch)
	}
	return Encode(m), nil
}

// Decode parses the frame at the start of buf.
//
// Parameters:
//   - buf: Bytes beginning at a frame boundary
//
// Returns:
//   - Message: Decoded frame
//   - int: Bytes consumed; valid with ErrUnknownType so the caller can skip
//   - error: ErrTruncated, ErrUnknownType or ErrSizeMismatch
func Decode(buf []byte) (Message, int, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Message{}, 0, err
	}

	size := int(h.Size)
	if size < HeaderSize {
		return Message{}, 0, fmt.Errorf("%w: declared size %d", ErrTruncated, size)
	}
	if size > len(buf) {
		return Message{}, 0, fmt.Errorf("%w: declared size %d, have %d", ErrTruncated, size, len(buf))
	}

	entry, ok := registry[h.Type]
	if !ok {
		return Message{Header: h}, size, fmt.Errorf("%w: %d", ErrUnknownType, uint16(h.Type))
	}

	body := buf[HeaderSize:size]
	if len(body) < entry.size {
		return Message{Header: h}, size, fmt.Errorf("%w: %s needs %d bytes, have %d",
			ErrSizeMismatch, h.Type, entry.size, len(body))
	}

	r := reader{buf: body}
	return Message{Header: h, Payload: entry.decode(&r)}, size, nil
}

// DecodeFrames decodes every frame in a datagram.
//
// Frames with unknown types or short bodies are skipped by their declared
// size. Scanning stops at the first frame that cannot be delimited; the
// frames decoded up to that point are returned with the error.
func DecodeFrames(buf []byte) ([]Message, error) {
	var msgs []Message
	for len(buf) >= HeaderSize {
		m, n, err := Decode(buf)
		switch {
		case err == nil:
			msgs = append(msgs, m)
		case errors.Is(err, ErrUnknownType), errors.Is(err, ErrSizeMismatch):
			// skip
		default:
			return msgs, err
		}
		buf = buf[n:]
	}
	return msgs, nil
}

type decoder struct {
	size   int
	decode func(r *reader) Payload
}

func empty(p Payload) decoder {
	return decoder{decode: func(*reader) Payload { return p }}
}

var registry = map[MessageType]decoder{
	TypeGetService: empty(GetService{}),
	TypeStateService: {size: 5, decode: func(r *reader) Payload {
		return StateService{Service: Service(r.u8()), Port: r.u32()}
	}},
	TypeGetHostInfo: empty(GetHostInfo{}),
	TypeStateHostInfo: {size: 14, decode: func(r *reader) Payload {
		return decodeHostInfo(r)
	}},
	TypeGetHostFirmware: empty(GetHostFirmware{}),
	TypeStateHostFirmware: {size: 20, decode: func(r *reader) Payload {
		return decodeFirmware(r)
	}},
	TypeGetWifiInfo: empty(GetWifiInfo{}),
	TypeStateWifiInfo: {size: 14, decode: func(r *reader) Payload {
		return StateWifiInfo(decodeHostInfo(r))
	}},
	TypeGetWifiFirmware: empty(GetWifiFirmware{}),
	TypeStateWifiFirmware: {size: 20, decode: func(r *reader) Payload {
		return StateWifiFirmware(decodeFirmware(r))
	}},
	TypeGetPower: empty(GetPower{}),
	TypeSetPower: {size: 2, decode: func(r *reader) Payload {
		return SetPower{Level: r.u16()}
	}},
	TypeStatePower: {size: 2, decode: func(r *reader) Payload {
		return StatePower{Level: r.u16()}
	}},
	TypeGetLabel: empty(GetLabel{}),
	TypeSetLabel: {size: LabelSize, decode: func(r *reader) Payload {
		return SetLabel{Label: r.str(LabelSize)}
	}},
	TypeStateLabel: {size: LabelSize, decode: func(r *reader) Payload {
		return StateLabel{Label: r.str(LabelSize)}
	}},
	TypeGetVersion: empty(GetVersion{}),
	TypeStateVersion: {size: 12, decode: func(r *reader) Payload {
		return StateVersion{Vendor: r.u32(), Product: r.u32(), Version: r.u32()}
	}},
	TypeGetInfo: empty(GetInfo{}),
	TypeStateInfo: {size: 24, decode: func(r *reader) Payload {
		return StateInfo{Time: r.u64(), Uptime: r.u64(), Downtime: r.u64()}
	}},
	TypeAcknowledgement: empty(Acknowledgement{}),
	TypeGetLocation:     empty(GetLocation{}),
	TypeSetLocation: {size: 56, decode: func(r *reader) Payload {
		return decodeMembership(r)
	}},
	TypeStateLocation: {size: 56, decode: func(r *reader) Payload {
		return StateLocation(decodeMembership(r))
	}},
	TypeGetGroup: empty(GetGroup{}),
	TypeSetGroup: {size: 56, decode: func(r *reader) Payload {
		return SetGroup(decodeMembership(r))
	}},
	TypeStateGroup: {size: 56, decode: func(r *reader) Payload {
		return StateGroup(decodeMembership(r))
	}},
	TypeEchoRequest: {size: EchoSize, decode: func(r *reader) Payload {
		var p EchoRequest
		r.bytes(p.Payload[:])
		return p
	}},
	TypeEchoResponse: {size: EchoSize, decode: func(r *reader) Payload {
		var p EchoResponse
		r.bytes(p.Payload[:])
		return p
	}},

	TypeLightGet: empty(LightGet{}),
	TypeLightSetColor: {size: 13, decode: func(r *reader) Payload {
		return LightSetColor{Reserved: r.u8(), Color: r.hsbk(), Duration: r.u32()}
	}},
	TypeLightSetWaveform: {size: 21, decode: func(r *reader) Payload {
		return decodeWaveform(r)
	}},
	TypeLightState: {size: 52, decode: func(r *reader) Payload {
		return LightState{
			Color:     r.hsbk(),
			Reserved:  r.i16(),
			Power:     r.u16(),
			Label:     r.str(LabelSize),
			Reserved2: r.u64(),
		}
	}},
	TypeLightGetPower: empty(LightGetPower{}),
	TypeLightSetPower: {size: 6, decode: func(r *reader) Payload {
		return LightSetPower{Level: r.u16(), Duration: r.u32()}
	}},
	TypeLightStatePower: {size: 2, decode: func(r *reader) Payload {
		return LightStatePower{Level: r.u16()}
	}},
	TypeLightSetWaveformOptional: {size: 25, decode: func(r *reader) Payload {
		return LightSetWaveformOptional{
			LightSetWaveform: decodeWaveform(r),
			SetHue:           r.boolean(),
			SetSaturation:    r.boolean(),
			SetBrightness:    r.boolean(),
			SetKelvin:        r.boolean(),
		}
	}},
	TypeGetInfrared: empty(GetInfrared{}),
	TypeStateInfrared: {size: 2, decode: func(r *reader) Payload {
		return StateInfrared{Brightness: r.u16()}
	}},
	TypeSetInfrared: {size: 2, decode: func(r *reader) Payload {
		return SetInfrared{Brightness: r.u16()}
	}},

	TypeSetColorZones: {size: 15, decode: func(r *reader) Payload {
		return SetColorZones{
			StartIndex: r.u8(),
			EndIndex:   r.u8(),
			Color:      r.hsbk(),
			Duration:   r.u32(),
			Apply:      ApplicationRequest(r.u8()),
		}
	}},
	TypeGetColorZones: {size: 2, decode: func(r *reader) Payload {
		return GetColorZones{StartIndex: r.u8(), EndIndex: r.u8()}
	}},
	TypeStateZone: {size: 10, decode: func(r *reader) Payload {
		return StateZone{Count: r.u8(), Index: r.u8(), Color: r.hsbk()}
	}},
	TypeStateMultiZone: {size: 66, decode: func(r *reader) Payload {
		p := StateMultiZone{Count: r.u8(), Index: r.u8()}
		for i := range p.Colors {
			p.Colors[i] = r.hsbk()
		}
		return p
	}},

	TypeGetDeviceChain: empty(GetDeviceChain{}),
	TypeStateDeviceChain: {size: 882, decode: func(r *reader) Payload {
		p := StateDeviceChain{StartIndex: r.u8()}
		for i := range p.TileDevices {
			p.TileDevices[i] = decodeTileDevice(r)
		}
		p.TotalCount = r.u8()
		return p
	}},
	TypeGetTileState64: {size: 6, decode: func(r *reader) Payload {
		return GetTileState64{
			TileIndex: r.u8(), Length: r.u8(), Reserved: r.u8(),
			X: r.u8(), Y: r.u8(), Width: r.u8(),
		}
	}},
	TypeStateTileState64: {size: 517, decode: func(r *reader) Payload {
		p := StateTileState64{
			TileIndex: r.u8(), Reserved: r.u8(),
			X: r.u8(), Y: r.u8(), Width: r.u8(),
		}
		for i := range p.Colors {
			p.Colors[i] = r.hsbk()
		}
		return p
	}},
	TypeSetTileState64: {size: 522, decode: func(r *reader) Payload {
		p := SetTileState64{
			TileIndex: r.u8(), Length: r.u8(), Reserved: r.u8(),
			X: r.u8(), Y: r.u8(), Width: r.u8(),
			Duration: r.u32(),
		}
		for i := range p.Colors {
			p.Colors[i] = r.hsbk()
		}
		return p
	}},
}

// Known reports whether t has a registered decoder.
func Known(t MessageType) bool {
	_, ok := registry[t]
	return ok
}
