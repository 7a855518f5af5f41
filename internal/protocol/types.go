package protocol

import "fmt"

// MessageType is the 16-bit payload discriminator carried in the header.
type MessageType uint16

// Device messages.
const (
	TypeGetService        MessageType = 2
	TypeStateService      MessageType = 3
	TypeGetHostInfo       MessageType = 12
	TypeStateHostInfo     MessageType = 13
	TypeGetHostFirmware   MessageType = 14
	TypeStateHostFirmware MessageType = 15
	TypeGetWifiInfo       MessageType = 16
	TypeStateWifiInfo     MessageType = 17
	TypeGetWifiFirmware   MessageType = 18
	TypeStateWifiFirmware MessageType = 19
	TypeGetPower          MessageType = 20
	TypeSetPower          MessageType = 21
	TypeStatePower        MessageType = 22
	TypeGetLabel          MessageType = 23
	TypeSetLabel          MessageType = 24
	TypeStateLabel        MessageType = 25
	TypeGetVersion        MessageType = 32
	TypeStateVersion      MessageType = 33
	TypeGetInfo           MessageType = 34
	TypeStateInfo         MessageType = 35
	TypeAcknowledgement   MessageType = 45
	TypeGetLocation       MessageType = 48
	TypeSetLocation       MessageType = 49
	TypeStateLocation     MessageType = 50
	TypeGetGroup          MessageType = 51
	TypeSetGroup          MessageType = 52
	TypeStateGroup        MessageType = 53
	TypeEchoRequest       MessageType = 58
	TypeEchoResponse      MessageType = 59
)

// Light messages.
const (
	TypeLightGet                 MessageType = 101
	TypeLightSetColor            MessageType = 102
	TypeLightSetWaveform         MessageType = 103
	TypeLightState               MessageType = 107
	TypeLightGetPower            MessageType = 116
	TypeLightSetPower            MessageType = 117
	TypeLightStatePower          MessageType = 118
	TypeLightSetWaveformOptional MessageType = 119
	TypeGetInfrared              MessageType = 120
	TypeStateInfrared            MessageType = 121
	TypeSetInfrared              MessageType = 122
)

// Multi-zone messages.
const (
	TypeSetColorZones  MessageType = 501
	TypeGetColorZones  MessageType = 502
	TypeStateZone      MessageType = 503
	TypeStateMultiZone MessageType = 506
)

// Tile messages.
const (
	TypeGetDeviceChain   MessageType = 701
	TypeStateDeviceChain MessageType = 702
	TypeGetTileState64   MessageType = 707
	TypeStateTileState64 MessageType = 711
	TypeSetTileState64   MessageType = 715
)

var typeNames = map[MessageType]string{
	TypeGetService:               "GetService",
	TypeStateService:             "StateService",
	TypeGetHostInfo:              "GetHostInfo",
	TypeStateHostInfo:            "StateHostInfo",
	TypeGetHostFirmware:          "GetHostFirmware",
	TypeStateHostFirmware:        "StateHostFirmware",
	TypeGetWifiInfo:              "GetWifiInfo",
	TypeStateWifiInfo:            "StateWifiInfo",
	TypeGetWifiFirmware:          "GetWifiFirmware",
	TypeStateWifiFirmware:        "StateWifiFirmware",
	TypeGetPower:                 "GetPower",
	TypeSetPower:                 "SetPower",
	TypeStatePower:               "StatePower",
	TypeGetLabel:                 "GetLabel",
	TypeSetLabel:                 "SetLabel",
	TypeStateLabel:               "StateLabel",
	TypeGetVersion:               "GetVersion",
	TypeStateVersion:             "StateVersion",
	TypeGetInfo:                  "GetInfo",
	TypeStateInfo:                "StateInfo",
	TypeAcknowledgement:          "Acknowledgement",
	TypeGetLocation:              "GetLocation",
	TypeSetLocation:              "SetLocation",
	TypeStateLocation:            "StateLocation",
	TypeGetGroup:                 "GetGroup",
	TypeSetGroup:                 "SetGroup",
	TypeStateGroup:               "StateGroup",
	TypeEchoRequest:              "EchoRequest",
	TypeEchoResponse:             "EchoResponse",
	TypeLightGet:                 "LightGet",
	TypeLightSetColor:            "LightSetColor",
	TypeLightSetWaveform:         "LightSetWaveform",
	TypeLightState:               "LightState",
	TypeLightGetPower:            "LightGetPower",
	TypeLightSetPower:            "LightSetPower",
	TypeLightStatePower:          "LightStatePower",
	TypeLightSetWaveformOptional: "LightSetWaveformOptional",
	TypeGetInfrared:              "GetInfrared",
	TypeStateInfrared:            "StateInfrared",
	TypeSetInfrared:              "SetInfrared",
	TypeSetColorZones:            "SetColorZones",
	TypeGetColorZones:            "GetColorZones",
	TypeStateZone:                "StateZone",
	TypeStateMultiZone:           "StateMultiZone",
	TypeGetDeviceChain:           "GetDeviceChain",
	TypeStateDeviceChain:         "StateDeviceChain",
	TypeGetTileState64:           "GetTileState64",
	TypeStateTileState64:         "StateTileState64",
	TypeSetTileState64:           "SetTileState64",
}

// String returns the message name, or "Type(n)" for unregistered values.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint16(t))
}

// HSBK is a colour in hue/saturation/brightness/kelvin form, each 0..65535
// except Kelvin which is the white point in degrees.
type HSBK struct {
	Hue        uint16 `json:"hue"`
	Saturation uint16 `json:"saturation"`
	Brightness uint16 `json:"brightness"`
	Kelvin     uint16 `json:"kelvin"`
}

// hsbkSize is the encoded size of an HSBK value.
const hsbkSize = 8

// Service identifies the transport a device advertises in StateService.
type Service uint8

// Service values.
const (
	ServiceUnknown Service = 0
	ServiceUDP     Service = 1
)

// Power levels. Devices report any non-zero level as on.
const (
	PowerOff uint16 = 0
	PowerOn  uint16 = 0xFFFF
)

// Waveform selects the shape of a LightSetWaveform transition.
type Waveform uint8

// Waveform values.
const (
	WaveformSaw      Waveform = 0
	WaveformSine     Waveform = 1
	WaveformHalfSine Waveform = 2
	WaveformTriangle Waveform = 3
	WaveformPulse    Waveform = 4
)

// ApplicationRequest controls when a SetColorZones change takes effect.
type ApplicationRequest uint8

// ApplicationRequest values.
const (
	NoApply   ApplicationRequest = 0
	Apply     ApplicationRequest = 1
	ApplyOnly ApplicationRequest = 2
)

// Field widths shared by several payloads.
const (
	LabelSize = 32
	IDSize    = 16
	EchoSize  = 64
)
