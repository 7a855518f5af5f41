package protocol

// Payload is the body of a frame. Every message type has exactly one
// Payload implementation with a fixed encoded size.
type Payload interface {
	Type() MessageType
	Size() int
	encode(w *writer)
}

// GetService asks every device to announce itself. Sent as a broadcast.
type GetService struct{}

func (GetService) Type() MessageType { return TypeGetService }
func (GetService) Size() int         { return 0 }
func (GetService) encode(*writer)    {}

// StateService announces the transport and port a device accepts.
type StateService struct {
	Service Service
	Port    uint32
}

func (StateService) Type() MessageType { return TypeStateService }
func (StateService) Size() int         { return 5 }
func (p StateService) encode(w *writer) {
	w.u8(uint8(p.Service))
	w.u32(p.Port)
}

// GetHostInfo requests radio statistics for the host MCU.
type GetHostInfo struct{}

func (GetHostInfo) Type() MessageType { return TypeGetHostInfo }
func (GetHostInfo) Size() int         { return 0 }
func (GetHostInfo) encode(*writer)    {}

// StateHostInfo carries signal strength and byte counters.
type StateHostInfo struct {
	Signal   float32
	Tx       uint32
	Rx       uint32
	Reserved int16
}

func (StateHostInfo) Type() MessageType { return TypeStateHostInfo }
func (StateHostInfo) Size() int         { return 14 }
func (p StateHostInfo) encode(w *writer) {
	w.f32(p.Signal)
	w.u32(p.Tx)
	w.u32(p.Rx)
	w.i16(p.Reserved)
}

func decodeHostInfo(r *reader) StateHostInfo {
	return StateHostInfo{Signal: r.f32(), Tx: r.u32(), Rx: r.u32(), Reserved: r.i16()}
}

// GetHostFirmware requests the host firmware build and version.
type GetHostFirmware struct{}

func (GetHostFirmware) Type() MessageType { return TypeGetHostFirmware }
func (GetHostFirmware) Size() int         { return 0 }
func (GetHostFirmware) encode(*writer)    {}

// StateHostFirmware carries a firmware build timestamp and version.
type StateHostFirmware struct {
	Build    uint64
	Reserved uint64
	Version  uint32
}

func (StateHostFirmware) Type() MessageType { return TypeStateHostFirmware }
func (StateHostFirmware) Size() int         { return 20 }
func (p StateHostFirmware) encode(w *writer) {
	w.u64(p.Build)
	w.u64(p.Reserved)
	w.u32(p.Version)
}

func decodeFirmware(r *reader) StateHostFirmware {
	return StateHostFirmware{Build: r.u64(), Reserved: r.u64(), Version: r.u32()}
}

// GetWifiInfo requests radio statistics for the wifi module.
type GetWifiInfo struct{}

func (GetWifiInfo) Type() MessageType { return TypeGetWifiInfo }
func (GetWifiInfo) Size() int         { return 0 }
func (GetWifiInfo) encode(*writer)    {}

// StateWifiInfo has the same layout as StateHostInfo.
type StateWifiInfo StateHostInfo

func (StateWifiInfo) Type() MessageType  { return TypeStateWifiInfo }
func (StateWifiInfo) Size() int          { return StateHostInfo{}.Size() }
func (p StateWifiInfo) encode(w *writer) { StateHostInfo(p).encode(w) }

// GetWifiFirmware requests the wifi module firmware.
type GetWifiFirmware struct{}

func (GetWifiFirmware) Type() MessageType { return TypeGetWifiFirmware }
func (GetWifiFirmware) Size() int         { return 0 }
func (GetWifiFirmware) encode(*writer)    {}

// StateWifiFirmware has the same layout as StateHostFirmware.
type StateWifiFirmware StateHostFirmware

func (StateWifiFirmware) Type() MessageType  { return TypeStateWifiFirmware }
func (StateWifiFirmware) Size() int          { return StateHostFirmware{}.Size() }
func (p StateWifiFirmware) encode(w *writer) { StateHostFirmware(p).encode(w) }

// GetPower requests the device power level.
type GetPower struct{}

func (GetPower) Type() MessageType { return TypeGetPower }
func (GetPower) Size() int         { return 0 }
func (GetPower) encode(*writer)    {}

// SetPower switches the device on (PowerOn) or off (PowerOff).
type SetPower struct {
	Level uint16
}

func (SetPower) Type() MessageType  { return TypeSetPower }
func (SetPower) Size() int          { return 2 }
func (p SetPower) encode(w *writer) { w.u16(p.Level) }

// StatePower reports the device power level.
type StatePower struct {
	Level uint16
}

func (StatePower) Type() MessageType  { return TypeStatePower }
func (StatePower) Size() int          { return 2 }
func (p StatePower) encode(w *writer) { w.u16(p.Level) }

// GetLabel requests the user-visible device name.
type GetLabel struct{}

func (GetLabel) Type() MessageType { return TypeGetLabel }
func (GetLabel) Size() int         { return 0 }
func (GetLabel) encode(*writer)    {}

// SetLabel renames the device. Labels longer than 32 bytes are truncated.
type SetLabel struct {
	Label string
}

func (SetLabel) Type() MessageType  { return TypeSetLabel }
func (SetLabel) Size() int          { return LabelSize }
func (p SetLabel) encode(w *writer) { w.str(p.Label, LabelSize) }

// StateLabel reports the device name.
type StateLabel struct {
	Label string
}

func (StateLabel) Type() MessageType  { return TypeStateLabel }
func (StateLabel) Size() int          { return LabelSize }
func (p StateLabel) encode(w *writer) { w.str(p.Label, LabelSize) }

// GetVersion requests vendor and product identifiers.
type GetVersion struct{}

func (GetVersion) Type() MessageType { return TypeGetVersion }
func (GetVersion) Size() int         { return 0 }
func (GetVersion) encode(*writer)    {}

// StateVersion identifies the hardware.
type StateVersion struct {
	Vendor  uint32
	Product uint32
	Version uint32
}

func (StateVersion) Type() MessageType { return TypeStateVersion }
func (StateVersion) Size() int         { return 12 }
func (p StateVersion) encode(w *writer) {
	w.u32(p.Vendor)
	w.u32(p.Product)
	w.u32(p.Version)
}

// GetInfo requests the device clock and uptime.
type GetInfo struct{}

func (GetInfo) Type() MessageType { return TypeGetInfo }
func (GetInfo) Size() int         { return 0 }
func (GetInfo) encode(*writer)    {}

// StateInfo carries nanosecond timestamps and durations.
type StateInfo struct {
	Time     uint64
	Uptime   uint64
	Downtime uint64
}

func (StateInfo) Type() MessageType { return TypeStateInfo }
func (StateInfo) Size() int         { return 24 }
func (p StateInfo) encode(w *writer) {
	w.u64(p.Time)
	w.u64(p.Uptime)
	w.u64(p.Downtime)
}

// Acknowledgement confirms receipt of a frame sent with AckRequired.
type Acknowledgement struct{}

func (Acknowledgement) Type() MessageType { return TypeAcknowledgement }
func (Acknowledgement) Size() int         { return 0 }
func (Acknowledgement) encode(*writer)    {}

// GetLocation requests the device location membership.
type GetLocation struct{}

func (GetLocation) Type() MessageType { return TypeGetLocation }
func (GetLocation) Size() int         { return 0 }
func (GetLocation) encode(*writer)    {}

// SetLocation assigns the device to a location. UpdatedAt orders competing
// labels for the same location id.
type SetLocation struct {
	ID        [IDSize]byte
	Label     string
	UpdatedAt uint64
}

func (SetLocation) Type() MessageType { return TypeSetLocation }
func (SetLocation) Size() int         { return IDSize + LabelSize + 8 }
func (p SetLocation) encode(w *writer) {
	w.bytes(p.ID[:], IDSize)
	w.str(p.Label, LabelSize)
	w.u64(p.UpdatedAt)
}

func decodeMembership(r *reader) SetLocation {
	var p SetLocation
	r.bytes(p.ID[:])
	p.Label = r.str(LabelSize)
	p.UpdatedAt = r.u64()
	return p
}

// StateLocation reports location membership. Same layout as SetLocation.
type StateLocation SetLocation

func (StateLocation) Type() MessageType  { return TypeStateLocation }
func (StateLocation) Size() int          { return SetLocation{}.Size() }
func (p StateLocation) encode(w *writer) { SetLocation(p).encode(w) }

// GetGroup requests the device group membership.
type GetGroup struct{}

func (GetGroup) Type() MessageType { return TypeGetGroup }
func (GetGroup) Size() int         { return 0 }
func (GetGroup) encode(*writer)    {}

// SetGroup assigns the device to a group. Same layout as SetLocation.
type SetGroup SetLocation

func (SetGroup) Type() MessageType  { return TypeSetGroup }
func (SetGroup) Size() int          { return SetLocation{}.Size() }
func (p SetGroup) encode(w *writer) { SetLocation(p).encode(w) }

// StateGroup reports group membership. Same layout as SetLocation.
type StateGroup SetLocation

func (StateGroup) Type() MessageType  { return TypeStateGroup }
func (StateGroup) Size() int          { return SetLocation{}.Size() }
func (p StateGroup) encode(w *writer) { SetLocation(p).encode(w) }

// EchoRequest asks the device to return Payload unchanged.
type EchoRequest struct {
	Payload [EchoSize]byte
}

func (EchoRequest) Type() MessageType  { return TypeEchoRequest }
func (EchoRequest) Size() int          { return EchoSize }
func (p EchoRequest) encode(w *writer) { w.bytes(p.Payload[:], EchoSize) }

// EchoResponse is the reply to EchoRequest.
type EchoResponse struct {
	Payload [EchoSize]byte
}

func (EchoResponse) Type() MessageType  { return TypeEchoResponse }
func (EchoResponse) Size() int          { return EchoSize }
func (p EchoResponse) encode(w *writer) { w.bytes(p.Payload[:], EchoSize) }
