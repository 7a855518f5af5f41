package protocol

// Tile chain geometry.
const (
	// TileChainSize is the number of device slots in one StateDeviceChain.
	TileChainSize = 16

	// TilePixels is the number of colours in one 64-zone tile frame.
	TilePixels = 64

	tileDeviceSize = 55
)

// TileDevice describes one tile in a chain.
type TileDevice struct {
	AccelMeasX           int16
	AccelMeasY           int16
	AccelMeasZ           int16
	Reserved             int16
	UserX                float32
	UserY                float32
	Width                uint8
	Height               uint8
	Reserved2            uint8
	DeviceVersionVendor  uint32
	DeviceVersionProduct uint32
	DeviceVersionVersion uint32
	FirmwareBuild        uint64
	Reserved3            uint64
	FirmwareVersionMinor uint16
	FirmwareVersionMajor uint16
	Reserved4            uint32
}

func (d TileDevice) encode(w *writer) {
	w.i16(d.AccelMeasX)
	w.i16(d.AccelMeasY)
	w.i16(d.AccelMeasZ)
	w.i16(d.Reserved)
	w.f32(d.UserX)
	w.f32(d.UserY)
	w.u8(d.Width)
	w.u8(d.Height)
	w.u8(d.Reserved2)
	w.u32(d.DeviceVersionVendor)
	w.u32(d.DeviceVersionProduct)
	w.u32(d.DeviceVersionVersion)
	w.u64(d.FirmwareBuild)
	w.u64(d.Reserved3)
	w.u16(d.FirmwareVersionMinor)
	w.u16(d.FirmwareVersionMajor)
	w.u32(d.Reserved4)
}

func decodeTileDevice(r *reader) TileDevice {
	return TileDevice{
		AccelMeasX:           r.i16(),
		AccelMeasY:           r.i16(),
		AccelMeasZ:           r.i16(),
		Reserved:             r.i16(),
		UserX:                r.f32(),
		UserY:                r.f32(),
		Width:                r.u8(),
		Height:               r.u8(),
		Reserved2:            r.u8(),
		DeviceVersionVendor:  r.u32(),
		DeviceVersionProduct: r.u32(),
		DeviceVersionVersion: r.u32(),
		FirmwareBuild:        r.u64(),
		Reserved3:            r.u64(),
		FirmwareVersionMinor: r.u16(),
		FirmwareVersionMajor: r.u16(),
		Reserved4:            r.u32(),
	}
}

// GetDeviceChain requests the layout of every tile in the chain.
type GetDeviceChain struct{}

func (GetDeviceChain) Type() MessageType { return TypeGetDeviceChain }
func (GetDeviceChain) Size() int         { return 0 }
func (GetDeviceChain) encode(*writer)    {}

// StateDeviceChain reports up to 16 tiles starting at StartIndex.
// TotalCount is the number of tiles actually present.
type StateDeviceChain struct {
	StartIndex  uint8
	TileDevices [TileChainSize]TileDevice
	TotalCount  uint8
}

func (StateDeviceChain) Type() MessageType { return TypeStateDeviceChain }
func (StateDeviceChain) Size() int         { return 1 + TileChainSize*tileDeviceSize + 1 }
func (p StateDeviceChain) encode(w *writer) {
	w.u8(p.StartIndex)
	for _, d := range p.TileDevices {
		d.encode(w)
	}
	w.u8(p.TotalCount)
}

// GetTileState64 requests Length tiles' worth of pixels starting at TileIndex.
// X, Y and Width select the rectangle within each tile.
type GetTileState64 struct {
	TileIndex uint8
	Length    uint8
	Reserved  uint8
	X         uint8
	Y         uint8
	Width     uint8
}

func (GetTileState64) Type() MessageType { return TypeGetTileState64 }
func (GetTileState64) Size() int         { return 6 }
func (p GetTileState64) encode(w *writer) {
	w.u8(p.TileIndex)
	w.u8(p.Length)
	w.u8(p.Reserved)
	w.u8(p.X)
	w.u8(p.Y)
	w.u8(p.Width)
}

// StateTileState64 reports 64 pixels of one tile, row-major with rows of Width.
type StateTileState64 struct {
	TileIndex uint8
	Reserved  uint8
	X         uint8
	Y         uint8
	Width     uint8
	Colors    [TilePixels]HSBK
}

func (StateTileState64) Type() MessageType { return TypeStateTileState64 }
func (StateTileState64) Size() int         { return 5 + TilePixels*hsbkSize }
func (p StateTileState64) encode(w *writer) {
	w.u8(p.TileIndex)
	w.u8(p.Reserved)
	w.u8(p.X)
	w.u8(p.Y)
	w.u8(p.Width)
	for _, c := range p.Colors {
		w.hsbk(c)
	}
}

// SetTileState64 paints 64 pixels on Length tiles starting at TileIndex.
type SetTileState64 struct {
	TileIndex uint8
	Length    uint8
	Reserved  uint8
	X         uint8
	Y         uint8
	Width     uint8
	Duration  uint32
	Colors    [TilePixels]HSBK
}

func (SetTileState64) Type() MessageType { return TypeSetTileState64 }
func (SetTileState64) Size() int         { return 6 + 4 + TilePixels*hsbkSize }
func (p SetTileState64) encode(w *writer) {
	w.u8(p.TileIndex)
	w.u8(p.Length)
	w.u8(p.Reserved)
	w.u8(p.X)
	w.u8(p.Y)
	w.u8(p.Width)
	w.u32(p.Duration)
	for _, c := range p.Colors {
		w.hsbk(c)
	}
}
