package protocol

// LightGet requests colour, power and label in a single LightState reply.
type LightGet struct{}

func (LightGet) Type() MessageType { return TypeLightGet }
func (LightGet) Size() int         { return 0 }
func (LightGet) encode(*writer)    {}

// LightSetColor fades to Color over Duration milliseconds.
type LightSetColor struct {
	Reserved uint8
	Color    HSBK
	Duration uint32
}

func (LightSetColor) Type() MessageType { return TypeLightSetColor }
func (LightSetColor) Size() int         { return 1 + hsbkSize + 4 }
func (p LightSetColor) encode(w *writer) {
	w.u8(p.Reserved)
	w.hsbk(p.Color)
	w.u32(p.Duration)
}

// LightSetWaveform runs a periodic effect between the current colour and Color.
type LightSetWaveform struct {
	Reserved  uint8
	Transient bool
	Color     HSBK
	Period    uint32
	Cycles    float32
	SkewRatio int16
	Waveform  Waveform
}

func (LightSetWaveform) Type() MessageType { return TypeLightSetWaveform }
func (LightSetWaveform) Size() int         { return 2 + hsbkSize + 4 + 4 + 2 + 1 }
func (p LightSetWaveform) encode(w *writer) {
	w.u8(p.Reserved)
	w.boolean(p.Transient)
	w.hsbk(p.Color)
	w.u32(p.Period)
	w.f32(p.Cycles)
	w.i16(p.SkewRatio)
	w.u8(uint8(p.Waveform))
}

func decodeWaveform(r *reader) LightSetWaveform {
	return LightSetWaveform{
		Reserved:  r.u8(),
		Transient: r.boolean(),
		Color:     r.hsbk(),
		Period:    r.u32(),
		Cycles:    r.f32(),
		SkewRatio: r.i16(),
		Waveform:  Waveform(r.u8()),
	}
}

// LightState is the full light state reply.
type LightState struct {
	Color     HSBK
	Reserved  int16
	Power     uint16
	Label     string
	Reserved2 uint64
}

func (LightState) Type() MessageType { return TypeLightState }
func (LightState) Size() int         { return hsbkSize + 2 + 2 + LabelSize + 8 }
func (p LightState) encode(w *writer) {
	w.hsbk(p.Color)
	w.i16(p.Reserved)
	w.u16(p.Power)
	w.str(p.Label, LabelSize)
	w.u64(p.Reserved2)
}

// LightGetPower requests the light power level.
type LightGetPower struct{}

func (LightGetPower) Type() MessageType { return TypeLightGetPower }
func (LightGetPower) Size() int         { return 0 }
func (LightGetPower) encode(*writer)    {}

// LightSetPower switches the light with a fade of Duration milliseconds.
type LightSetPower struct {
	Level    uint16
	Duration uint32
}

func (LightSetPower) Type() MessageType { return TypeLightSetPower }
func (LightSetPower) Size() int         { return 6 }
func (p LightSetPower) encode(w *writer) {
	w.u16(p.Level)
	w.u32(p.Duration)
}

// LightStatePower reports the light power level.
type LightStatePower struct {
	Level uint16
}

func (LightStatePower) Type() MessageType  { return TypeLightStatePower }
func (LightStatePower) Size() int          { return 2 }
func (p LightStatePower) encode(w *writer) { w.u16(p.Level) }

// LightSetWaveformOptional is LightSetWaveform with per-channel enables.
// Channels left disabled keep their current value.
type LightSetWaveformOptional struct {
	LightSetWaveform
	SetHue        bool
	SetSaturation bool
	SetBrightness bool
	SetKelvin     bool
}

func (LightSetWaveformOptional) Type() MessageType { return TypeLightSetWaveformOptional }
func (LightSetWaveformOptional) Size() int         { return LightSetWaveform{}.Size() + 4 }
func (p LightSetWaveformOptional) encode(w *writer) {
	p.LightSetWaveform.encode(w)
	w.boolean(p.SetHue)
	w.boolean(p.SetSaturation)
	w.boolean(p.SetBrightness)
	w.boolean(p.SetKelvin)
}

// GetInfrared requests the infrared channel brightness.
type GetInfrared struct{}

func (GetInfrared) Type() MessageType { return TypeGetInfrared }
func (GetInfrared) Size() int         { return 0 }
func (GetInfrared) encode(*writer)    {}

// StateInfrared reports the infrared channel brightness.
type StateInfrared struct {
	Brightness uint16
}

func (StateInfrared) Type() MessageType  { return TypeStateInfrared }
func (StateInfrared) Size() int          { return 2 }
func (p StateInfrared) encode(w *writer) { w.u16(p.Brightness) }

// SetInfrared sets the infrared channel brightness.
type SetInfrared struct {
	Brightness uint16
}

func (SetInfrared) Type() MessageType  { return TypeSetInfrared }
func (SetInfrared) Size() int          { return 2 }
func (p SetInfrared) encode(w *writer) { w.u16(p.Brightness) }

// SetColorZones paints zones StartIndex..EndIndex (inclusive) of a strip.
type SetColorZones struct {
	StartIndex uint8
	EndIndex   uint8
	Color      HSBK
	Duration   uint32
	Apply      ApplicationRequest
}

func (SetColorZones) Type() MessageType { return TypeSetColorZones }
func (SetColorZones) Size() int         { return 2 + hsbkSize + 4 + 1 }
func (p SetColorZones) encode(w *writer) {
	w.u8(p.StartIndex)
	w.u8(p.EndIndex)
	w.hsbk(p.Color)
	w.u32(p.Duration)
	w.u8(uint8(p.Apply))
}

// GetColorZones requests zone colours; replies arrive as StateMultiZone
// blocks of eight.
type GetColorZones struct {
	StartIndex uint8
	EndIndex   uint8
}

func (GetColorZones) Type() MessageType { return TypeGetColorZones }
func (GetColorZones) Size() int         { return 2 }
func (p GetColorZones) encode(w *writer) {
	w.u8(p.StartIndex)
	w.u8(p.EndIndex)
}

// StateZone reports a single zone colour.
type StateZone struct {
	Count uint8
	Index uint8
	Color HSBK
}

func (StateZone) Type() MessageType { return TypeStateZone }
func (StateZone) Size() int         { return 2 + hsbkSize }
func (p StateZone) encode(w *writer) {
	w.u8(p.Count)
	w.u8(p.Index)
	w.hsbk(p.Color)
}

// MultiZoneBlock is the number of colours in one StateMultiZone frame.
const MultiZoneBlock = 8

// StateMultiZone reports eight consecutive zone colours starting at Index.
// Count is the total number of zones on the strip.
type StateMultiZone struct {
	Count  uint8
	Index  uint8
	Colors [MultiZoneBlock]HSBK
}

func (StateMultiZone) Type() MessageType { return TypeStateMultiZone }
func (StateMultiZone) Size() int         { return 2 + MultiZoneBlock*hsbkSize }
func (p StateMultiZone) encode(w *writer) {
	w.u8(p.Count)
	w.u8(p.Index)
	for _, c := range p.Colors {
		w.hsbk(c)
	}
}
