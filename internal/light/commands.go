package light

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/correlation"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
)

// Flags selects what a command waits for.
type Flags struct {
	// AckRequired waits for the device's Acknowledgement.
	AckRequired bool
	// ResponseRequired waits for the matching state reply and returns it.
	ResponseRequired bool
}

// waits reports whether the command is correlated.
func (f Flags) waits() bool { return f.AckRequired || f.ResponseRequired }

// Send issues payload to the device.
//
// A fire-and-forget send uses sequence 0; otherwise the light's next
// sequence number is allocated. sideEffect, if set, runs once right after
// the first successful send.
//
// Parameters:
//   - ctx: Bounds the wait for correlated sends
//   - payload: Message body
//   - f: Ack/response flags
//   - responseType: Payload type that satisfies ResponseRequired
//   - sideEffect: Optimistic state update
//
// Returns:
//   - protocol.Payload: Reply when ResponseRequired, else nil
//   - error: Transport or correlation error
func (l *Light) Send(ctx context.Context, payload protocol.Payload, f Flags,
	responseType protocol.MessageType, sideEffect func(),
) (protocol.Payload, error) {
	var seq uint8
	if f.waits() {
		seq = l.nextSequence()
	}

	resp, err := l.requester.Do(ctx, correlation.Request{
		Target:           l.id,
		Addr:             l.Address(),
		Sequence:         seq,
		Payload:          payload,
		AckRequired:      f.AckRequired,
		ResponseRequired: f.ResponseRequired,
		ResponseType:     responseType,
		SideEffect:       sideEffect,
	})
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", payload.Type(), FormatID(l.id), err)
	}
	return resp, nil
}

// request sends payload and converts the reply to R.
func request[R protocol.Payload](ctx context.Context, l *Light, payload protocol.Payload, f Flags, sideEffect func()) (*R, error) {
	var zero R
	resp, err := l.Send(ctx, payload, f, zero.Type(), sideEffect)
	if err != nil || resp == nil {
		return nil, err
	}
	r, ok := resp.(R)
	if !ok {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedResponse, zero.Type(), resp.Type())
	}
	return &r, nil
}

// millis converts d to the protocol's millisecond durations, saturating.
func millis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms <= 0:
		return 0
	case ms > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(ms)
}

func powerLevel(on bool) uint16 {
	if on {
		return protocol.PowerOn
	}
	return protocol.PowerOff
}

// truncateLabel limits s to the 32 bytes the device will store.
func truncateLabel(s string) string {
	if len(s) > protocol.LabelSize {
		return s[:protocol.LabelSize]
	}
	return s
}

// GetHostInfo requests host radio statistics.
func (l *Light) GetHostInfo(ctx context.Context, f Flags) (*protocol.StateHostInfo, error) {
	return request[protocol.StateHostInfo](ctx, l, protocol.GetHostInfo{}, f, nil)
}

// GetHostFirmware requests the host firmware version.
func (l *Light) GetHostFirmware(ctx context.Context, f Flags) (*protocol.StateHostFirmware, error) {
	return request[protocol.StateHostFirmware](ctx, l, protocol.GetHostFirmware{}, f, nil)
}

// GetWifiInfo requests wifi radio statistics.
func (l *Light) GetWifiInfo(ctx context.Context, f Flags) (*protocol.StateWifiInfo, error) {
	return request[protocol.StateWifiInfo](ctx, l, protocol.GetWifiInfo{}, f, nil)
}

// GetWifiFirmware requests the wifi firmware version.
func (l *Light) GetWifiFirmware(ctx context.Context, f Flags) (*protocol.StateWifiFirmware, error) {
	return request[protocol.StateWifiFirmware](ctx, l, protocol.GetWifiFirmware{}, f, nil)
}

// GetPower requests the device power level.
func (l *Light) GetPower(ctx context.Context, f Flags) (*protocol.StatePower, error) {
	return request[protocol.StatePower](ctx, l, protocol.GetPower{}, f, nil)
}

// SetPower switches the device and records the new level optimistically.
func (l *Light) SetPower(ctx context.Context, on bool, f Flags) (*protocol.StatePower, error) {
	level := powerLevel(on)
	return request[protocol.StatePower](ctx, l, protocol.SetPower{Level: level}, f, func() {
		l.applyClient(PropertyPower, level)
	})
}

// GetLabel requests the device name.
func (l *Light) GetLabel(ctx context.Context, f Flags) (*protocol.StateLabel, error) {
	return request[protocol.StateLabel](ctx, l, protocol.GetLabel{}, f, nil)
}

// SetLabel renames the device. Names longer than 32 bytes are truncated.
func (l *Light) SetLabel(ctx context.Context, label string, f Flags) (*protocol.StateLabel, error) {
	label = truncateLabel(label)
	return request[protocol.StateLabel](ctx, l, protocol.SetLabel{Label: label}, f, func() {
		l.applyClient(PropertyLabel, protocol.TrimNull([]byte(label)))
	})
}

// GetVersion requests the hardware identity.
func (l *Light) GetVersion(ctx context.Context, f Flags) (*protocol.StateVersion, error) {
	return request[protocol.StateVersion](ctx, l, protocol.GetVersion{}, f, nil)
}

// GetInfo requests the device clock and uptime.
func (l *Light) GetInfo(ctx context.Context, f Flags) (*protocol.StateInfo, error) {
	return request[protocol.StateInfo](ctx, l, protocol.GetInfo{}, f, nil)
}

// GetLocation requests the location membership.
func (l *Light) GetLocation(ctx context.Context, f Flags) (*protocol.StateLocation, error) {
	return request[protocol.StateLocation](ctx, l, protocol.GetLocation{}, f, nil)
}

// SetLocation assigns the device to a location.
func (l *Light) SetLocation(ctx context.Context, m Membership, f Flags) (*protocol.StateLocation, error) {
	m.Label = truncateLabel(m.Label)
	return request[protocol.StateLocation](ctx, l, protocol.SetLocation(m), f, func() {
		l.applyClient(PropertyLocation, m)
	})
}

// GetGroup requests the group membership.
func (l *Light) GetGroup(ctx context.Context, f Flags) (*protocol.StateGroup, error) {
	return request[protocol.StateGroup](ctx, l, protocol.GetGroup{}, f, nil)
}

// SetGroup assigns the device to a group.
func (l *Light) SetGroup(ctx context.Context, m Membership, f Flags) (*protocol.StateGroup, error) {
	m.Label = truncateLabel(m.Label)
	return request[protocol.StateGroup](ctx, l, protocol.SetGroup(m), f, func() {
		l.applyClient(PropertyGroup, m)
	})
}

// Echo sends data (up to 64 bytes) and returns the device's copy.
func (l *Light) Echo(ctx context.Context, data []byte, f Flags) (*protocol.EchoResponse, error) {
	var req protocol.EchoRequest
	copy(req.Payload[:], data)
	return request[protocol.EchoResponse](ctx, l, req, f, nil)
}

// Get requests colour, power and label.
func (l *Light) Get(ctx context.Context, f Flags) (*protocol.LightState, error) {
	return request[protocol.LightState](ctx, l, protocol.LightGet{}, f, nil)
}

// SetColor fades to color over duration.
func (l *Light) SetColor(ctx context.Context, color protocol.HSBK, duration time.Duration, f Flags) (*protocol.LightState, error) {
	payload := protocol.LightSetColor{Color: color, Duration: millis(duration)}
	return request[protocol.LightState](ctx, l, payload, f, func() {
		l.applyClient(PropertyColor, color)
	})
}

// Waveform describes a periodic colour effect.
type Waveform struct {
	Transient bool
	Color     protocol.HSBK
	Period    time.Duration
	Cycles    float32
	SkewRatio int16
	Shape     protocol.Waveform
}

func (w Waveform) payload() protocol.LightSetWaveform {
	return protocol.LightSetWaveform{
		Transient: w.Transient,
		Color:     w.Color,
		Period:    millis(w.Period),
		Cycles:    w.Cycles,
		SkewRatio: w.SkewRatio,
		Waveform:  w.Shape,
	}
}

// SetWaveform starts an effect. The resulting colour is not predicted.
func (l *Light) SetWaveform(ctx context.Context, w Waveform, f Flags) (*protocol.LightState, error) {
	return request[protocol.LightState](ctx, l, w.payload(), f, nil)
}

// Channels selects which colour components SetWaveformOptional changes.
type Channels struct {
	Hue, Saturation, Brightness, Kelvin bool
}

// SetWaveformOptional starts an effect on the selected channels only.
func (l *Light) SetWaveformOptional(ctx context.Context, w Waveform, ch Channels, f Flags) (*protocol.LightState, error) {
	payload := protocol.LightSetWaveformOptional{
		LightSetWaveform: w.payload(),
		SetHue:           ch.Hue,
		SetSaturation:    ch.Saturation,
		SetBrightness:    ch.Brightness,
		SetKelvin:        ch.Kelvin,
	}
	return request[protocol.LightState](ctx, l, payload, f, nil)
}

// GetLightPower requests the light power level.
func (l *Light) GetLightPower(ctx context.Context, f Flags) (*protocol.LightStatePower, error) {
	return request[protocol.LightStatePower](ctx, l, protocol.LightGetPower{}, f, nil)
}

// SetLightPower switches the light with a fade.
func (l *Light) SetLightPower(ctx context.Context, on bool, duration time.Duration, f Flags) (*protocol.LightStatePower, error) {
	level := powerLevel(on)
	payload := protocol.LightSetPower{Level: level, Duration: millis(duration)}
	return request[protocol.LightStatePower](ctx, l, payload, f, func() {
		l.applyClient(PropertyPower, level)
	})
}

// GetInfrared requests the infrared channel brightness.
func (l *Light) GetInfrared(ctx context.Context, f Flags) (*protocol.StateInfrared, error) {
	return request[protocol.StateInfrared](ctx, l, protocol.GetInfrared{}, f, nil)
}

// SetInfrared sets the infrared channel brightness.
func (l *Light) SetInfrared(ctx context.Context, brightness uint16, f Flags) (*protocol.StateInfrared, error) {
	return request[protocol.StateInfrared](ctx, l, protocol.SetInfrared{Brightness: brightness}, f, func() {
		l.applyClient(PropertyInfraredBrightness, brightness)
	})
}

// SetColorZones paints zones start..end (inclusive).
func (l *Light) SetColorZones(ctx context.Context, color protocol.HSBK, start, end uint8,
	duration time.Duration, apply protocol.ApplicationRequest, f Flags,
) (*protocol.StateMultiZone, error) {
	payload := protocol.SetColorZones{
		StartIndex: start,
		EndIndex:   end,
		Color:      color,
		Duration:   millis(duration),
		Apply:      apply,
	}
	return request[protocol.StateMultiZone](ctx, l, payload, f, func() {
		l.paintZones(int(start), int(end), color)
	})
}

// GetColorZones requests zones start..end; replies arrive as StateMultiZone
// blocks through the inbound path. With ResponseRequired only the first
// block is returned.
func (l *Light) GetColorZones(ctx context.Context, start, end uint8, f Flags) (*protocol.StateMultiZone, error) {
	payload := protocol.GetColorZones{StartIndex: start, EndIndex: end}
	return request[protocol.StateMultiZone](ctx, l, payload, f, nil)
}

// SetBrightness changes only the brightness channel.
//
// Multi-zone products receive a one-cycle saw waveform that touches only
// brightness, which keeps the per-zone hues. Other products receive
// SetColor with the current colour's brightness replaced.
func (l *Light) SetBrightness(ctx context.Context, brightness uint16, duration time.Duration, f Flags) (*protocol.LightState, error) {
	color := l.Color()
	color.Brightness = brightness

	if l.ProductInfo().HasMultiZone() {
		w := Waveform{Color: color, Period: duration, Cycles: 1, Shape: protocol.WaveformSaw}
		payload := protocol.LightSetWaveformOptional{
			LightSetWaveform: w.payload(),
			SetBrightness:    true,
		}
		return request[protocol.LightState](ctx, l, payload, f, func() {
			l.applyClient(PropertyColor, color)
		})
	}

	return l.SetColor(ctx, color, duration, f)
}

// GetDeviceChain requests the tile chain layout.
func (l *Light) GetDeviceChain(ctx context.Context, f Flags) (*protocol.StateDeviceChain, error) {
	return request[protocol.StateDeviceChain](ctx, l, protocol.GetDeviceChain{}, f, nil)
}

// GetTileState64 requests tile pixels.
func (l *Light) GetTileState64(ctx context.Context, req protocol.GetTileState64, f Flags) (*protocol.StateTileState64, error) {
	return request[protocol.StateTileState64](ctx, l, req, f, nil)
}

// SetTileState64 paints tile pixels. sideEffect lets the tile tracker record
// the new pixels optimistically.
func (l *Light) SetTileState64(ctx context.Context, req protocol.SetTileState64, f Flags, sideEffect func()) (*protocol.StateTileState64, error) {
	return request[protocol.StateTileState64](ctx, l, req, f, sideEffect)
}

// PollState requests the frequently changing state. Fire-and-forget.
func (l *Light) PollState(ctx context.Context) {
	l.fire(ctx, protocol.LightGet{})

	product := l.ProductInfo()
	if product.HasMultiZone() {
		l.fire(ctx, protocol.GetColorZones{StartIndex: 0, EndIndex: 255}) //nolint:mnd // every zone
	}
	if product.HasInfrared() {
		l.fire(ctx, protocol.GetInfrared{})
	}
}

// PollProperties requests the rarely changing properties. Fire-and-forget.
func (l *Light) PollProperties(ctx context.Context) {
	l.fire(ctx, protocol.GetHostFirmware{})
	l.fire(ctx, protocol.GetWifiFirmware{})
	l.fire(ctx, protocol.GetVersion{})
	l.fire(ctx, protocol.GetGroup{})
	l.fire(ctx, protocol.GetLocation{})
}

func (l *Light) fire(ctx context.Context, payload protocol.Payload) {
	if _, err := l.Send(ctx, payload, Flags{}, 0, nil); err != nil {
		l.logDebug("poll failed", "type", payload.Type().String(), "error", err)
	}
}
