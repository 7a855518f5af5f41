package light

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/correlation"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
)

// ChangeListener is told about every property whose value changed.
type ChangeListener interface {
	OnLightChange(l *Light, p Property, oldValue, newValue any)
}

// ChangeListenerFunc adapts a function to ChangeListener.
type ChangeListenerFunc func(l *Light, p Property, oldValue, newValue any)

// OnLightChange calls f.
func (f ChangeListenerFunc) OnLightChange(l *Light, p Property, oldValue, newValue any) {
	f(l, p, oldValue, newValue)
}

// Requester sends a request to a device and waits for the reply when asked.
// *correlation.Engine is the production implementation.
type Requester interface {
	Do(ctx context.Context, req correlation.Request) (protocol.Payload, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Light.
type Options struct {
	// Requester sends commands. Required.
	Requester Requester

	// Listener receives change notifications. Optional.
	Listener ChangeListener

	Logger Logger

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// Change is one property transition waiting to be announced.
type Change struct {
	Property Property
	Old      any
	New      any
}

// Light is the client-side record of one device.
type Light struct {
	id        uint64
	requester Requester
	listener  ChangeListener
	logger    Logger
	now       func() time.Time

	mu         sync.RWMutex
	state      State
	stamps     map[Property]time.Time
	zoneStamps map[int]time.Time
	sequence   uint8
}

// New creates a light with default property values. Its address starts as
// the broadcast address until the first frame from the device arrives.
func New(id uint64, opts Options) *Light {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Light{
		id:        id,
		requester: opts.Requester,
		listener:  opts.Listener,
		logger:    opts.Logger,
		now:       opts.Now,
		state: State{
			ID:       id,
			Address:  net.IPv4bcast,
			Power:    protocol.PowerOff,
			Color:    DefaultColor,
			Group:    DefaultMembership(),
			Location: DefaultMembership(),
		},
		stamps:     make(map[Property]time.Time),
		zoneStamps: make(map[int]time.Time),
	}
}

// ID returns the device id (MAC in the low six bytes).
func (l *Light) ID() uint64 { return l.id }

// Snapshot returns a deep copy of the current state.
func (l *Light) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.state
	s.Address = append(net.IP(nil), l.state.Address...)
	s.Zones = l.state.Zones.clone()
	return s
}

// Address returns the last address the device was heard from.
func (l *Light) Address() net.IP {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append(net.IP(nil), l.state.Address...)
}

// Label returns the device name.
func (l *Light) Label() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Label
}

// Color returns the current colour.
func (l *Light) Color() protocol.HSBK {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Color
}

// Power returns the power level (PowerOn or PowerOff).
func (l *Light) Power() uint16 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Power
}

// Reachable reports whether the device was heard from recently.
func (l *Light) Reachable() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Reachable
}

// Group returns the group membership.
func (l *Light) Group() Membership {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Group
}

// Location returns the location membership.
func (l *Light) Location() Membership {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Location
}

// ProductInfo returns the hardware identity.
func (l *Light) ProductInfo() ProductInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.ProductInfo
}

// Zones returns a copy of the zone colours.
func (l *Light) Zones() Zones {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Zones.clone()
}

// RefreshReachability recomputes reachability from the last-seen time.
func (l *Light) RefreshReachability() {
	now := l.now()
	l.mu.Lock()
	changes := l.refreshReachabilityLocked(now, nil)
	l.mu.Unlock()
	l.notify(changes)
}

func (l *Light) refreshReachabilityLocked(now time.Time, changes []Change) []Change {
	reachable := !l.state.LastSeenAt.IsZero() && now.Sub(l.state.LastSeenAt) < ReachableTimeout
	return l.forceLocked(PropertyReachable, reachable, changes)
}

// HandleMessage records that the device was heard from addr and applies
// any state the frame carries.
func (l *Light) HandleMessage(msg protocol.Message, addr net.IP) {
	now := l.now()

	l.mu.Lock()
	if addr != nil {
		l.state.Address = append(net.IP(nil), addr...)
	}
	l.state.LastSeenAt = now
	changes := l.refreshReachabilityLocked(now, nil)
	changes, handled := l.applyPayloadLocked(msg.Payload, now, changes)
	l.mu.Unlock()

	if !handled {
		l.logDebug("unhandled payload", "type", msg.Header.Type.String())
	}
	l.notify(changes)
}

func (l *Light) applyPayloadLocked(payload protocol.Payload, now time.Time, changes []Change) ([]Change, bool) {
	dev := func(p Property, v any) {
		changes = l.updateLocked(SourceDevice, p, v, now, changes)
	}

	switch p := payload.(type) {
	case protocol.LightState:
		dev(PropertyLabel, p.Label)
		dev(PropertyColor, p.Color)
		dev(PropertyPower, normalisePower(p.Power))
	case protocol.StateLabel:
		dev(PropertyLabel, p.Label)
	case protocol.StatePower:
		dev(PropertyPower, normalisePower(p.Level))
	case protocol.LightStatePower:
		dev(PropertyPower, normalisePower(p.Level))
	case protocol.StateGroup:
		dev(PropertyGroup, Membership(p))
	case protocol.StateLocation:
		dev(PropertyLocation, Membership(p))
	case protocol.StateHostFirmware:
		dev(PropertyHostFirmware, Firmware{Build: p.Build, Version: p.Version})
	case protocol.StateWifiFirmware:
		dev(PropertyWifiFirmware, Firmware{Build: p.Build, Version: p.Version})
	case protocol.StateVersion:
		dev(PropertyProductInfo, ProductInfo{VendorID: p.Vendor, ProductID: p.Product, Version: p.Version})
	case protocol.StateInfrared:
		dev(PropertyInfraredBrightness, p.Brightness)
	case protocol.StateMultiZone:
		changes = l.mergeZonesLocked(int(p.Count), int(p.Index), p.Colors[:], now, changes)
	case protocol.StateZone:
		changes = l.mergeZonesLocked(int(p.Count), int(p.Index), []protocol.HSBK{p.Color}, now, changes)
	case protocol.StateService, protocol.Acknowledgement, protocol.StateHostInfo,
		protocol.StateWifiInfo, protocol.StateInfo, protocol.EchoResponse:
		// Nothing to record.
	default:
		return changes, false
	}
	return changes, true
}

// updateLocked applies v to p under the Client/Device rule.
func (l *Light) updateLocked(src Source, p Property, v any, now time.Time, changes []Change) []Change {
	switch src {
	case SourceClient:
		l.stamps[p] = now
	case SourceDevice:
		if stamp, ok := l.stamps[p]; ok && now.Sub(stamp) <= ClientChangeTimeout {
			return changes
		}
	}
	return l.forceLocked(p, v, changes)
}

// forceLocked stores v and records a change if the value differs.
func (l *Light) forceLocked(p Property, v any, changes []Change) []Change {
	old := l.state.get(p)
	if valuesEqual(old, v) {
		return changes
	}
	l.state.set(p, v)
	return append(changes, Change{Property: p, Old: old, New: l.state.get(p)})
}

// applyClient records an optimistic write and notifies listeners.
func (l *Light) applyClient(p Property, v any) {
	now := l.now()
	l.mu.Lock()
	changes := l.updateLocked(SourceClient, p, v, now, nil)
	l.mu.Unlock()
	l.notify(changes)
}

func (l *Light) notify(changes []Change) {
	if l.listener == nil {
		return
	}
	for _, c := range changes {
		l.listener.OnLightChange(l, c.Property, c.Old, c.New)
	}
}

// nextSequence returns the next correlation sequence. 0 is skipped because
// fire-and-forget frames, and the replies devices send to them, use it.
func (l *Light) nextSequence() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sequence++
	if l.sequence == 0 {
		l.sequence = 1
	}
	return l.sequence
}

func (l *Light) logDebug(msg string, kv ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, append([]any{"light", FormatID(l.id)}, kv...)...)
	}
}
