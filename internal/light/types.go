package light

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
)

// Timing rules for state reconciliation.
const (
	// ClientChangeTimeout is how long a client write shields a property
	// from device reports.
	ClientChangeTimeout = 2000 * time.Millisecond

	// ReachableTimeout is the silence after which a light is unreachable.
	ReachableTimeout = 11000 * time.Millisecond
)

// DefaultColor fills zones that have not been reported yet.
var DefaultColor = protocol.HSBK{Kelvin: 3500} //nolint:mnd // neutral white point

// Property names one observable field of a light.
type Property int

// Observable properties.
const (
	PropertyLabel Property = iota
	PropertyColor
	PropertyPower
	PropertyReachable
	PropertyGroup
	PropertyLocation
	PropertyHostFirmware
	PropertyWifiFirmware
	PropertyProductInfo
	PropertyInfraredBrightness
	PropertyZones
)

var propertyNames = [...]string{
	PropertyLabel:              "label",
	PropertyColor:              "color",
	PropertyPower:              "power",
	PropertyReachable:          "reachable",
	PropertyGroup:              "group",
	PropertyLocation:           "location",
	PropertyHostFirmware:       "host_firmware",
	PropertyWifiFirmware:       "wifi_firmware",
	PropertyProductInfo:        "product_info",
	PropertyInfraredBrightness: "infrared_brightness",
	PropertyZones:              "zones",
}

func (p Property) String() string {
	if p >= 0 && int(p) < len(propertyNames) {
		return propertyNames[p]
	}
	return fmt.Sprintf("property(%d)", int(p))
}

// Properties lists every property in declaration order.
func Properties() []Property {
	out := make([]Property, len(propertyNames))
	for i := range out {
		out[i] = Property(i)
	}
	return out
}

// Source tells who produced an update.
type Source int

const (
	// SourceClient is an optimistic write from a command issued here.
	SourceClient Source = iota
	// SourceDevice is a state report from the device.
	SourceDevice
)

// Membership is a light's location or group assignment.
type Membership struct {
	ID        [protocol.IDSize]byte
	Label     string
	UpdatedAt uint64
}

// DefaultMembership is the assignment of a light that has not reported one:
// eight ASCII '0' bytes followed by zero padding.
func DefaultMembership() Membership {
	var m Membership
	for i := 0; i < 8; i++ {
		m.ID[i] = '0'
	}
	return m
}

// Key returns the hex form of the id, used to index locations and groups.
func (m Membership) Key() string {
	return hex.EncodeToString(m.ID[:])
}

// MarshalJSON renders the id as hex.
func (m Membership) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string `json:"id"`
		Label     string `json:"label"`
		UpdatedAt uint64 `json:"updated_at"`
	}{m.Key(), m.Label, m.UpdatedAt})
}

// Firmware is a firmware build and version pair.
type Firmware struct {
	Build   uint64 `json:"build"`
	Version uint32 `json:"version"`
}

// ProductInfo identifies the hardware.
type ProductInfo struct {
	VendorID  uint32 `json:"vendor_id"`
	ProductID uint32 `json:"product_id"`
	Version   uint32 `json:"version"`
}

// Product ids per capability. 0 is the value before the device has
// reported its version.
var (
	multiZoneProducts = map[uint32]bool{0: true, 31: true, 32: true, 38: true}
	infraredProducts  = map[uint32]bool{0: true, 29: true, 30: true, 45: true, 46: true}
	tileProducts      = map[uint32]bool{55: true, 57: true, 68: true}
)

// HasMultiZone reports whether the product is a multi-zone strip or beam.
func (p ProductInfo) HasMultiZone() bool { return multiZoneProducts[p.ProductID] }

// HasInfrared reports whether the product has an infrared channel.
func (p ProductInfo) HasInfrared() bool { return infraredProducts[p.ProductID] }

// HasTile reports whether the product is a tile chain.
func (p ProductInfo) HasTile() bool { return tileProducts[p.ProductID] }

// Zones is the colour of every zone on a multi-zone product.
type Zones struct {
	Count  int             `json:"count"`
	Colors []protocol.HSBK `json:"colors"`
}

func (z Zones) clone() Zones {
	return Zones{Count: z.Count, Colors: append([]protocol.HSBK(nil), z.Colors...)}
}

// Equal reports whether z and o hold the same zones.
func (z Zones) Equal(o Zones) bool {
	return z.Count == o.Count && colorsEqual(z.Colors, o.Colors)
}

func colorsEqual(a, b []protocol.HSBK) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// State is a point-in-time copy of a light.
type State struct {
	ID                 uint64        `json:"-"`
	Address            net.IP        `json:"address"`
	LastSeenAt         time.Time     `json:"last_seen_at"`
	Reachable          bool          `json:"reachable"`
	Label              string        `json:"label"`
	Color              protocol.HSBK `json:"color"`
	Power              uint16        `json:"power"`
	Group              Membership    `json:"group"`
	Location           Membership    `json:"location"`
	HostFirmware       Firmware      `json:"host_firmware"`
	WifiFirmware       Firmware      `json:"wifi_firmware"`
	ProductInfo        ProductInfo   `json:"product_info"`
	InfraredBrightness uint16        `json:"infrared_brightness"`
	Zones              Zones         `json:"zones"`
}

// IsOn reports whether the light is powered.
func (s State) IsOn() bool { return s.Power != protocol.PowerOff }

func (s *State) get(p Property) any {
	switch p {
	case PropertyLabel:
		return s.Label
	case PropertyColor:
		return s.Color
	case PropertyPower:
		return s.Power
	case PropertyReachable:
		return s.Reachable
	case PropertyGroup:
		return s.Group
	case PropertyLocation:
		return s.Location
	case PropertyHostFirmware:
		return s.HostFirmware
	case PropertyWifiFirmware:
		return s.WifiFirmware
	case PropertyProductInfo:
		return s.ProductInfo
	case PropertyInfraredBrightness:
		return s.InfraredBrightness
	case PropertyZones:
		return s.Zones.clone()
	}
	return nil
}

func (s *State) set(p Property, v any) {
	switch p {
	case PropertyLabel:
		s.Label = v.(string)
	case PropertyColor:
		s.Color = v.(protocol.HSBK)
	case PropertyPower:
		s.Power = v.(uint16)
	case PropertyReachable:
		s.Reachable = v.(bool)
	case PropertyGroup:
		s.Group = v.(Membership)
	case PropertyLocation:
		s.Location = v.(Membership)
	case PropertyHostFirmware:
		s.HostFirmware = v.(Firmware)
	case PropertyWifiFirmware:
		s.WifiFirmware = v.(Firmware)
	case PropertyProductInfo:
		s.ProductInfo = v.(ProductInfo)
	case PropertyInfraredBrightness:
		s.InfraredBrightness = v.(uint16)
	case PropertyZones:
		s.Zones = v.(Zones).clone()
	}
}

// valuesEqual compares two property values of the same property.
func valuesEqual(a, b any) bool {
	if za, ok := a.(Zones); ok {
		zb, ok := b.(Zones)
		return ok && za.Equal(zb)
	}
	return a == b
}

// FormatID renders a device id as the MAC address it encodes.
func FormatID(id uint64) string {
	var b [6]byte
	for i := range b {
		b[i] = byte(id >> (8 * i))
	}
	return hex.EncodeToString(b[:])
}

// ParseID parses the output of FormatID. Colons are accepted.
func ParseID(s string) (uint64, error) {
	raw, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil || len(raw) != 6 { //nolint:mnd // MAC length
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	var id uint64
	for i, b := range raw {
		id |= uint64(b) << (8 * i)
	}
	return id, nil
}

// normalisePower maps any non-zero level to PowerOn.
func normalisePower(level uint16) uint16 {
	if level == protocol.PowerOff {
		return protocol.PowerOff
	}
	return protocol.PowerOn
}
