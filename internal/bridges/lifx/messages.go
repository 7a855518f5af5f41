package lifx

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

// protocolName is the protocol field of every bridge message.
const protocolName = "lifx"

// Command names accepted on the command topic.
const (
	CommandOn            = "on"
	CommandOff           = "off"
	CommandSetColor      = "set_color"
	CommandSetBrightness = "set_brightness"
	CommandSetLabel      = "set_label"
	CommandSetInfrared   = "set_infrared"
	CommandSetZones      = "set_zones"
	CommandRefresh       = "refresh"
)

// CommandMessage is sent to the bridge to operate a light.
// Topic: graylogic/command/lifx/{light_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. The bridge
	// assigns one when it is empty.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the light id. The topic wins when both are present.
	DeviceID string `json:"device_id"`

	// Command is one of the Command* names.
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"brightness": 32768, "duration_ms": 500} for set_brightness
	//   {"hue": 21845, "saturation": 65535} for set_color
	//   {"start": 0, "end": 7, "kelvin": 2700} for set_zones
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source"`
}

// MarshalJSON marshals a CommandMessage with an RFC3339 timestamp.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON accepts an empty or missing timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the device confirmed the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotConnected      = "NOT_CONNECTED"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage answers one command.
// Topic: graylogic/ack/lifx/{light_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an acknowledgement for cmd.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  protocolName,
	}
}

// NewAckError creates a failed acknowledgement with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// StateMessage carries the full state of one light.
// Topic: graylogic/state/lifx/{light_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address"`
}

// NewStateMessage renders a light snapshot.
//
// The state map always contains on, power, label, reachable, color, group,
// location and product_id. Multi-zone products add zones, infrared products
// add infrared.
func NewStateMessage(s light.State) StateMessage {
	state := map[string]any{
		"on":         s.IsOn(),
		"power":      s.Power,
		"label":      s.Label,
		"reachable":  s.Reachable,
		"color":      colorState(s.Color),
		"group":      s.Group.Label,
		"location":   s.Location.Label,
		"product_id": s.ProductInfo.ProductID,
	}
	if s.Zones.Count > 0 {
		zones := make([]map[string]any, 0, len(s.Zones.Colors))
		for _, c := range s.Zones.Colors {
			zones = append(zones, colorState(c))
		}
		state["zones"] = zones
	}
	if s.ProductInfo.HasInfrared() {
		state["infrared"] = s.InfraredBrightness
	}

	return StateMessage{
		DeviceID:  light.FormatID(s.ID),
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  protocolName,
		Address:   s.Address.String(),
	}
}

func colorState(c protocol.HSBK) map[string]any {
	return map[string]any{
		"hue":        c.Hue,
		"saturation": c.Saturation,
		"brightness": c.Brightness,
		"kelvin":     c.Kelvin,
	}
}

// HealthStatus represents the bridge health state.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge health.
// Topic: graylogic/health/lifx
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge          string            `json:"bridge"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          HealthStatus      `json:"status"`
	Version         string            `json:"version,omitempty"`
	UptimeSeconds   int64             `json:"uptime_seconds,omitempty"`
	Connection      *ConnectionStatus `json:"connection,omitempty"`
	Statistics      *BridgeStatistics `json:"statistics,omitempty"`
	LightsManaged   int               `json:"lights_managed"`
	LightsReachable int               `json:"lights_reachable"`
	Reason          string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the UDP socket.
type ConnectionStatus struct {
	Status       string     `json:"status"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	Reconnects   uint64     `json:"reconnects,omitempty"`
}

// BridgeStatistics contains frame counters.
type BridgeStatistics struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesDropped  uint64 `json:"frames_dropped"`
	DecodeErrors   uint64 `json:"decode_errors"`
	Errors         uint64 `json:"errors"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats transport.Stats,
	lights, reachable int, startTime time.Time,
) HealthMessage {
	msg := HealthMessage{
		Bridge:          bridgeID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
		Version:         version,
		UptimeSeconds:   int64(time.Since(startTime).Seconds()),
		LightsManaged:   lights,
		LightsReachable: reachable,
	}

	conn := &ConnectionStatus{Status: "disconnected", Reconnects: stats.ReconnectsTotal}
	switch {
	case stats.Connected:
		conn.Status = "connected"
	case stats.Reconnecting:
		conn.Status = "reconnecting"
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		conn.LastActivity = &last
	}
	msg.Connection = conn

	msg.Statistics = &BridgeStatistics{
		FramesReceived: stats.FramesRx,
		FramesSent:     stats.FramesTx,
		FramesDropped:  stats.FramesDropped,
		DecodeErrors:   stats.DecodeErrors,
		Errors:         stats.ErrorsTotal,
	}
	return msg
}

// DiscoveryMessage announces lights seen for the first time.
// Topic: graylogic/discovery/lifx
type DiscoveryMessage struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Bridge    string            `json:"bridge"`
	Lights    []DiscoveredLight `json:"lights"`
}

// DiscoveredLight describes one light in a discovery message.
type DiscoveredLight struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Address   string `json:"address"`
	VendorID  uint32 `json:"vendor_id"`
	ProductID uint32 `json:"product_id"`
}

// NewDiscoveryMessage creates a discovery message for the given lights.
func NewDiscoveryMessage(bridgeID string, states ...light.State) DiscoveryMessage {
	msg := DiscoveryMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Bridge:    bridgeID,
		Lights:    make([]DiscoveredLight, 0, len(states)),
	}
	for _, s := range states {
		msg.Lights = append(msg.Lights, DiscoveredLight{
			ID:        light.FormatID(s.ID),
			Label:     s.Label,
			Address:   s.Address.String(),
			VendorID:  s.ProductInfo.VendorID,
			ProductID: s.ProductInfo.ProductID,
		})
	}
	return msg
}
