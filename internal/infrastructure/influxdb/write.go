package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLightState  = "lifx_light_state"
	MeasurementReachable   = "lifx_reachability"
	MeasurementServiceStat = "lifx_service"
)

// LightState is the numeric state of one light at a point in time.
type LightState struct {
	LightID    string
	Label      string
	Power      uint16
	Hue        uint16
	Saturation uint16
	Brightness uint16
	Kelvin     uint16
	Reachable  bool
	Timestamp  time.Time
}

// WriteLightState records a light's power and colour. Non-blocking.
//
// Tags: light_id, label. Fields: on, power, hue, saturation, brightness,
// kelvin, reachable. Hue is scaled to degrees and saturation and
// brightness to 0-1.
func (c *Client) WriteLightState(s LightState) {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		MeasurementLightState,
		map[string]string{
			"light_id": s.LightID,
			"label":    s.Label,
		},
		map[string]any{
			"on":         s.Power != 0,
			"power":      int64(s.Power),
			"hue":        float64(s.Hue) * 360 / 0xFFFF, //nolint:mnd // degrees
			"saturation": float64(s.Saturation) / 0xFFFF,
			"brightness": float64(s.Brightness) / 0xFFFF,
			"kelvin":     int64(s.Kelvin),
			"reachable":  s.Reachable,
		},
		ts,
	)
	c.write(point)
}

// WriteReachability records a reachability transition.
func (c *Client) WriteReachability(lightID string, reachable bool) {
	c.write(write.NewPoint(
		MeasurementReachable,
		map[string]string{"light_id": lightID},
		map[string]any{"reachable": reachable},
		time.Now(),
	))
}

// WritePoint writes a point stamped now, for service-level counters.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.write(write.NewPoint(measurement, tags, fields, time.Now()))
}
