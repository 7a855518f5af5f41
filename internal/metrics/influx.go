package metrics

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
)

// InfluxWriter is the part of *influxdb.Client the recorder uses.
type InfluxWriter interface {
	WriteLightState(s influxdb.LightState)
	WriteReachability(lightID string, reachable bool)
	WritePoint(measurement string, tags map[string]string, fields map[string]any)
}

// Ensure InfluxRecorder plugs into the service.
var (
	_ service.Extension          = (*InfluxRecorder)(nil)
	_ service.LightAddedListener = (*InfluxRecorder)(nil)
	_ service.TickListener       = (*InfluxRecorder)(nil)
	_ light.ChangeListener       = (*InfluxRecorder)(nil)
)

// InfluxRecorder writes numeric light state to InfluxDB on change.
type InfluxRecorder struct {
	writer InfluxWriter
	stats  ServiceSource
}

// NewInfluxRecorder creates a recorder. stats is optional; when set, a
// service summary point is written on every tick.
func NewInfluxRecorder(writer InfluxWriter, stats ServiceSource) *InfluxRecorder {
	return &InfluxRecorder{writer: writer, stats: stats}
}

// Name implements service.Extension.
func (r *InfluxRecorder) Name() string { return "influxdb" }

// Start writes the current state of every known light.
func (r *InfluxRecorder) Start(_ context.Context, host service.Host) error {
	for _, l := range host.Lights() {
		r.OnLightAdded(l)
	}
	return nil
}

// Stop implements service.Extension. The client owns flushing.
func (r *InfluxRecorder) Stop() {}

// OnLightAdded writes the light's first state point.
func (r *InfluxRecorder) OnLightAdded(l *light.Light) {
	r.writeState(l.Snapshot())
}

// OnLightChange writes a state point when power, colour or label change,
// and a reachability point when reachability flips.
func (r *InfluxRecorder) OnLightChange(l *light.Light, p light.Property, _, newValue any) {
	switch p {
	case light.PropertyPower, light.PropertyColor, light.PropertyLabel:
		r.writeState(l.Snapshot())
	case light.PropertyReachable:
		reachable, _ := newValue.(bool)
		r.writer.WriteReachability(light.FormatID(l.ID()), reachable)
	}
}

// OnTick writes the service summary.
func (r *InfluxRecorder) OnTick(_ context.Context, _ time.Time) {
	if r.stats == nil {
		return
	}
	s := r.stats.Stats()
	r.writer.WritePoint(influxdb.MeasurementServiceStat, nil, map[string]any{
		"lights":               int64(s.Lights),
		"reachable":            int64(s.Reachable),
		"frames_handled":       int64(s.FramesHandled),
		"correlation_pending":  int64(s.Correlation.Pending),
		"correlation_timeouts": int64(s.Correlation.Timeouts),
	})
}

func (r *InfluxRecorder) writeState(s light.State) {
	r.writer.WriteLightState(influxdb.LightState{
		LightID:    light.FormatID(s.ID),
		Label:      s.Label,
		Power:      s.Power,
		Hue:        s.Color.Hue,
		Saturation: s.Color.Saturation,
		Brightness: s.Color.Brightness,
		Kelvin:     s.Color.Kelvin,
		Reachable:  s.Reachable,
		Timestamp:  time.Now(),
	})
}
