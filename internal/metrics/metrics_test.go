package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-lifx/internal/correlation"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

type fixedStats struct {
	stats service.Stats
}

func (f fixedStats) Stats() service.Stats { return f.stats }

type fixedTransport struct{}

func (fixedTransport) Stats() transport.Stats {
	return transport.Stats{FramesRx: 7, Connected: true}
}

// gathered sums the samples of every gathered metric family by name.
func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				out[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := fixedStats{stats: service.Stats{
		Lights:        4,
		Reachable:     3,
		FramesHandled: 99,
		Correlation:   correlation.Stats{Sent: 10, Timeouts: 2, Pending: 1},
	}}

	c, err := NewCollector(src, WithRegistry(reg), WithNamespace("test"), WithTransport(fixedTransport{}))
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	l := light.New(1, light.Options{})
	c.OnLightChange(l, light.PropertyPower, uint16(0), uint16(65535))
	c.OnLightChange(l, light.PropertyPower, uint16(65535), uint16(0))
	c.OnLightChange(l, light.PropertyLabel, "", "x")

	got := gathered(t, reg)
	want := map[string]float64{
		"test_light_tracked":                4,
		"test_light_reachable":              3,
		"test_service_frames_handled_total": 99,
		"test_correlation_sent_total":       10,
		"test_correlation_timeouts_total":   2,
		"test_correlation_pending":          1,
		"test_udp_frames_received_total":    7,
		"test_udp_connected":                1,
		"test_light_property_changes_total": 3,
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %v, want %v", name, got[name], v)
		}
	}
}

func TestCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(fixedStats{}, WithRegistry(reg)); err != nil {
		t.Fatalf("first NewCollector() error = %v", err)
	}
	if _, err := NewCollector(fixedStats{}, WithRegistry(reg)); err == nil {
		t.Error("second NewCollector() on the same registry should fail")
	}
}

// MockWriter records InfluxDB writes.
type MockWriter struct {
	mu        sync.Mutex
	states    []influxdb.LightState
	reachable []bool
	points    []string
}

func (m *MockWriter) WriteLightState(s influxdb.LightState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *MockWriter) WriteReachability(_ string, reachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reachable = append(m.reachable, reachable)
}

func (m *MockWriter) WritePoint(measurement string, _ map[string]string, _ map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, measurement)
}

type nopRequester struct{}

func (nopRequester) Do(_ context.Context, req correlation.Request) (protocol.Payload, error) {
	if req.SideEffect != nil {
		req.SideEffect()
	}
	return nil, nil
}

func TestInfluxRecorder(t *testing.T) {
	w := &MockWriter{}
	r := NewInfluxRecorder(w, fixedStats{stats: service.Stats{Lights: 1}})
	l := light.New(0xAB, light.Options{Requester: nopRequester{}, Listener: r})

	r.OnLightAdded(l)
	if _, err := l.SetColor(context.Background(), protocol.HSBK{Hue: 5, Kelvin: 3000}, 0, light.Flags{}); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}
	r.OnLightChange(l, light.PropertyReachable, false, true)
	r.OnLightChange(l, light.PropertyHostFirmware, light.Firmware{}, light.Firmware{Build: 1})
	r.OnTick(context.Background(), time.Now())

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.states) != 2 {
		t.Fatalf("state points = %d, want 2", len(w.states))
	}
	if last := w.states[1]; last.Hue != 5 || last.Kelvin != 3000 || last.LightID != light.FormatID(0xAB) {
		t.Errorf("last state = %+v", last)
	}
	if len(w.reachable) != 1 || !w.reachable[0] {
		t.Errorf("reachability points = %v", w.reachable)
	}
	if len(w.points) != 1 || w.points[0] != influxdb.MeasurementServiceStat {
		t.Errorf("custom points = %v", w.points)
	}
}
