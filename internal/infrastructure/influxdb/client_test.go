package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
)

// MockWriter records written points.
type MockWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (m *MockWriter) WritePoint(p *write.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
}

func (m *MockWriter) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

func newTestClient() (*Client, *MockWriter) {
	w := &MockWriter{}
	c := &Client{writeAPI: w}
	c.connected.Store(true)
	return c, w
}

func fieldMap(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tagMap(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Bucket:  "lifx",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteLightState(t *testing.T) {
	c, w := newTestClient()

	c.WriteLightState(LightState{
		LightID:    "d0:73:d5:00:00:01",
		Label:      "Desk",
		Power:      0xFFFF,
		Hue:        0xFFFF,
		Saturation: 0,
		Brightness: 0xFFFF,
		Kelvin:     3500,
		Reachable:  true,
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementLightState {
		t.Errorf("measurement = %q", p.Name())
	}
	if tags := tagMap(p); tags["light_id"] != "d0:73:d5:00:00:01" || tags["label"] != "Desk" {
		t.Errorf("tags = %v", tags)
	}
	fields := fieldMap(p)
	if fields["on"] != true {
		t.Errorf("on = %v, want true", fields["on"])
	}
	if fields["hue"] != 360.0 {
		t.Errorf("hue = %v, want 360", fields["hue"])
	}
	if fields["brightness"] != 1.0 {
		t.Errorf("brightness = %v, want 1", fields["brightness"])
	}
	if fields["kelvin"] != int64(3500) {
		t.Errorf("kelvin = %v, want 3500", fields["kelvin"])
	}
}

func TestWriteReachabilityAndPoint(t *testing.T) {
	c, w := newTestClient()

	c.WriteReachability("d0:73:d5:00:00:01", false)
	c.WritePoint(MeasurementServiceStat, map[string]string{"site": "home"}, map[string]any{"lights": int64(3)})

	if len(w.points) != 2 {
		t.Fatalf("points = %d, want 2", len(w.points))
	}
	if fieldMap(w.points[0])["reachable"] != false {
		t.Error("reachable field not false")
	}
	if w.points[1].Name() != MeasurementServiceStat {
		t.Errorf("measurement = %q", w.points[1].Name())
	}
	if st := c.Stats(); st.Written != 2 || st.WriteErrors != 0 {
		t.Errorf("Stats() = %+v, want 2 written", st)
	}
}

func TestWritesDroppedWhenDisconnected(t *testing.T) {
	c, w := newTestClient()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	c.WriteLightState(LightState{LightID: "x"})
	c.WriteReachability("x", true)
	c.Flush()

	if len(w.points) != 0 {
		t.Errorf("points after Close = %d, want 0", len(w.points))
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1 (from Close)", w.flushes)
	}
	if err := c.Close(); err != nil || w.flushes != 1 {
		t.Errorf("second Close() = %v, flushes = %d", err, w.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

func TestWriteErrorCallback(t *testing.T) {
	c, _ := newTestClient()

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	ch := make(chan error, 1)
	ch <- errors.New("write rejected")
	close(ch)
	c.handleWriteErrors(ch)

	select {
	case err := <-got:
		if err.Error() != "write rejected" {
			t.Errorf("err = %v", err)
		}
	default:
		t.Fatal("callback not invoked")
	}
	if c.Stats().WriteErrors != 1 {
		t.Errorf("WriteErrors = %d, want 1", c.Stats().WriteErrors)
	}
}
