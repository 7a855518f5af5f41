package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

// MockTransport records sends and lets tests inject inbound frames.
type MockTransport struct {
	mu       sync.Mutex
	sent     []protocol.Message
	callback func(transport.Inbound)
}

func (m *MockTransport) Send(msg protocol.Message, _ net.IP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *MockTransport) SetOnMessage(cb func(transport.Inbound)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

func (m *MockTransport) IsConnected() bool { return true }

func (m *MockTransport) deliver(msg protocol.Message) {
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(transport.Inbound{Message: msg, Addr: net.IPv4(10, 0, 0, 15), ReceivedAt: time.Now()})
	}
}

func (m *MockTransport) countType(t protocol.MessageType, target uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Header.Type == t && s.Header.Target == target {
			n++
		}
	}
	return n
}

// MockExtension records every hook.
type MockExtension struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	added    []uint64
	messages int
	ticks    int
	changes  []light.Property
}

func (m *MockExtension) Name() string { return "mock" }

func (m *MockExtension) Start(context.Context, Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *MockExtension) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *MockExtension) OnLightAdded(l *light.Light) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, l.ID())
}

func (m *MockExtension) OnMessage(transport.Inbound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages++
}

func (m *MockExtension) OnTick(context.Context, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func (m *MockExtension) OnLightChange(_ *light.Light, p light.Property, _, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, p)
}

type extSnapshot struct {
	started  bool
	stopped  bool
	added    []uint64
	messages int
	ticks    int
	changes  []light.Property
}

func (m *MockExtension) snapshot() extSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return extSnapshot{
		started:  m.started,
		stopped:  m.stopped,
		added:    append([]uint64(nil), m.added...),
		messages: m.messages,
		ticks:    m.ticks,
		changes:  append([]light.Property(nil), m.changes...),
	}
}

func newTestService(t *testing.T, tick time.Duration) (*Service, *MockTransport, *MockExtension) {
	t.Helper()
	tr := &MockTransport{}
	ext := &MockExtension{}
	s, err := New(Options{Transport: tr, SourceID: 77, TickInterval: tick, Extensions: []Extension{ext}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(s.Stop)
	return s, tr, ext
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestDiscoveryCreatesLightOnce(t *testing.T) {
	s, tr, ext := newTestService(t, time.Hour)

	eventually(t, func() bool { return tr.countType(protocol.TypeGetService, 0) == 1 })

	reply := protocol.NewMessage(protocol.StateService{Service: protocol.ServiceUDP, Port: 56700}, 77, 15, 0, false, false)
	for i := 0; i < 3; i++ {
		tr.deliver(reply)
	}

	eventually(t, func() bool { return ext.snapshot().messages == 3 })

	if got := len(s.Lights()); got != 1 {
		t.Fatalf("len(Lights()) = %d, want 1", got)
	}
	l, ok := s.Light(15)
	if !ok {
		t.Fatal("Light(15) not found")
	}
	if !l.Reachable() {
		t.Error("light not reachable after replies")
	}
	if got := ext.snapshot().added; len(got) != 1 || got[0] != 15 {
		t.Errorf("added = %v, want [15]", got)
	}

	for _, typ := range []protocol.MessageType{
		protocol.TypeGetHostFirmware, protocol.TypeGetWifiFirmware, protocol.TypeGetVersion,
		protocol.TypeGetGroup, protocol.TypeGetLocation, protocol.TypeLightGet,
	} {
		if got := tr.countType(typ, 15); got != 1 {
			t.Errorf("%s sent %d times, want 1", typ, got)
		}
	}
}

func TestBroadcastFramesDoNotCreateLights(t *testing.T) {
	s, tr, ext := newTestService(t, time.Hour)

	tr.deliver(protocol.NewBroadcast(protocol.GetService{}, 1234))
	eventually(t, func() bool { return ext.snapshot().messages == 1 })

	if len(s.Lights()) != 0 {
		t.Errorf("broadcast created %d lights", len(s.Lights()))
	}
}

func TestTickRediscoversAndPolls(t *testing.T) {
	s, tr, ext := newTestService(t, 20*time.Millisecond)

	tr.deliver(protocol.NewMessage(protocol.StateService{Service: protocol.ServiceUDP, Port: 56700}, 77, 15, 0, false, false))
	eventually(t, func() bool { return len(s.Lights()) == 1 })

	eventually(t, func() bool {
		return tr.countType(protocol.TypeGetService, 0) >= 3 && tr.countType(protocol.TypeLightGet, 15) >= 2
	})
	eventually(t, func() bool { return ext.snapshot().ticks >= 2 })
}

// stepClock is a settable clock shared by the service and its lights.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTickMarksSilentLightUnreachable(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := &MockTransport{}
	ext := &MockExtension{}
	s, err := New(Options{
		Transport:    tr,
		SourceID:     77,
		TickInterval: 10 * time.Millisecond,
		Now:          clock.Now,
		Extensions:   []Extension{ext},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(s.Stop)

	tr.deliver(protocol.NewMessage(protocol.StateService{Service: protocol.ServiceUDP, Port: 56700}, 77, 15, 0, false, false))
	eventually(t, func() bool { return len(s.Lights()) == 1 })
	l, _ := s.Light(15)
	if !l.Reachable() {
		t.Fatal("light not reachable after its first frame")
	}

	clock.Advance(light.ReachableTimeout + time.Second)
	eventually(t, func() bool { return !l.Reachable() })

	// Reachable on the first frame, unreachable after the silent tick.
	eventually(t, func() bool {
		n := 0
		for _, p := range ext.snapshot().changes {
			if p == light.PropertyReachable {
				n++
			}
		}
		return n == 2
	})

	tr.deliver(protocol.NewMessage(protocol.StatePower{Level: protocol.PowerOn}, 77, 15, 0, false, false))
	eventually(t, l.Reachable)
}

func TestChangesReachExtensions(t *testing.T) {
	s, tr, ext := newTestService(t, time.Hour)

	tr.deliver(protocol.NewMessage(protocol.StateLabel{Label: "Porch"}, 77, 15, 0, false, false))
	eventually(t, func() bool {
		l, ok := s.Light(15)
		return ok && l.Label() == "Porch"
	})

	changes := ext.snapshot().changes
	var sawLabel, sawReachable bool
	for _, p := range changes {
		sawLabel = sawLabel || p == light.PropertyLabel
		sawReachable = sawReachable || p == light.PropertyReachable
	}
	if !sawLabel || !sawReachable {
		t.Errorf("changes = %v, want label and reachable", changes)
	}
}

func TestCorrelatedCommandThroughService(t *testing.T) {
	s, tr, _ := newTestService(t, time.Hour)

	tr.deliver(protocol.NewMessage(protocol.StateService{}, 77, 15, 0, false, false))
	eventually(t, func() bool { return len(s.Lights()) == 1 })
	l, _ := s.Light(15)

	done := make(chan error, 1)
	go func() {
		_, err := l.SetPower(context.Background(), true, light.Flags{AckRequired: true})
		done <- err
	}()

	var seq uint8
	eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		for _, m := range tr.sent {
			if m.Header.Type == protocol.TypeSetPower {
				seq = m.Header.Sequence
				return true
			}
		}
		return false
	})
	tr.deliver(protocol.NewMessage(protocol.Acknowledgement{}, 77, 15, seq, false, false))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SetPower() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SetPower() did not complete")
	}
	if l.Power() != protocol.PowerOn {
		t.Error("optimistic power not applied")
	}
}

func TestStopStopsExtensions(t *testing.T) {
	tr := &MockTransport{}
	ext := &MockExtension{}
	s, err := New(Options{Transport: tr, Extensions: []Extension{ext}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.SourceID() == 0 {
		t.Error("SourceID() = 0, want random non-zero")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start() error = %v", err)
	}

	s.Stop()
	s.Stop()

	snap := ext.snapshot()
	if !snap.started || !snap.stopped {
		t.Errorf("extension started=%v stopped=%v", snap.started, snap.stopped)
	}
}

func TestUseAfterNew(t *testing.T) {
	s, err := New(Options{Transport: &MockTransport{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ext := &MockExtension{}
	if err := s.Use(ext); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Use(&MockExtension{}); err != ErrAlreadyStarted {
		t.Errorf("Use() after Start error = %v, want ErrAlreadyStarted", err)
	}
	s.Stop()

	snap := ext.snapshot()
	if !snap.started || !snap.stopped {
		t.Errorf("extension started=%v stopped=%v", snap.started, snap.stopped)
	}
}

func TestNewRequiresTransport(t *testing.T) {
	if _, err := New(Options{}); err != ErrNoTransport {
		t.Errorf("New() error = %v, want ErrNoTransport", err)
	}
}
