package lifx

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/correlation"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// MockMQTT implements MQTTClient for testing.
type MockMQTT struct {
	mu        sync.Mutex
	connected bool
	messages  []publishedMessage
	handlers  map[string]mqtt.MessageHandler
	failSub   error
}

func newMockMQTT() *MockMQTT {
	return &MockMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (m *MockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSub != nil {
		return m.failSub
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTT) setConnected(c bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = c
}

func (m *MockMQTT) published(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMessage
	for _, msg := range m.messages {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// deliver calls the handler subscribed to the command wildcard.
func (m *MockMQTT) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[mqtt.NewTopics("").AllCommands()]
	m.mu.Unlock()
	if h == nil {
		t.Fatal("no command handler subscribed")
	}
	if err := h(topic, payload); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

// MockRequester applies side effects, or fails every request with err.
type MockRequester struct {
	mu       sync.Mutex
	err      error
	payloads []protocol.Payload
}

func (m *MockRequester) Do(_ context.Context, req correlation.Request) (protocol.Payload, error) {
	m.mu.Lock()
	m.payloads = append(m.payloads, req.Payload)
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if req.SideEffect != nil {
		req.SideEffect()
	}
	return nil, nil
}

func (m *MockRequester) sent() []protocol.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Payload(nil), m.payloads...)
}

// MockHost is a fixed set of lights.
type MockHost struct {
	lights []*light.Light
}

func (h *MockHost) Lights() []*light.Light { return h.lights }

func (h *MockHost) Light(id uint64) (*light.Light, bool) {
	for _, l := range h.lights {
		if l.ID() == id {
			return l, true
		}
	}
	return nil, false
}

func (h *MockHost) Broadcast(protocol.Payload) error { return nil }

// MockSocket reports a fixed UDP status.
type MockSocket struct {
	connected bool
}

func (s *MockSocket) IsConnected() bool { return s.connected }

func (s *MockSocket) Stats() transport.Stats {
	return transport.Stats{FramesRx: 10, FramesTx: 4, Connected: s.connected}
}

const testLightID = uint64(0x030201d573d0)

func startBridge(t *testing.T, req *MockRequester, socket SocketStatus) (*Bridge, *MockMQTT, *light.Light) {
	t.Helper()
	client := newMockMQTT()
	b, err := New(Options{MQTT: client, Socket: socket, HealthInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l := light.New(testLightID, light.Options{Requester: req, Listener: b})
	if err := b.Start(context.Background(), &MockHost{lights: []*light.Light{l}}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, client, l
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func lastAck(t *testing.T, client *MockMQTT, id string) AckMessage {
	t.Helper()
	acks := client.published(mqtt.NewTopics("").Ack(id))
	if len(acks) == 0 {
		t.Fatal("no ack published")
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[len(acks)-1].payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func TestNewRequiresMQTT(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoMQTTClient) {
		t.Errorf("New() error = %v, want ErrNoMQTTClient", err)
	}
}

func TestStartSubscribeFailure(t *testing.T) {
	client := newMockMQTT()
	client.failSub = errors.New("broker gone")
	b, err := New(Options{MQTT: client})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background(), &MockHost{}); err == nil {
		t.Error("Start() should fail when subscribe fails")
	}
}

func TestStartAnnouncesExistingLights(t *testing.T) {
	_, client, _ := startBridge(t, &MockRequester{}, nil)
	topics := mqtt.NewTopics("")
	id := light.FormatID(testLightID)

	waitFor(t, func() bool { return len(client.published(topics.Discovery())) == 1 })
	disc := client.published(topics.Discovery())
	var msg DiscoveryMessage
	if err := json.Unmarshal(disc[0].payload, &msg); err != nil {
		t.Fatalf("unmarshal discovery: %v", err)
	}
	if len(msg.Lights) != 1 || msg.Lights[0].ID != id {
		t.Errorf("discovery lights = %+v, want %s", msg.Lights, id)
	}

	waitFor(t, func() bool { return len(client.published(topics.State(id))) == 1 })
	state := client.published(topics.State(id))[0]
	if !state.retained || state.qos != 1 {
		t.Errorf("state publish retained=%v qos=%d, want retained QoS 1", state.retained, state.qos)
	}
}

func TestStatePublishedOnChange(t *testing.T) {
	_, client, l := startBridge(t, &MockRequester{}, nil)
	topic := mqtt.NewTopics("").State(light.FormatID(testLightID))
	waitFor(t, func() bool { return len(client.published(topic)) >= 1 })

	if _, err := l.SetLabel(context.Background(), "Kitchen", light.Flags{}); err != nil {
		t.Fatalf("SetLabel() error = %v", err)
	}

	waitFor(t, func() bool {
		msgs := client.published(topic)
		var msg StateMessage
		if err := json.Unmarshal(msgs[len(msgs)-1].payload, &msg); err != nil {
			return false
		}
		return msg.State["label"] == "Kitchen"
	})
}

func TestEnqueueCoalescesAndDrops(t *testing.T) {
	client := newMockMQTT()
	b, err := New(Options{MQTT: client, QueueSize: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// Not started: nothing drains the queue.
	a := light.New(1, light.Options{Requester: &MockRequester{}})
	c := light.New(2, light.Options{Requester: &MockRequester{}})

	b.enqueue(a, false)
	b.enqueue(a, true)
	b.enqueue(c, false)

	m := b.GetMetrics()
	if m.StatesDropped != 1 {
		t.Errorf("StatesDropped = %d, want 1", m.StatesDropped)
	}
	if len(b.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(b.queue))
	}
	if !b.queued[a.ID()] {
		t.Error("coalesced request lost the discovery announcement")
	}
}

// SlowMQTT delays every publish to stand in for a congested broker.
type SlowMQTT struct {
	*MockMQTT
	delay time.Duration
}

func (s *SlowMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	time.Sleep(s.delay)
	return s.MockMQTT.Publish(topic, payload, qos, retained)
}

func TestOnLightAddedDoesNotWaitForBroker(t *testing.T) {
	client := &SlowMQTT{MockMQTT: newMockMQTT(), delay: 300 * time.Millisecond}
	b, err := New(Options{MQTT: client, HealthInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background(), &MockHost{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)

	l := light.New(testLightID, light.Options{Requester: &MockRequester{}})
	start := time.Now()
	b.OnLightAdded(l)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("OnLightAdded() took %v, want it to return without publishing", elapsed)
	}

	topics := mqtt.NewTopics("")
	waitFor(t, func() bool {
		return len(client.published(topics.Discovery())) == 1 &&
			len(client.published(topics.State(light.FormatID(testLightID)))) == 1
	})
}

func TestHandleCommand(t *testing.T) {
	id := light.FormatID(testLightID)
	tests := []struct {
		name     string
		topicID  string
		command  string
		params   map[string]any
		reqErr   error
		socket   *MockSocket
		wantOK   bool
		wantCode string
		check    func(t *testing.T, l *light.Light)
	}{
		{
			name: "on", topicID: id, command: CommandOn, wantOK: true,
			check: func(t *testing.T, l *light.Light) {
				if l.Power() != protocol.PowerOn {
					t.Errorf("Power() = %d, want on", l.Power())
				}
			},
		},
		{
			name: "set color keeps unspecified channels", topicID: id, command: CommandSetColor,
			params: map[string]any{"hue": 1000.0, "kelvin": 2700.0}, wantOK: true,
			check: func(t *testing.T, l *light.Light) {
				c := l.Color()
				if c.Hue != 1000 || c.Kelvin != 2700 || c.Saturation != 0 {
					t.Errorf("Color() = %+v", c)
				}
			},
		},
		{
			name: "set label", topicID: id, command: CommandSetLabel,
			params: map[string]any{"label": "Desk"}, wantOK: true,
			check: func(t *testing.T, l *light.Light) {
				if l.Label() != "Desk" {
					t.Errorf("Label() = %q, want Desk", l.Label())
				}
			},
		},
		{
			name: "set zones", topicID: id, command: CommandSetZones,
			params: map[string]any{"start": 0.0, "end": 3.0, "brightness": 100.0}, wantOK: true,
		},
		{
			name: "refresh", topicID: id, command: CommandRefresh, wantOK: true,
		},
		{
			name: "unknown command", topicID: id, command: "explode",
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name: "brightness out of range", topicID: id, command: CommandSetBrightness,
			params: map[string]any{"brightness": 70000.0}, wantCode: ErrCodeInvalidParameters,
		},
		{
			name: "brightness missing", topicID: id, command: CommandSetBrightness,
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name: "zones end before start", topicID: id, command: CommandSetZones,
			params: map[string]any{"start": 5.0, "end": 2.0}, wantCode: ErrCodeInvalidParameters,
		},
		{
			name: "unknown light", topicID: "aabbccddeeff", command: CommandOn,
			wantCode: ErrCodeUnknownDevice,
		},
		{
			name: "malformed id", topicID: "kitchen", command: CommandOn,
			wantCode: ErrCodeUnknownDevice,
		},
		{
			name: "device timeout", topicID: id, command: CommandOff, reqErr: correlation.ErrTimeout,
			wantCode: ErrCodeTimeout,
		},
		{
			name: "socket down", topicID: id, command: CommandOn, socket: &MockSocket{connected: false},
			wantCode: ErrCodeNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &MockRequester{err: tt.reqErr}
			var socket SocketStatus
			if tt.socket != nil {
				socket = tt.socket
			}
			b, client, l := startBridge(t, req, socket)

			payload, err := json.Marshal(&CommandMessage{
				ID:         "cmd-1",
				Timestamp:  time.Now(),
				Command:    tt.command,
				Parameters: tt.params,
				Source:     "test",
			})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			client.deliver(t, mqtt.NewTopics("").Command(tt.topicID), payload)

			ack := lastAck(t, client, tt.topicID)
			if ack.CommandID != "cmd-1" || ack.DeviceID != tt.topicID {
				t.Errorf("ack ids = %q/%q", ack.CommandID, ack.DeviceID)
			}
			if tt.wantOK {
				if ack.Status != AckAccepted || ack.Error != nil {
					t.Fatalf("ack = %+v, want accepted", ack)
				}
			} else {
				if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
					t.Fatalf("ack = %+v, want failed %s", ack, tt.wantCode)
				}
				if b.GetMetrics().CommandFailures != 1 {
					t.Errorf("CommandFailures = %d, want 1", b.GetMetrics().CommandFailures)
				}
			}
			if tt.check != nil {
				tt.check(t, l)
			}
		})
	}
}

func TestHandleCommandAssignsID(t *testing.T) {
	_, client, _ := startBridge(t, &MockRequester{}, nil)
	id := light.FormatID(testLightID)

	client.deliver(t, mqtt.NewTopics("").Command(id), []byte(`{"command":"off"}`))

	ack := lastAck(t, client, id)
	if ack.CommandID == "" {
		t.Error("ack command_id should be generated")
	}
}

func TestHandleCommandRejectsBadPayload(t *testing.T) {
	b, _, _ := startBridge(t, &MockRequester{}, nil)
	topic := mqtt.NewTopics("").Command(light.FormatID(testLightID))

	if err := b.handleCommand(topic, []byte("{")); err == nil {
		t.Error("handleCommand() should reject malformed JSON")
	}
	if err := b.handleCommand("graylogic/state/lifx/x", []byte("{}")); err == nil {
		t.Error("handleCommand() should reject a non-command topic")
	}
}

func TestSetInfraredUnsupported(t *testing.T) {
	req := &MockRequester{}
	l := light.New(testLightID, light.Options{Requester: req})
	l.HandleMessage(protocol.Message{Payload: protocol.StateVersion{Vendor: 1, Product: 1}}, nil)

	err := Execute(context.Background(), l, CommandMessage{
		Command:    CommandSetInfrared,
		Parameters: map[string]any{"brightness": 10.0},
	})
	if ErrorCode(err) != ErrCodeUnsupported {
		t.Errorf("ErrorCode(%v) = %s, want %s", err, ErrorCode(err), ErrCodeUnsupported)
	}
	if len(req.sent()) != 0 {
		t.Errorf("sent %d frames, want 0", len(req.sent()))
	}
}

func TestRefreshPolls(t *testing.T) {
	req := &MockRequester{}
	l := light.New(testLightID, light.Options{Requester: req})

	if err := Execute(context.Background(), l, CommandMessage{Command: CommandRefresh}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var types []string
	for _, p := range req.sent() {
		types = append(types, p.Type().String())
	}
	if len(types) == 0 {
		t.Fatal("refresh sent nothing")
	}
	joined := strings.Join(types, ",")
	if !strings.Contains(joined, protocol.LightGet{}.Type().String()) {
		t.Errorf("refresh types = %s, want LightGet", joined)
	}
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name       string
		mqttUp     bool
		socket     *MockSocket
		wantStatus HealthStatus
	}{
		{"healthy", true, &MockSocket{connected: true}, HealthHealthy},
		{"mqtt down", false, &MockSocket{connected: true}, HealthDegraded},
		{"udp down", true, &MockSocket{connected: false}, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockMQTT()
			client.setConnected(tt.mqttUp)
			h := NewHealthReporter(HealthReporterConfig{
				BridgeID:  "test",
				Topic:     "graylogic/health/lifx",
				Publisher: client,
				Socket:    tt.socket,
			})
			h.SetLightCounter(func() (int, int) { return 3, 2 })

			if err := h.PublishNow(); err != nil {
				t.Fatalf("PublishNow() error = %v", err)
			}
			msgs := client.published("graylogic/health/lifx")
			if len(msgs) != 1 || !msgs[0].retained {
				t.Fatalf("health messages = %+v", msgs)
			}
			var msg HealthMessage
			if err := json.Unmarshal(msgs[0].payload, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", msg.Status, tt.wantStatus)
			}
			if msg.LightsManaged != 3 || msg.LightsReachable != 2 {
				t.Errorf("lights = %d/%d, want 3/2", msg.LightsManaged, msg.LightsReachable)
			}
			if msg.Statistics == nil || msg.Statistics.FramesReceived != 10 {
				t.Errorf("Statistics = %+v", msg.Statistics)
			}
		})
	}
}

func TestHealthStopPublishesStopping(t *testing.T) {
	client := newMockMQTT()
	h := NewHealthReporter(HealthReporterConfig{Topic: "h", Publisher: client, Interval: time.Hour})
	h.Start(context.Background())
	h.Stop()
	h.Stop()

	msgs := client.published("h")
	if len(msgs) < 2 {
		t.Fatalf("health messages = %d, want initial and stopping", len(msgs))
	}
	var last HealthMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &last); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("last Status = %s, want stopping", last.Status)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func TestHealthTransitionLogged(t *testing.T) {
	client := newMockMQTT()
	client.setConnected(true)
	log := &recordingLogger{}
	h := NewHealthReporter(HealthReporterConfig{Topic: "h", Publisher: client})
	h.SetLogger(log)

	for _, up := range []bool{true, true, false, false, true} {
		client.setConnected(up)
		if err := h.PublishNow(); err != nil {
			t.Fatalf("PublishNow() error = %v", err)
		}
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.infos) != 2 {
		t.Errorf("transitions logged = %d, want 2 (%v)", len(log.infos), log.infos)
	}
}

func TestCommandMessageTimestamp(t *testing.T) {
	var cmd CommandMessage
	if err := json.Unmarshal([]byte(`{"id":"a","timestamp":"2026-01-02T03:04:05Z","command":"on"}`), &cmd); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cmd.Timestamp.Year() != 2026 || cmd.Command != CommandOn {
		t.Errorf("cmd = %+v", cmd)
	}
	if err := json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &cmd); err == nil {
		t.Error("Unmarshal() should reject a bad timestamp")
	}
}
