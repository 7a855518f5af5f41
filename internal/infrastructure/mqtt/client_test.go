package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
)

// MockLogger records log calls.
type MockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (m *MockLogger) Error(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *MockLogger) Warn(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "lifxd-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("home/")
	id := "d0:73:d5:01:02:03"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"state", topics.State(id), "home/state/lifx/" + id},
		{"command", topics.Command(id), "home/command/lifx/" + id},
		{"all commands", topics.AllCommands(), "home/command/lifx/+"},
		{"ack", topics.Ack(id), "home/ack/lifx/" + id},
		{"health", topics.Health(), "home/health/lifx"},
		{"discovery", topics.Discovery(), "home/discovery/lifx"},
		{"status", topics.Status(), "home/system/lifx/status"},
		{"zero value", Topics{}.Health(), "graylogic/health/lifx"},
		{"empty prefix", NewTopics("").State(id), "graylogic/state/lifx/" + id},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLightFromCommand(t *testing.T) {
	topics := NewTopics("graylogic")

	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"graylogic/command/lifx/d0:73:d5:01:02:03", "d0:73:d5:01:02:03", true},
		{"graylogic/command/lifx/", "", false},
		{"graylogic/command/lifx/a/b", "", false},
		{"graylogic/state/lifx/d0:73:d5:01:02:03", "", false},
		{"other/command/lifx/x", "", false},
	}
	for _, tt := range tests {
		id, ok := topics.LightFromCommand(tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("LightFromCommand(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "lifxd-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect with a clean session")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config not set")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("home"), "lifxd-test")

	if !opts.WillEnabled || opts.WillTopic != "home/system/lifx/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	var will StatusMessage
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	if will.Status != StatusOffline || will.Reason != "unexpected_disconnect" || will.ClientID != "lifxd-test" {
		t.Errorf("will = %+v", will)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newClient(testConfig(), NewTopics(""))

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"bad qos", "t", 3, nil, ErrInvalidQoS},
		{"too large", "t", 1, make([]byte, maxPayload+1), ErrPayloadTooLarge},
		{"not connected", "t", 1, []byte("{}"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newClient(testConfig(), NewTopics(""))
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if subs := c.Subscriptions(); len(subs) != 0 {
		t.Errorf("failed subscriptions tracked: %v", subs)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := newClient(testConfig(), NewTopics(""))
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v, want context.Canceled", err)
	}
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	c := newClient(testConfig(), NewTopics(""))
	logger := &MockLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors=%v warns=%v, want one of each", logger.errors, logger.warns)
	}
	if st := c.Stats(); st.Received != 2 || st.HandlerErrors != 2 {
		t.Errorf("Stats() = %+v, want 2 received and 2 handler errors", st)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
	if err := newClient(testConfig(), NewTopics("")).Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
