package lifx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
)

// Bridge defaults.
const (
	// DefaultBridgeID names the bridge in health and discovery messages.
	DefaultBridgeID = "lifxd"

	// DefaultCommandTimeout bounds each device command.
	DefaultCommandTimeout = 2 * time.Second

	// DefaultQueueSize is the number of lights whose state can wait for
	// publication at once.
	DefaultQueueSize = 256
)

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client implements it; tests use a mock.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the broker connection. Required.
	MQTT MQTTClient

	// Topics builds every topic. Zero value uses the default prefix.
	Topics mqtt.Topics

	// Socket reports UDP health. Optional.
	Socket SocketStatus

	// BridgeID names this bridge. Default: "lifxd".
	BridgeID string

	// Version is reported in health messages.
	Version string

	// HealthInterval is the health publish period. Default: 30s.
	HealthInterval time.Duration

	// CommandTimeout bounds each command. Default: 2s.
	CommandTimeout time.Duration

	// QueueSize bounds the state publish queue. Default: 256.
	QueueSize int

	Logger Logger
}

// Metrics contains bridge counters.
type Metrics struct {
	StatesPublished uint64
	StatesDropped   uint64
	Commands        uint64
	CommandFailures uint64
}

// Ensure Bridge plugs into the service.
var (
	_ service.Extension          = (*Bridge)(nil)
	_ service.LightAddedListener = (*Bridge)(nil)
	_ light.ChangeListener       = (*Bridge)(nil)
)

// Bridge publishes light state to MQTT and executes commands received
// from it.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts   Options
	mqtt   MQTTClient
	topics mqtt.Topics
	health *HealthReporter

	hostMu sync.RWMutex
	host   service.Host

	// Publish queue drained by publishWorker. queued holds the ids waiting
	// in it so a burst of changes to one light costs one publication; the
	// value is true while a discovery announcement is owed for that id.
	queue    chan *light.Light
	queuedMu sync.Mutex
	queued   map[uint64]bool

	// Shutdown coordination
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  atomic.Bool

	statesPublished atomic.Uint64
	statesDropped   atomic.Uint64
	commands        atomic.Uint64
	commandFailures atomic.Uint64

	logger Logger
}

// New creates a bridge. It is started by the service as an extension.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, ErrNoMQTTClient
	}
	if opts.BridgeID == "" {
		opts.BridgeID = DefaultBridgeID
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	topics := mqtt.NewTopics(opts.Topics.Prefix)

	b := &Bridge{
		opts:   opts,
		mqtt:   opts.MQTT,
		topics: topics,
		queue:  make(chan *light.Light, opts.QueueSize),
		queued: make(map[uint64]bool),
		done:   make(chan struct{}),
		logger: opts.Logger,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Topic:     topics.Health(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Socket:    opts.Socket,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}
	return b, nil
}

// Name implements service.Extension.
func (b *Bridge) Name() string { return "mqtt-bridge" }

// Start subscribes to commands, starts the publish worker and health
// reporting, and announces the lights the host already knows.
func (b *Bridge) Start(ctx context.Context, host service.Host) error {
	if !b.started.CompareAndSwap(false, true) {
		return nil
	}

	b.hostMu.Lock()
	b.host = host
	b.hostMu.Unlock()
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.health.SetLightCounter(func() (int, int) {
		lights := host.Lights()
		reachable := 0
		for _, l := range lights {
			if l.Reachable() {
				reachable++
			}
		}
		return len(lights), reachable
	})
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommand); err != nil {
		b.cancel()
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.wg.Add(1)
	go b.publishWorker()

	b.health.Start(b.ctx)

	for _, l := range host.Lights() {
		b.OnLightAdded(l)
	}

	b.logInfo("bridge started", "bridge_id", b.opts.BridgeID)
	return nil
}

// Stop halts the worker and health reporting. Queued states are discarded.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		close(b.done)
		b.wg.Wait()
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// OnLightAdded queues a discovery announcement and the first state. It
// runs on the service dispatch goroutine and never waits on the broker.
func (b *Bridge) OnLightAdded(l *light.Light) {
	b.enqueue(l, true)
}

// OnLightChange queues a state publication for l.
func (b *Bridge) OnLightChange(l *light.Light, _ light.Property, _, _ any) {
	b.enqueue(l, false)
}

// enqueue never blocks; a full queue drops the publication. A light
// already waiting absorbs the request, picking up announce if set.
func (b *Bridge) enqueue(l *light.Light, announce bool) {
	b.queuedMu.Lock()
	defer b.queuedMu.Unlock()

	if owed, waiting := b.queued[l.ID()]; waiting {
		b.queued[l.ID()] = owed || announce
		return
	}
	select {
	case b.queue <- l:
		b.queued[l.ID()] = announce
	default:
		b.statesDropped.Add(1)
		b.logWarn("state queue full, dropping publication", "light", light.FormatID(l.ID()))
	}
}

func (b *Bridge) publishWorker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case l := <-b.queue:
			b.queuedMu.Lock()
			announce := b.queued[l.ID()]
			delete(b.queued, l.ID())
			b.queuedMu.Unlock()

			snap := l.Snapshot()
			if announce {
				b.publishJSON(b.topics.Discovery(), NewDiscoveryMessage(b.opts.BridgeID, snap), false)
			}
			b.publishState(snap)
		}
	}
}

func (b *Bridge) publishState(snap light.State) {
	msg := NewStateMessage(snap)
	if b.publishJSON(b.topics.State(msg.DeviceID), msg, true) {
		b.statesPublished.Add(1)
	}
}

// handleCommand is the MQTT handler for every command topic.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	rawID, ok := b.topics.LightFromCommand(topic)
	if !ok {
		return fmt.Errorf("unexpected command topic %q", topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.DeviceID = rawID
	b.commands.Add(1)

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	code, err := b.runCommand(cmd)
	if err != nil {
		b.commandFailures.Add(1)
		b.publishAck(cmd, NewAckError(cmd, code, err.Error()))
		b.logWarn("command failed", "command_id", cmd.ID, "device_id", cmd.DeviceID,
			"code", code, "error", err)
		return nil
	}
	b.publishAck(cmd, NewAckMessage(cmd, AckAccepted))
	return nil
}

// runCommand resolves the light and executes cmd, returning the ack error
// code on failure.
func (b *Bridge) runCommand(cmd CommandMessage) (string, error) {
	b.hostMu.RLock()
	host := b.host
	b.hostMu.RUnlock()
	if host == nil || b.ctx == nil {
		return ErrCodeBridgeError, ErrNotStarted
	}

	id, err := light.ParseID(cmd.DeviceID)
	if err != nil {
		return ErrCodeUnknownDevice, err
	}
	l, ok := host.Light(id)
	if !ok {
		return ErrCodeUnknownDevice, fmt.Errorf("light %s not found", cmd.DeviceID)
	}
	if s := b.opts.Socket; s != nil && !s.IsConnected() {
		return ErrCodeNotConnected, fmt.Errorf("UDP socket not connected")
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.opts.CommandTimeout)
	defer cancel()

	if err := Execute(ctx, l, cmd); err != nil {
		return ErrorCode(err), err
	}
	return "", nil
}

func (b *Bridge) publishAck(cmd CommandMessage, ack AckMessage) {
	b.publishJSON(b.topics.Ack(cmd.DeviceID), ack, false)
}

// publishJSON marshals v and publishes it at QoS 1.
func (b *Bridge) publishJSON(topic string, v any, retained bool) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to marshal message", err)
		return false
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.logError("failed to publish", fmt.Errorf("%s: %w", topic, err))
		return false
	}
	return true
}

// Health returns the bridge's health reporter.
func (b *Bridge) Health() *HealthReporter { return b.health }

// GetMetrics returns current bridge counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		StatesPublished: b.statesPublished.Load(),
		StatesDropped:   b.statesDropped.Load(),
		Commands:        b.commands.Load(),
		CommandFailures: b.commandFailures.Load(),
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
