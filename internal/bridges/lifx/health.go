package lifx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

// DefaultHealthInterval is the health publish period when none is set.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the slice of the MQTT client the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// SocketStatus reports on the UDP socket. *transport.UDPTransport
// implements it.
type SocketStatus interface {
	IsConnected() bool
	Stats() transport.Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string
	Topic    string

	// Interval defaults to DefaultHealthInterval.
	Interval time.Duration

	Publisher HealthPublisher

	// Socket adds frame counters to each report. Optional.
	Socket SocketStatus
}

// HealthReporter publishes a retained HealthMessage on a fixed period and
// logs every status transition.
type HealthReporter struct {
	cfg     HealthReporterConfig
	started time.Time

	mu     sync.Mutex
	counts func() (total, reachable int)
	logger Logger
	last   HealthStatus

	stop     chan struct{}
	stopped  sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter returns a reporter that does nothing until Start.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	return &HealthReporter{
		cfg:     cfg,
		started: time.Now(),
		stop:    make(chan struct{}),
	}
}

// SetLightCounter installs the function reporting how many lights are
// tracked and reachable.
func (h *HealthReporter) SetLightCounter(fn func() (total, reachable int)) {
	h.mu.Lock()
	h.counts = fn
	h.mu.Unlock()
}

// SetLogger sets the logger for publish failures and transitions.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// Start publishes immediately and then every interval until ctx ends or
// Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.stopped.Add(1)
	go func() {
		defer h.stopped.Done()
		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()

		for {
			if err := h.PublishNow(); err != nil {
				h.logWarn("health publish failed", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the loop and publishes a final stopping status. It is safe to
// call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.stopped.Wait()
		h.publish(HealthStopping, "") //nolint:errcheck // shutting down
	})
}

// PublishStarting announces the bridge before its first full report.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow evaluates and publishes the current status.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.evaluate()
	return h.publish(status, reason)
}

// evaluate returns degraded with the first failing dependency, in order
// of MQTT then UDP.
func (h *HealthReporter) evaluate() (HealthStatus, string) {
	switch {
	case h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected():
		return HealthDegraded, "MQTT disconnected"
	case h.cfg.Socket != nil && !h.cfg.Socket.IsConnected():
		return HealthDegraded, "UDP socket disconnected"
	default:
		return HealthHealthy, ""
	}
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	h.mu.Lock()
	counts, logger, previous := h.counts, h.logger, h.last
	h.last = status
	h.mu.Unlock()

	if logger != nil && previous != "" && previous != status {
		logger.Info("bridge health changed", "from", previous, "to", status, "reason", reason)
	}

	var total, reachable int
	if counts != nil {
		total, reachable = counts()
	}
	var stats transport.Stats
	if h.cfg.Socket != nil {
		stats = h.cfg.Socket.Stats()
	}

	msg := NewHealthMessage(h.cfg.BridgeID, h.cfg.Version, status, stats, total, reachable, h.started)
	msg.Reason = reason
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}

func (h *HealthReporter) logWarn(msg string, err error) {
	h.mu.Lock()
	logger := h.logger
	h.mu.Unlock()
	if logger != nil {
		logger.Warn(msg, "error", err)
	}
}
