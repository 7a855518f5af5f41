package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Defaults for socket behaviour.
const (
	// DefaultReconnectDelay is the fixed pause between rebind attempts.
	DefaultReconnectDelay = 2 * time.Second

	// defaultReadTimeout bounds each blocking read so shutdown is noticed.
	defaultReadTimeout = time.Second

	// defaultWriteTimeout bounds each datagram write.
	defaultWriteTimeout = time.Second

	// readBufferSize fits the largest frame (StateDeviceChain, 918 bytes)
	// with room for a few small frames in the same datagram.
	readBufferSize = 2048

	// deliveryQueueSize is the buffer between the socket reader and the callback.
	deliveryQueueSize = 256
)

// BroadcastAddr is the limited broadcast address used for discovery.
var BroadcastAddr = net.IPv4bcast

// Config holds socket configuration.
type Config struct {
	// Name labels log lines ("primary", "legacy").
	Name string

	// Port is the local port to bind. 0 selects an ephemeral port.
	Port int

	// DestinationPort is the device port all sends go to.
	// Default: 56700.
	DestinationPort int

	// ReuseAddress sets SO_REUSEADDR before binding.
	ReuseAddress bool

	// ReconnectDelay is the pause between rebind attempts.
	// Default: 2 seconds.
	ReconnectDelay time.Duration

	// ReadTimeout bounds each read so the loop can observe shutdown.
	// Default: 1 second.
	ReadTimeout time.Duration
}

// Inbound is one decoded frame and the address it came from.
type Inbound struct {
	Message    protocol.Message
	Addr       net.IP
	ReceivedAt time.Time
}

// Stats holds operational statistics.
type Stats struct {
	FramesTx        uint64
	FramesRx        uint64
	FramesDropped   uint64 // Frames dropped due to a full delivery queue
	DecodeErrors    uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Transport is the socket surface the rest of the client depends on.
type Transport interface {
	Send(msg protocol.Message, ip net.IP) error
	SetOnMessage(callback func(Inbound))
	IsConnected() bool
	Stats() Stats
	Close() error
}

// Ensure UDPTransport implements Transport.
var _ Transport = (*UDPTransport)(nil)

// UDPTransport is a bound UDP socket with automatic rebind.
type UDPTransport struct {
	cfg Config

	connMu    sync.RWMutex
	conn      *net.UDPConn
	connected bool

	reconnecting atomic.Bool

	onMessage  func(Inbound)
	callbackMu sync.RWMutex

	deliveryQueue chan Inbound

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	framesDropped   atomic.Uint64
	decodeErrors    atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix nanoseconds
}

// Listen binds the socket and starts the receive and delivery goroutines.
//
// Parameters:
//   - ctx: Context for cancellation of the initial bind
//   - cfg: Socket configuration
//
// Returns:
//   - *UDPTransport: Bound transport ready for use
//   - error: ErrBindFailed if the port cannot be bound
func Listen(ctx context.Context, cfg Config) (*UDPTransport, error) {
	if cfg.DestinationPort == 0 {
		cfg.DestinationPort = protocol.DefaultPort
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "udp"
	}

	t := &UDPTransport{
		cfg:           cfg,
		done:          newCloseOnce(),
		deliveryQueue: make(chan Inbound, deliveryQueueSize),
	}

	conn, err := t.bind(ctx)
	if err != nil {
		return nil, err
	}

	t.connMu.Lock()
	t.conn = conn
	t.connected = true
	t.connMu.Unlock()
	t.lastActivity.Store(time.Now().UnixNano())

	t.wg.Add(2) //nolint:mnd // receive loop + delivery worker
	go t.deliveryWorker()
	go t.receiveLoop()

	return t, nil
}

func (t *UDPTransport) bind(ctx context.Context) (*net.UDPConn, error) {
	lc := net.ListenConfig{}
	if t.cfg.ReuseAddress {
		lc.Control = reuseAddrControl
	}

	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", t.cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %w", ErrBindFailed, t.cfg.Port, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("%w: unexpected socket type %T", ErrBindFailed, pc)
	}
	return conn, nil
}

// SetLogger sets the logger for the transport.
func (t *UDPTransport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	defer t.loggerMu.Unlock()
	t.logger = logger
}

// SetOnMessage sets the callback for decoded inbound frames.
// The callback runs on the delivery goroutine, one frame at a time.
func (t *UDPTransport) SetOnMessage(callback func(Inbound)) {
	t.callbackMu.Lock()
	defer t.callbackMu.Unlock()
	t.onMessage = callback
}

// LocalPort returns the bound port, or 0 while disconnected.
func (t *UDPTransport) LocalPort() int {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return 0
	}
	if addr, ok := t.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// Send encodes msg and writes it to ip on the destination port.
//
// Parameters:
//   - msg: Frame to send
//   - ip: Device address, or BroadcastAddr
//
// Returns:
//   - error: ErrNotConnected while the socket is down, ErrSendFailed on write failure
func (t *UDPTransport) Send(msg protocol.Message, ip net.IP) error {
	t.connMu.RLock()
	conn, connected := t.conn, t.connected
	t.connMu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	frame := protocol.Encode(msg)
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		t.errorsTotal.Add(1)
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	if _, err := conn.WriteToUDP(frame, &net.UDPAddr{IP: ip, Port: t.cfg.DestinationPort}); err != nil {
		t.errorsTotal.Add(1)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	t.framesTx.Add(1)
	t.logDebug("frame sent", "type", msg.Header.Type.String(), "target", msg.Header.Target,
		"seq", msg.Header.Sequence, "addr", ip.String())
	return nil
}

// receiveLoop reads datagrams until Close. A fatal read error triggers a rebind.
func (t *UDPTransport) receiveLoop() {
	defer t.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		if t.isClosed() {
			return
		}

		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()
		if conn == nil {
			if !t.reconnect() {
				return
			}
			continue
		}

		if err := conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout)); err != nil {
			t.handleDisconnect(err)
			continue
		}

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if t.isClosed() {
				return
			}
			t.handleDisconnect(err)
			continue
		}

		t.handleDatagram(buf[:n], addr)
	}
}

// handleDatagram decodes every frame in one datagram and queues it for delivery.
func (t *UDPTransport) handleDatagram(data []byte, addr *net.UDPAddr) {
	now := time.Now()
	t.lastActivity.Store(now.UnixNano())

	msgs, err := protocol.DecodeFrames(data)
	if err != nil {
		t.decodeErrors.Add(1)
		t.logDebug("malformed datagram", "error", err, "addr", addr.String(), "bytes", len(data))
	}

	t.callbackMu.RLock()
	hasCallback := t.onMessage != nil
	t.callbackMu.RUnlock()

	for _, m := range msgs {
		t.framesRx.Add(1)
		if !hasCallback {
			continue
		}
		select {
		case t.deliveryQueue <- Inbound{Message: m, Addr: addr.IP, ReceivedAt: now}:
		default:
			t.framesDropped.Add(1)
			t.errorsTotal.Add(1)
			t.logWarn("delivery queue full, dropping frame", "type", m.Header.Type.String())
		}
	}
}

// deliveryWorker runs the callback for queued frames in arrival order.
func (t *UDPTransport) deliveryWorker() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done.Done():
			t.drainDeliveryQueue()
			return
		case in := <-t.deliveryQueue:
			t.callbackMu.RLock()
			callback := t.onMessage
			t.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							t.logError("message callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(in)
				}()
			}
		}
	}
}

// handleDisconnect closes the socket after a fatal error so the loop rebinds.
func (t *UDPTransport) handleDisconnect(err error) {
	t.errorsTotal.Add(1)

	t.connMu.Lock()
	wasConnected := t.connected
	t.connected = false
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()

	if wasConnected {
		t.logError("socket failed, will rebind", err)
	}
}

// reconnect rebinds the socket, retrying every ReconnectDelay.
// Returns true once bound, false if Close was called.
func (t *UDPTransport) reconnect() bool {
	t.reconnecting.Store(true)
	defer t.reconnecting.Store(false)

	for attempt := 1; ; attempt++ {
		select {
		case <-t.done.Done():
			return false
		case <-time.After(t.cfg.ReconnectDelay):
		}

		t.logInfo("attempting rebind", "attempt", attempt, "port", t.cfg.Port)

		conn, err := t.bind(context.Background())
		if err != nil {
			t.errorsTotal.Add(1)
			t.logError("rebind failed", err)
			continue
		}

		t.connMu.Lock()
		if t.isClosed() {
			t.connMu.Unlock()
			conn.Close()
			return false
		}
		t.conn = conn
		t.connected = true
		t.connMu.Unlock()

		t.reconnectsTotal.Add(1)
		t.lastActivity.Store(time.Now().UnixNano())
		t.logInfo("rebind successful", "total_reconnects", t.reconnectsTotal.Load())
		return true
	}
}

func (t *UDPTransport) drainDeliveryQueue() {
	for {
		select {
		case <-t.deliveryQueue:
		default:
			return
		}
	}
}

func (t *UDPTransport) isClosed() bool {
	select {
	case <-t.done.Done():
		return true
	default:
		return false
	}
}

// IsConnected reports whether the socket is currently bound.
func (t *UDPTransport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.connected
}

// Stats returns a snapshot of transport counters.
func (t *UDPTransport) Stats() Stats {
	t.connMu.RLock()
	connected := t.connected
	t.connMu.RUnlock()

	return Stats{
		FramesTx:        t.framesTx.Load(),
		FramesRx:        t.framesRx.Load(),
		FramesDropped:   t.framesDropped.Load(),
		DecodeErrors:    t.decodeErrors.Load(),
		ErrorsTotal:     t.errorsTotal.Load(),
		ReconnectsTotal: t.reconnectsTotal.Load(),
		LastActivity:    time.Unix(0, t.lastActivity.Load()),
		Connected:       connected,
		Reconnecting:    t.reconnecting.Load(),
	}
}

// Close stops the goroutines and releases the socket.
// Safe to call multiple times.
func (t *UDPTransport) Close() error {
	t.done.Close()

	t.connMu.Lock()
	t.connected = false
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()

	t.wg.Wait()

	t.logInfo("socket closed")
	return nil
}

func (t *UDPTransport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

func (t *UDPTransport) logDebug(msg string, kv ...any) {
	if l := t.getLogger(); l != nil {
		l.Debug(msg, append([]any{"socket", t.cfg.Name}, kv...)...)
	}
}

func (t *UDPTransport) logInfo(msg string, kv ...any) {
	if l := t.getLogger(); l != nil {
		l.Info(msg, append([]any{"socket", t.cfg.Name}, kv...)...)
	}
}

func (t *UDPTransport) logWarn(msg string, kv ...any) {
	if l := t.getLogger(); l != nil {
		l.Warn(msg, append([]any{"socket", t.cfg.Name}, kv...)...)
	}
}

func (t *UDPTransport) logError(msg string, err error) {
	if l := t.getLogger(); l != nil {
		l.Error(msg, "socket", t.cfg.Name, "error", err)
	}
}
