package correlation

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
)

// Defaults for retry behaviour.
const (
	// DefaultTimeout is how long each attempt waits for a reply.
	DefaultTimeout = 100 * time.Millisecond

	// DefaultAttempts is the total number of sends per request.
	DefaultAttempts = 3
)

// Sender writes frames to the network.
type Sender interface {
	Send(msg protocol.Message, ip net.IP) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures an Engine.
type Options struct {
	// Sender is the transport used for every send. Required.
	Sender Sender

	// SourceID identifies this client in every header.
	SourceID uint32

	// BroadcastAddr is where Broadcast sends go.
	// Default: 255.255.255.255.
	BroadcastAddr net.IP

	// Timeout is the per-attempt wait. Default: 100ms.
	Timeout time.Duration

	// Attempts is the total number of sends. Default: 3.
	Attempts int

	Logger Logger
}

// Request describes one unicast exchange with a device.
type Request struct {
	Target   uint64
	Addr     net.IP
	Sequence uint8
	Payload  protocol.Payload

	AckRequired      bool
	ResponseRequired bool

	// ResponseType is the payload type that satisfies ResponseRequired.
	ResponseType protocol.MessageType

	// SideEffect runs once, right after the first successful send.
	SideEffect func()
}

// Stats holds engine counters.
type Stats struct {
	Sent      uint64
	Retries   uint64
	Timeouts  uint64
	Completed uint64
	Pending   int
}

type key struct {
	target   uint64
	sequence uint8
}

type pending struct {
	awaitingAck      bool
	awaitingResponse bool
	responseType     protocol.MessageType
	response         protocol.Payload
	done             chan struct{}
}

// Engine tracks outstanding requests.
//
// Thread Safety: all methods are safe for concurrent use. Do blocks, so it
// must not be called with ack or response flags from the goroutine that
// feeds Dispatch.
type Engine struct {
	opts Options

	mu      sync.Mutex
	pending map[key]*pending

	closed chan struct{}
	once   sync.Once

	sent      atomic.Uint64
	retries   atomic.Uint64
	timeouts  atomic.Uint64
	completed atomic.Uint64
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.BroadcastAddr == nil {
		opts.BroadcastAddr = net.IPv4bcast
	}
	return &Engine{
		opts:    opts,
		pending: make(map[key]*pending),
		closed:  make(chan struct{}),
	}
}

// SourceID returns the client identifier stamped on every frame.
func (e *Engine) SourceID() uint32 {
	return e.opts.SourceID
}

// Do sends a request and, when flags ask for it, waits for the reply.
//
// Parameters:
//   - ctx: Bounds the wait; cancellation abandons the request
//   - req: Request to send
//
// Returns:
//   - protocol.Payload: The matching response when ResponseRequired, else nil
//   - error: Transport error from the first send, ErrTimeout, or ErrAbandoned
func (e *Engine) Do(ctx context.Context, req Request) (protocol.Payload, error) {
	msg := protocol.NewMessage(req.Payload, e.opts.SourceID, req.Target, req.Sequence,
		req.AckRequired, req.ResponseRequired)

	if !req.AckRequired && !req.ResponseRequired {
		if err := e.send(msg, req.Addr); err != nil {
			return nil, err
		}
		if req.SideEffect != nil {
			req.SideEffect()
		}
		return nil, nil
	}

	k := key{target: req.Target, sequence: req.Sequence}
	p := &pending{
		awaitingAck:      req.AckRequired,
		awaitingResponse: req.ResponseRequired,
		responseType:     req.ResponseType,
		done:             make(chan struct{}),
	}

	e.mu.Lock()
	if _, exists := e.pending[k]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: target %d seq %d", ErrDuplicateRequest, req.Target, req.Sequence)
	}
	e.pending[k] = p
	e.mu.Unlock()

	if err := e.send(msg, req.Addr); err != nil {
		e.remove(k, p)
		return nil, err
	}
	if req.SideEffect != nil {
		req.SideEffect()
	}

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(e.opts.Timeout)
		select {
		case <-p.done:
			timer.Stop()
			e.completed.Add(1)
			return p.response, nil

		case <-ctx.Done():
			timer.Stop()
			e.remove(k, p)
			return nil, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())

		case <-e.closed:
			timer.Stop()
			return nil, ErrAbandoned

		case <-timer.C:
		}

		if attempt >= e.opts.Attempts {
			e.remove(k, p)
			// A reply may have landed between the timer firing and removal.
			select {
			case <-p.done:
				e.completed.Add(1)
				return p.response, nil
			default:
			}
			e.timeouts.Add(1)
			e.logDebug("request timed out", "type", req.Payload.Type().String(),
				"target", req.Target, "seq", req.Sequence, "attempts", attempt)
			return nil, fmt.Errorf("%w: %s to %d after %d attempts",
				ErrTimeout, req.Payload.Type(), req.Target, attempt)
		}

		e.retries.Add(1)
		if err := e.send(msg, req.Addr); err != nil {
			e.remove(k, p)
			return nil, err
		}
	}
}

// Broadcast sends payload to every device. It only confirms the hand-off
// to the transport; replies arrive through the normal inbound path.
func (e *Engine) Broadcast(payload protocol.Payload) error {
	return e.send(protocol.NewBroadcast(payload, e.opts.SourceID), e.opts.BroadcastAddr)
}

// Dispatch offers an inbound frame to the pending requests.
//
// Returns true if the frame completed or advanced a pending request.
func (e *Engine) Dispatch(msg protocol.Message) bool {
	h := msg.Header
	if h.Source != e.opts.SourceID {
		return false
	}

	k := key{target: h.Target, sequence: h.Sequence}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[k]
	if !ok {
		return false
	}

	matched := false
	if p.awaitingAck && h.Type == protocol.TypeAcknowledgement {
		p.awaitingAck = false
		matched = true
	}
	if p.awaitingResponse && h.Type == p.responseType {
		p.awaitingResponse = false
		p.response = msg.Payload
		matched = true
	}

	if !p.awaitingAck && !p.awaitingResponse {
		delete(e.pending, k)
		close(p.done)
	}
	return matched
}

// Pending returns the number of requests awaiting a reply.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Sent:      e.sent.Load(),
		Retries:   e.retries.Load(),
		Timeouts:  e.timeouts.Load(),
		Completed: e.completed.Load(),
		Pending:   e.Pending(),
	}
}

// Close abandons every pending request. Safe to call multiple times.
func (e *Engine) Close() {
	e.once.Do(func() {
		close(e.closed)
		e.mu.Lock()
		clear(e.pending)
		e.mu.Unlock()
	})
}

func (e *Engine) send(msg protocol.Message, addr net.IP) error {
	if err := e.opts.Sender.Send(msg, addr); err != nil {
		return err
	}
	e.sent.Add(1)
	return nil
}

func (e *Engine) remove(k key, p *pending) {
	e.mu.Lock()
	if cur, ok := e.pending[k]; ok && cur == p {
		delete(e.pending, k)
	}
	e.mu.Unlock()
}

func (e *Engine) logDebug(msg string, kv ...any) {
	if e.opts.Logger != nil {
		e.opts.Logger.Debug(msg, kv...)
	}
}
