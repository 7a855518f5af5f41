package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/correlation"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

// DefaultTickInterval is the period of discovery and state polling.
const DefaultTickInterval = 5 * time.Second

// inboxSize buffers frames between the socket delivery goroutines and the
// dispatch loop.
const inboxSize = 256

// Transport is the socket surface the service needs.
type Transport interface {
	Send(msg protocol.Message, ip net.IP) error
	SetOnMessage(callback func(transport.Inbound))
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Host is what an extension can see of the service.
type Host interface {
	Lights() []*light.Light
	Light(id uint64) (*light.Light, bool)
	Broadcast(payload protocol.Payload) error
}

// Extension is a pluggable component started and stopped with the service.
type Extension interface {
	Name() string
	Start(ctx context.Context, host Host) error
	Stop()
}

// LightAddedListener is told when a device is seen for the first time.
type LightAddedListener interface {
	OnLightAdded(l *light.Light)
}

// MessageListener sees every inbound frame, broadcasts included.
type MessageListener interface {
	OnMessage(in transport.Inbound)
}

// TickListener runs on every scheduler tick.
type TickListener interface {
	OnTick(ctx context.Context, now time.Time)
}

// Options configures a Service.
type Options struct {
	// Transport sends every frame and receives replies. Required.
	Transport Transport

	// LegacyTransport only receives, on the device port. Optional.
	LegacyTransport Transport

	// SourceID identifies this client. 0 picks a random non-zero value.
	SourceID uint32

	// TickInterval is the discovery and polling period. Default: 5s.
	TickInterval time.Duration

	// BroadcastAddr is the discovery destination. Default: 255.255.255.255.
	BroadcastAddr net.IP

	// CorrelationTimeout and CorrelationAttempts tune request retries.
	// Defaults: 100ms and 3.
	CorrelationTimeout  time.Duration
	CorrelationAttempts int

	// Extensions are started in order after the core.
	Extensions []Extension

	Logger Logger

	// Now overrides the clock used by light records.
	Now func() time.Time
}

// Stats is a snapshot of service counters.
type Stats struct {
	Lights        int
	Reachable     int
	FramesHandled uint64
	Correlation   correlation.Stats
}

// Service discovers lights and keeps their records current.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Service struct {
	opts   Options
	engine *correlation.Engine

	lightsMu sync.RWMutex
	lights   map[uint64]*light.Light
	order    []*light.Light

	listenersMu      sync.RWMutex
	changeListeners  []light.ChangeListener
	addedListeners   []LightAddedListener
	messageListeners []MessageListener
	tickListeners    []TickListener

	inbox chan transport.Inbound

	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	framesHandled atomic.Uint64
}

// New creates a service. Call Start to begin discovery.
func New(opts Options) (*Service, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.BroadcastAddr == nil {
		opts.BroadcastAddr = transport.BroadcastAddr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	for opts.SourceID == 0 {
		opts.SourceID = rand.Uint32() //nolint:gosec // identifier, not a secret
	}

	var engineLogger correlation.Logger
	if opts.Logger != nil {
		engineLogger = opts.Logger
	}

	s := &Service{
		opts: opts,
		engine: correlation.New(correlation.Options{
			Sender:        opts.Transport,
			SourceID:      opts.SourceID,
			BroadcastAddr: opts.BroadcastAddr,
			Timeout:       opts.CorrelationTimeout,
			Attempts:      opts.CorrelationAttempts,
			Logger:        engineLogger,
		}),
		lights: make(map[uint64]*light.Light),
		inbox:  make(chan transport.Inbound, inboxSize),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, ext := range opts.Extensions {
		s.register(ext)
	}
	return s, nil
}

// register adds every listener interface o implements.
func (s *Service) register(o any) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	if l, ok := o.(light.ChangeListener); ok {
		s.changeListeners = append(s.changeListeners, l)
	}
	if l, ok := o.(LightAddedListener); ok {
		s.addedListeners = append(s.addedListeners, l)
	}
	if l, ok := o.(MessageListener); ok {
		s.messageListeners = append(s.messageListeners, l)
	}
	if l, ok := o.(TickListener); ok {
		s.tickListeners = append(s.tickListeners, l)
	}
}

// Use appends an extension after New. It fails once the service has
// started.
func (s *Service) Use(ext Extension) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}
	s.opts.Extensions = append(s.opts.Extensions, ext)
	s.register(ext)
	return nil
}

// AddChangeListener registers a listener for property changes on every light.
func (s *Service) AddChangeListener(l light.ChangeListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.changeListeners = append(s.changeListeners, l)
}

// AddLightAddedListener registers a listener for newly discovered lights.
func (s *Service) AddLightAddedListener(l LightAddedListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.addedListeners = append(s.addedListeners, l)
}

// Start wires the sockets, starts extensions and the dispatch loop, and
// sends the first discovery broadcast.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.opts.Transport.SetOnMessage(s.enqueue)
	if s.opts.LegacyTransport != nil {
		s.opts.LegacyTransport.SetOnMessage(s.enqueue)
	}

	for _, ext := range s.opts.Extensions {
		if err := ext.Start(ctx, s); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrExtensionFailed, ext.Name(), err)
		}
		s.logInfo("extension started", "extension", ext.Name())
	}

	s.wg.Add(1)
	go s.loop()

	s.logInfo("service started", "source_id", s.opts.SourceID,
		"tick_interval", s.opts.TickInterval.String())
	return nil
}

// Stop halts the loop, abandons pending requests and stops extensions.
// Safe to call multiple times.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.opts.Transport.SetOnMessage(nil)
		if s.opts.LegacyTransport != nil {
			s.opts.LegacyTransport.SetOnMessage(nil)
		}

		s.cancel()
		s.engine.Close()
		s.wg.Wait()

		for i := len(s.opts.Extensions) - 1; i >= 0; i-- {
			s.opts.Extensions[i].Stop()
		}
		s.logInfo("service stopped")
	})
}

// enqueue is the socket callback. It blocks while the inbox is full so
// the transport's own bounded queue absorbs bursts.
func (s *Service) enqueue(in transport.Inbound) {
	select {
	case s.inbox <- in:
	case <-s.ctx.Done():
	}
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	s.discover()

	for {
		select {
		case <-s.ctx.Done():
			return
		case in := <-s.inbox:
			s.handleInbound(in)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) discover() {
	if err := s.engine.Broadcast(protocol.GetService{}); err != nil {
		s.logWarn("discovery broadcast failed", "error", err)
	}
}

func (s *Service) tick() {
	s.discover()

	for _, l := range s.Lights() {
		l.PollState(s.ctx)
		l.RefreshReachability()
	}

	now := s.opts.Now()
	for _, tl := range s.tickListenerSnapshot() {
		tl.OnTick(s.ctx, now)
	}
}

func (s *Service) handleInbound(in transport.Inbound) {
	s.framesHandled.Add(1)
	s.engine.Dispatch(in.Message)

	if target := in.Message.Header.Target; target != 0 {
		l, created := s.lightFor(target)
		if created {
			s.announce(l)
		}
		l.HandleMessage(in.Message, in.Addr)
	}

	s.listenersMu.RLock()
	listeners := s.messageListeners
	s.listenersMu.RUnlock()
	for _, ml := range listeners {
		ml.OnMessage(in)
	}
}

// lightFor returns the light for id, creating it on first sight.
func (s *Service) lightFor(id uint64) (*light.Light, bool) {
	s.lightsMu.Lock()
	defer s.lightsMu.Unlock()

	if l, ok := s.lights[id]; ok {
		return l, false
	}

	var lightLogger light.Logger
	if s.opts.Logger != nil {
		lightLogger = s.opts.Logger
	}
	l := light.New(id, light.Options{
		Requester: s.engine,
		Listener:  s,
		Logger:    lightLogger,
		Now:       s.opts.Now,
	})
	s.lights[id] = l
	s.order = append(s.order, l)
	return l, true
}

// announce notifies listeners of a new light and sends its first polls.
func (s *Service) announce(l *light.Light) {
	s.logInfo("light discovered", "light", light.FormatID(l.ID()))

	s.listenersMu.RLock()
	listeners := s.addedListeners
	s.listenersMu.RUnlock()
	for _, al := range listeners {
		al.OnLightAdded(l)
	}

	l.PollProperties(s.ctx)
	l.PollState(s.ctx)
}

// OnLightChange fans a light's change out to every registered listener.
func (s *Service) OnLightChange(l *light.Light, p light.Property, oldValue, newValue any) {
	s.listenersMu.RLock()
	listeners := s.changeListeners
	s.listenersMu.RUnlock()

	for _, cl := range listeners {
		cl.OnLightChange(l, p, oldValue, newValue)
	}
}

func (s *Service) tickListenerSnapshot() []TickListener {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return s.tickListeners
}

// Lights returns every known light in discovery order.
func (s *Service) Lights() []*light.Light {
	s.lightsMu.RLock()
	defer s.lightsMu.RUnlock()
	return append([]*light.Light(nil), s.order...)
}

// Light looks up a light by id.
func (s *Service) Light(id uint64) (*light.Light, bool) {
	s.lightsMu.RLock()
	defer s.lightsMu.RUnlock()
	l, ok := s.lights[id]
	return l, ok
}

// Broadcast sends payload to every device.
func (s *Service) Broadcast(payload protocol.Payload) error {
	return s.engine.Broadcast(payload)
}

// SourceID returns the client identifier.
func (s *Service) SourceID() uint32 {
	return s.opts.SourceID
}

// IsConnected reports whether the sending socket is bound.
func (s *Service) IsConnected() bool {
	return s.opts.Transport.IsConnected()
}

// Stats returns a snapshot of service counters.
func (s *Service) Stats() Stats {
	lights := s.Lights()
	reachable := 0
	for _, l := range lights {
		if l.Reachable() {
			reachable++
		}
	}
	return Stats{
		Lights:        len(lights),
		Reachable:     reachable,
		FramesHandled: s.framesHandled.Load(),
		Correlation:   s.engine.Stats(),
	}
}

func (s *Service) logInfo(msg string, kv ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, kv...)
	}
}

func (s *Service) logWarn(msg string, kv ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, kv...)
	}
}
