package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/extensions/locationgroup"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
)

// Event channels a WebSocket client can subscribe to. ChannelAll matches
// every channel.
const (
	ChannelAll             = "*"
	ChannelLightAdded      = "light.added"
	ChannelLightChanged    = "light.changed"
	ChannelLocationAdded   = "location.added"
	ChannelLocationRemoved = "location.removed"
	ChannelGroupAdded      = "group.added"
	ChannelGroupChanged    = "group.changed"
	ChannelGroupRemoved    = "group.removed"
)

var (
	_ service.LightAddedListener = (*Hub)(nil)
	_ light.ChangeListener       = (*Hub)(nil)
	_ locationgroup.Listener     = (*Hub)(nil)
)

// Hub fans light and tree events out to WebSocket clients. It never blocks
// the caller: a client whose queue is full misses the event.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool
}

// NewHub returns an empty hub. Clients attach once Run has been started by
// the API server.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
	if len(clients) > 0 {
		h.logger.Info("websocket clients disconnected", "count", len(clients))
	}
}

// attach registers c. It reports false once the hub has shut down.
func (h *Hub) attach(c *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "remote", c.remote, "clients", n)
	return true
}

func (h *Hub) detach(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.shutdown()
		h.logger.Debug("websocket client disconnected",
			"remote", c.remote, "clients", n, "dropped", c.dropped.Load())
	}
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast encodes one event and queues it for every client subscribed to
// channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: wsTimestamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

func wsTimestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// LightChangedEvent is the payload of a light.changed event.
type LightChangedEvent struct {
	ID       string `json:"id"`
	Property string `json:"property"`
	Old      any    `json:"old"`
	New      any    `json:"new"`
}

// GroupEvent is the payload of the group.* events.
type GroupEvent struct {
	Location locationgroup.Location `json:"location"`
	Group    locationgroup.Group    `json:"group"`
	LightID  string                 `json:"light_id,omitempty"`
}

func (h *Hub) OnLightAdded(l *light.Light) {
	h.Broadcast(ChannelLightAdded, newLightView(l.Snapshot()))
}

func (h *Hub) OnLightChange(l *light.Light, p light.Property, oldValue, newValue any) {
	h.Broadcast(ChannelLightChanged, LightChangedEvent{
		ID:       light.FormatID(l.ID()),
		Property: p.String(),
		Old:      oldValue,
		New:      newValue,
	})
}

func (h *Hub) LocationAdded(loc locationgroup.Location) {
	h.Broadcast(ChannelLocationAdded, loc)
}

func (h *Hub) LocationRemoved(loc locationgroup.Location) {
	h.Broadcast(ChannelLocationRemoved, loc)
}

func (h *Hub) GroupAdded(loc locationgroup.Location, grp locationgroup.Group) {
	h.Broadcast(ChannelGroupAdded, GroupEvent{Location: loc, Group: grp})
}

func (h *Hub) LocationGroupChanged(loc locationgroup.Location, grp locationgroup.Group, l *light.Light) {
	h.Broadcast(ChannelGroupChanged, GroupEvent{Location: loc, Group: grp, LightID: light.FormatID(l.ID())})
}

func (h *Hub) GroupRemoved(loc locationgroup.Location, grp locationgroup.Group) {
	h.Broadcast(ChannelGroupRemoved, GroupEvent{Location: loc, Group: grp})
}
