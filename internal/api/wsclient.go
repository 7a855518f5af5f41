package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsQueueSize is how many encoded events a client may lag behind by.
const wsQueueSize = 256

// WSMessage is the envelope of every frame the server sends.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels of a subscribe or unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame; the payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

var knownChannels = map[string]bool{
	ChannelAll:             true,
	ChannelLightAdded:      true,
	ChannelLightChanged:    true,
	ChannelLocationAdded:   true,
	ChannelLocationRemoved: true,
	ChannelGroupAdded:      true,
	ChannelGroupChanged:    true,
	ChannelGroupRemoved:    true,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024, //nolint:mnd // frames are small JSON
	WriteBufferSize: 4096, //nolint:mnd // light.added carries a full view
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WSClient is one upgraded connection.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string

	queue   chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64

	mu       sync.RWMutex
	channels map[string]struct{}
}

// handleWebSocket upgrades the request and attaches the connection to the
// hub. Clients receive nothing until they subscribe.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	hub := s.Hub()
	if hub == nil {
		writeUnavailable(w, "websocket hub not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &WSClient{
		hub:      hub,
		conn:     conn,
		remote:   r.RemoteAddr,
		queue:    make(chan []byte, wsQueueSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
	if !hub.attach(c) {
		conn.Close() //nolint:errcheck // hub is shutting down
		return
	}

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// shutdown tells the write loop to send a close frame and hang up.
func (c *WSClient) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// enqueue queues data without blocking. A full queue drops the frame.
func (c *WSClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.queue <- data:
	default:
		c.dropped.Add(1)
	}
}

func (c *WSClient) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[ChannelAll]; ok {
		return true
	}
	_, ok := c.channels[channel]
	return ok
}

// wsTimings falls back to 30s pings and a 10s pong wait when unset.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = 30*time.Second, 10*time.Second //nolint:mnd // defaults
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, pong
}

func (c *WSClient) readLoop(cfg config.WebSocketConfig) {
	defer c.hub.detach(c)

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	ping, pong := wsTimings(cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "remote", c.remote, "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handle(data)
	}
}

func (c *WSClient) writeLoop(cfg config.WebSocketConfig) {
	ping, pong := wsTimings(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // read loop sees the error
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(pong)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data := <-c.queue:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			write(websocket.CloseMessage, msg) //nolint:errcheck // closing anyway
			return
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &sub); err != nil || len(sub.Channels) == 0 {
			c.reply(req.ID, WSTypeError, map[string]string{"message": "payload must list channels"})
			return
		}
		for _, ch := range sub.Channels {
			if !knownChannels[ch] {
				c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown channel: " + ch})
				return
			}
		}
		current := c.updateChannels(sub.Channels, req.Type == WSTypeSubscribe)
		c.reply(req.ID, WSTypeResponse, map[string][]string{"channels": current})
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

// updateChannels adds or removes channels and returns the resulting set,
// sorted.
func (c *WSClient) updateChannels(channels []string, add bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	current := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		current = append(current, ch)
	}
	slices.Sort(current)
	return current
}

func (c *WSClient) reply(id, kind string, payload any) {
	data, err := json.Marshal(WSMessage{Type: kind, ID: id, Timestamp: wsTimestamp(), Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}
