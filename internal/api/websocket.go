package api

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/logging"
)

// Frame types exchanged with WebSocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	// clientQueueSize bounds the frames buffered for one slow client.
	clientQueueSize = 256
	wsBufferSize    = 1024
)

// Hardware event channels. Reading and alert channels are defined by the
// telemetry pipeline that publishes them.
const (
	ChannelRebind   = "hardware.rebind"
	ChannelFallback = "hardware.fallback"
	ChannelProbe    = "hardware.probe"
)

// WSMessage is the envelope of every frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is an inbound client frame; Payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload names channels to add or remove. A pattern ending in
// ".*" covers every channel under that prefix and "*" covers all channels.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// channelMatches reports whether a subscription pattern covers channel.
func channelMatches(pattern, channel string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(channel, prefix+".")
	}
	return pattern == channel
}

// Hub fans hardware, reading and alert events out to dashboard clients.
//
// The latest event on every channel is retained and replayed to a client
// when it subscribes, so a dashboard opened after the probe still sees the
// current bindings.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The hub lock is never held while a client lock is taken.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	clients  map[*WSClient]struct{}
	retained map[string][]byte

	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		clients:  make(map[*WSClient]struct{}),
		retained: make(map[string][]byte),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. The send queue is closed by whichever caller
// actually removed the client, so shutdown and disconnect cannot both close it.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast retains payload as the latest event on channel and queues it for
// every client whose subscriptions cover the channel.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.Lock()
	h.retained[channel] = frame
	clients := slices.Collect(maps.Keys(h.clients))
	h.mu.Unlock()

	delivered := 0
	for _, c := range clients {
		if c.wants(channel) {
			h.deliver(c, frame)
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", delivered)
	}
}

// replay queues the retained events covered by patterns, in channel order.
func (h *Hub) replay(c *WSClient, patterns []string) {
	h.mu.RLock()
	var frames [][]byte
	for _, ch := range slices.Sorted(maps.Keys(h.retained)) {
		if slices.ContainsFunc(patterns, func(p string) bool { return channelMatches(p, ch) }) {
			frames = append(frames, h.retained[ch])
		}
	}
	h.mu.RUnlock()

	for _, f := range frames {
		h.deliver(c, f)
	}
}

func (h *Hub) deliver(c *WSClient, frame []byte) {
	if !c.enqueue(frame) {
		h.dropped.Add(1)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats reports connected clients, retained channels and frames dropped
// because a client queue was full or already closed.
func (h *Hub) Stats() WSMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return WSMetrics{
		ConnectedClients: len(h.clients),
		RetainedChannels: len(h.retained),
		DroppedFrames:    h.dropped.Load(),
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(msg)
}

// WSClient is one connected dashboard.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, clientQueueSize),
		subs: make(map[string]struct{}),
	}
}

// addPatterns records the non-blank patterns and returns them trimmed.
func (c *WSClient) addPatterns(patterns []string) []string {
	added := make([]string, 0, len(patterns))
	c.mu.Lock()
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			c.subs[p] = struct{}{}
			added = append(added, p)
		}
	}
	c.mu.Unlock()
	return added
}

func (c *WSClient) removePatterns(patterns []string) {
	c.mu.Lock()
	for _, p := range patterns {
		delete(c.subs, strings.TrimSpace(p))
	}
	c.mu.Unlock()
}

func (c *WSClient) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for p := range c.subs {
		if channelMatches(p, channel) {
			return true
		}
	}
	return false
}

// enqueue offers a frame without blocking. It reports false when the queue
// is full or was closed by a concurrent disconnect.
func (c *WSClient) enqueue(frame []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.hub.deliver(c, frame)
}

func (c *WSClient) fail(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

// handleMessage dispatches one inbound frame.
func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.fail("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil || len(sub.Channels) == 0 {
			c.fail(req.ID, req.Type+" requires a channels list")
			return
		}
		if req.Type == WSTypeUnsubscribe {
			c.removePatterns(sub.Channels)
			c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
			return
		}
		added := c.addPatterns(sub.Channels)
		c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": added})
		c.hub.replay(c, added)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.fail(req.ID, "unknown message type: "+req.Type)
	}
}

// wsTimings holds the keepalive settings derived from config.
type wsTimings struct {
	ping      time.Duration
	pongWait  time.Duration
	readLimit int64
}

func timingsFrom(cfg config.WebSocketConfig) wsTimings {
	return wsTimings{
		ping:      time.Duration(cfg.PingInterval) * time.Second,
		pongWait:  time.Duration(cfg.PongTimeout) * time.Second,
		readLimit: int64(cfg.MaxMessageSize),
	}
}

func (t wsTimings) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pongWait)
}

// handleWebSocket upgrades the request and starts the client pumps.
//
// Channels may be subscribed up front with a comma-separated query parameter,
// which also replays their retained events:
//
//	/api/v1/ws?channels=hardware.*,alert.raised
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	initial := client.addPatterns(strings.Split(r.URL.Query().Get("channels"), ","))
	s.hub.Register(client)
	s.hub.replay(client, initial)

	t := timingsFrom(s.wsCfg)
	go client.writePump(t)
	go client.readPump(t)
}

func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.readLimit)
	//nolint:errcheck // deadline errors surface on the next read
	c.conn.SetReadDeadline(t.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Application frames count as liveness for clients that ignore pings.
		//nolint:errcheck // deadline errors surface on the next read
		c.conn.SetReadDeadline(t.readDeadline())
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline shows up as a write error
		c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
