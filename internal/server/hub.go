package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const CLIENT_SEND_BUFFER = 16

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub streams telemetry snapshots to websocket clients.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*wsClient]bool
	telemetry port.TelemetryReader
	sub       *eventstream.Subscription
	stream    *eventstream.EventStream
	logger    *zap.Logger
}

func NewHub(telemetry port.TelemetryReader, logger *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*wsClient]bool),
		telemetry: telemetry,
		logger:    logger.With(zap.String("component", "ws")),
	}
}

// Subscribe broadcasts every TelemetryUpdatedEvent published on the stream.
func (h *Hub) Subscribe(stream *eventstream.EventStream) {
	h.stream = stream
	h.sub = stream.Subscribe(func(evt interface{}) {
		if msg, ok := evt.(domain.TelemetryUpdatedEvent); ok {
			h.broadcastTelemetry(msg.Telemetry)
		}
	})
}

func (h *Hub) Close() {
	if h.sub != nil {
		h.stream.Unsubscribe(h.sub)
		h.sub = nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastTelemetry(t domain.Telemetry) {
	payload, err := json.Marshal(t)
	if err != nil {
		h.logger.Error("ws: marshal telemetry", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("ws: client buffer full, dropping message")
		}
	}
}

// ServeWS upgrades the connection and sends the current snapshot followed by every update.
func (h *Hub) ServeWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", zap.Error(err))
		return nil
	}
	client := &wsClient{
		conn: conn,
		send: make(chan []byte, CLIENT_SEND_BUFFER),
	}
	if payload, err := json.Marshal(h.telemetry.Telemetry()); err == nil {
		client.send <- payload
	}
	h.register(client)
	go client.writePump()
	h.readPump(client)
	return nil
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws: read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
