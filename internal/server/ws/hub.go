// Package ws streams arb status transitions to dashboard clients over
// WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/surebot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API key middleware guards /ws.
	CheckOrigin: func(*http.Request) bool { return true },
}

// filterMsg is what a client sends to narrow its stream. Empty lists match
// everything.
type filterMsg struct {
	EventKeys []string `json:"event_keys"`
	Statuses  []string `json:"statuses"`
}

// envelope is the part of a published status message the hub routes on.
type envelope struct {
	Arb *domain.Arb `json:"arb"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	events   map[string]bool
	statuses map[domain.ArbStatus]bool
}

// Hub fans arb status messages out to connected clients. Messages come from
// the signal bus when one is configured, otherwise from OnArbStatus.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
	closed  bool
}

// NewHub creates a Hub. bus may be nil.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[*client]bool),
	}
}

// Run relays the arb status channel until ctx ends, then disconnects every
// client. Without a bus it only waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()

	if h.bus == nil {
		<-ctx.Done()
		return nil
	}
	msgs, err := h.bus.Subscribe(ctx, domain.ChannelArbStatus)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-msgs:
			if !ok {
				return nil
			}
			h.Broadcast(data)
		}
	}
}

// OnArbStatus lets the hub act as an orchestrator status listener when no
// bus is configured.
func (h *Hub) OnArbStatus(_ context.Context, arb *domain.Arb) error {
	data, err := json.Marshal(map[string]any{"type": "arb_status", "arb": arb})
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Broadcast delivers a status message to every client whose filter matches.
// Slow clients drop messages rather than stall the hub.
func (h *Hub) Broadcast(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Arb == nil {
		h.logger.Debug("dropping undecodable status message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(env.Arb) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping message for slow client")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("total_clients", n))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", slog.Int("total_clients", n))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *client) wants(arb *domain.Arb) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.events) > 0 && !c.events[arb.EventKey] {
		return false
	}
	if len(c.statuses) > 0 && !c.statuses[arb.Status] {
		return false
	}
	return true
}

func (c *client) setFilter(f filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make(map[string]bool, len(f.EventKeys))
	for _, k := range f.EventKeys {
		c.events[k] = true
	}
	c.statuses = make(map[domain.ArbStatus]bool, len(f.Statuses))
	for _, s := range f.Statuses {
		c.statuses[domain.ArbStatus(strings.ToUpper(s))] = true
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var f filterMsg
		if json.Unmarshal(message, &f) == nil {
			c.setFilter(f)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
