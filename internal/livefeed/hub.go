// Package livefeed pushes appointment changes to connected admin screens.
package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/http/middleware"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 32
)

// TodayLister loads the appointments sent when a screen connects.
type TodayLister interface {
	List(ctx context.Context, filter appointments.ListFilter) ([]appointments.Appointment, error)
}

// OutboundMessage is one frame sent to an admin screen.
type OutboundMessage struct {
	Type         string                     `json:"type"` // "session", "snapshot", "appointment", "pong"
	SessionID    string                     `json:"session_id,omitempty"`
	Event        string                     `json:"event,omitempty"`
	Appointment  *appointments.Appointment  `json:"appointment,omitempty"`
	Appointments []appointments.Appointment `json:"appointments,omitempty"`
	Timestamp    string                     `json:"timestamp,omitempty"`
}

type inboundMessage struct {
	Type string `json:"type"` // "ping"
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend reports false when the buffer is full.
func (c *client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks open admin connections.
type Hub struct {
	upgrader websocket.Upgrader
	today    TodayLister
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

type Option func(*Hub)

// WithSnapshot sends today's appointments to each new connection.
func WithSnapshot(lister TodayLister, loc *time.Location) Option {
	return func(h *Hub) {
		h.today = lister
		if loc != nil {
			h.loc = loc
		}
	}
}

// WithAllowedOrigins restricts the websocket Origin header. Without it any
// origin is accepted, since the route is already behind admin auth.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := middleware.OriginMatcher(origins)
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return allowed(origin)
		}
	}
}

func NewHub(logger *logging.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		loc:     time.UTC,
		now:     time.Now,
		logger:  logger,
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connections returns the number of open screens.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams appointment changes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("livefeed: upgrade failed", "error", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	h.enqueue(c, OutboundMessage{Type: "session", SessionID: c.id})
	if h.today != nil {
		date := h.now().In(h.loc).Format(appointments.DateLayout)
		list, err := h.today.List(r.Context(), appointments.ListFilter{DateFrom: date, DateTo: date, Limit: 500})
		if err != nil {
			h.logger.Error("livefeed: load snapshot failed", "error", err)
		} else {
			h.enqueue(c, OutboundMessage{Type: "snapshot", Appointments: list})
		}
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info("livefeed: connection opened", "session_id", c.id)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		h.logger.Debug("livefeed: connection closed", "session_id", c.id)
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			h.enqueue(c, OutboundMessage{Type: "pong"})
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// enqueue drops the client when its buffer is full.
func (h *Hub) enqueue(c *client, msg OutboundMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("livefeed: marshal failed", "error", err)
		return
	}
	if !c.trySend(payload) {
		h.logger.Warn("livefeed: slow client dropped", "session_id", c.id)
		h.remove(c)
	}
}

// Broadcast sends msg to every open screen.
func (h *Hub) Broadcast(msg OutboundMessage) {
	if msg.Timestamp == "" {
		msg.Timestamp = h.now().UTC().Format(time.RFC3339)
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, msg)
	}
}
