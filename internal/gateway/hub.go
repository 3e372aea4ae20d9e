// Package gateway exposes a session over HTTP: JSON commands plus a
// WebSocket that pushes the full read model after every change.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"botrader/internal/metrics"
	"botrader/internal/session"
)

// DefaultRefreshInterval is how often the view is re-pushed while nothing
// changes, so countdowns on active orders keep moving.
const DefaultRefreshInterval = time.Second

// Hub manages WebSocket clients and pushes session views to them.
type Hub struct {
	sess    *session.Session
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	// Refresh is the idle re-push period. Zero disables it.
	Refresh time.Duration

	mu      sync.RWMutex
	clients map[*Client]bool
}

// envelope is the WebSocket message frame.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NewHub creates a hub for sess. m may be nil.
func NewHub(sess *session.Session, m *metrics.Metrics) *Hub {
	return &Hub{
		sess:    sess,
		metrics: m,
		log:     slog.Default().With("component", "gateway"),
		now:     time.Now,
		Refresh: DefaultRefreshInterval,
		clients: make(map[*Client]bool),
	}
}

// Run pushes a fresh view to every client after each session change. Bursts
// of changes are coalesced into one push. Blocks until ctx is cancelled,
// then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	changes := h.sess.Changes().Subscribe()
	defer h.sess.Changes().Unsubscribe(changes)
	defer h.disconnectAll()

	var tick <-chan time.Time
	if h.Refresh > 0 {
		t := time.NewTicker(h.Refresh)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			for n := len(changes); n > 0; n-- {
				<-changes
			}
			h.pushView()
		case <-tick:
			if h.ClientCount() > 0 {
				h.pushView()
			}
		}
	}
}

func (h *Hub) pushView() {
	msg, err := h.viewMessage()
	if err != nil {
		h.log.Error("encode view", "error", err)
		return
	}
	h.broadcast(msg)
}

func (h *Hub) viewMessage() ([]byte, error) {
	return json.Marshal(envelope{Type: "view", Data: h.sess.View(h.now())})
}

// broadcast queues msg on every client without blocking. A client whose
// queue is full loses its oldest queued message so the newest view still
// reaches it.
func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

// Attach registers a WebSocket connection, sends it the current view and
// starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn) *Client {
	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(count)
	h.log.Info("ws client connected", "clients", count)

	if msg, err := h.viewMessage(); err == nil {
		c.trySend(msg)
	}

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(count)
	h.log.Info("ws client disconnected", "clients", count)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) disconnectAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}
