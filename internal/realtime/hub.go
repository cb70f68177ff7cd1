// Package realtime fans ticket events out to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
)

const broadcastBuffer = 64

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub tracks connected clients and broadcasts encoded events to them. All
// client bookkeeping happens on the Run goroutine.
type Hub struct {
	register   chan Conn
	unregister chan Conn
	broadcast  chan []byte
	done       chan struct{}
	clients    map[Conn]struct{}
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewHub builds a hub. Run must be started before clients connect.
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:   make(chan Conn),
		unregister: make(chan Conn),
		broadcast:  make(chan []byte, broadcastBuffer),
		done:       make(chan struct{}),
		clients:    make(map[Conn]struct{}),
		logger:     logger,
		metrics:    metrics,
	}
}

// Register subscribes the hub to the service events.
func (h *Hub) Register(d events.Dispatcher) {
	events.SubscribeAll(d, h.Handle, events.ServiceEventTypes...)
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every remaining client. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			_ = c.Close()
			delete(h.clients, c)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				_ = c.Close()
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.logger.Debug("dropping websocket client", zap.Error(err))
					delete(h.clients, c)
					_ = c.Close()
				}
			}
			h.metrics.EventBroadcast()
		}
	}
}

// Handle encodes event and queues it for broadcast. Events are dropped when
// the queue is full so publishers never block on slow clients.
func (h *Hub) Handle(_ context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("realtime queue full; event dropped",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
	}
	return nil
}

// Join adds c to the hub. Once Run has returned, c is closed instead.
func (h *Hub) Join(c Conn) {
	select {
	case h.register <- c:
	case <-h.done:
		_ = c.Close()
	}
}

// Leave removes and closes c. It does not block after Run has returned.
func (h *Hub) Leave(c Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
		_ = c.Close()
	}
}

// Serve is the websocket handler: it keeps the client joined until the
// client disconnects. Inbound messages are ignored.
func (h *Hub) Serve(c *websocket.Conn) {
	h.Join(c)
	defer h.Leave(c)
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
