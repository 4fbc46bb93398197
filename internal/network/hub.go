// Package network carries tables over WebSocket and serves the HTTP lobby.
package network

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/MRamiBalles/coup-server/internal/events"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
	"github.com/MRamiBalles/coup-server/internal/platform/metrics"
)

// Hub routes table events to the connections seated at that table.
// Public events reach every seat; private events reach their recipient only.
type Hub struct {
	tables     map[string]map[*Client]bool
	broadcast  chan events.GameEvent
	register   chan *Client
	unregister chan *Client
	direct     chan directMessage
	done       chan struct{}

	mu      sync.RWMutex
	logger  *logger.Logger
	metrics *metrics.Collector
}

// NewHub initializes a hub with a buffered event queue.
func NewHub(log *logger.Logger, m *metrics.Collector, buffer int) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		tables:     make(map[string]map[*Client]bool),
		broadcast:  make(chan events.GameEvent, buffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
		logger:     log,
		metrics:    m,
	}
}

// Run handles registrations and fans events out until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for _, clients := range h.tables {
			for c := range clients {
				close(c.send)
				h.connected(-1)
			}
		}
		h.tables = make(map[string]map[*Client]bool)
		h.mu.Unlock()
		close(h.done)
	}()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down")
			return
		case c := <-h.register:
			h.mu.Lock()
			if h.tables[c.tableID] == nil {
				h.tables[c.tableID] = make(map[*Client]bool)
			}
			h.tables[c.tableID][c] = true
			h.mu.Unlock()
			h.connected(1)
			h.logger.Info("seat connected", zap.String("table", c.tableID), zap.String("seat", c.seat))
		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
		case e := <-h.broadcast:
			h.deliver(e)
		case d := <-h.direct:
			h.mu.Lock()
			if h.tables[d.client.tableID][d.client] {
				select {
				case d.client.send <- d.msg:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

type directMessage struct {
	client *Client
	msg    []byte
}

// Publish queues an event for delivery. It implements session.Publisher.
func (h *Hub) Publish(e events.GameEvent) {
	select {
	case h.broadcast <- e:
	case <-h.done:
	}
}

// Connected returns how many connections are seated at a table.
func (h *Hub) Connected(tableID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tables[tableID])
}

func (h *Hub) deliver(e events.GameEvent) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to serialize event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.tables[e.SessionID] {
		if e.Private() && c.seat != e.Recipient {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("slow seat dropped", zap.String("table", c.tableID), zap.String("seat", c.seat))
			h.drop(c)
		}
	}
}

// drop removes a client. Callers hold mu.
func (h *Hub) drop(c *Client) {
	clients, ok := h.tables[c.tableID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.tables, c.tableID)
	}
	close(c.send)
	h.connected(-1)
	h.logger.Info("seat disconnected", zap.String("table", c.tableID), zap.String("seat", c.seat))
}

func (h *Hub) connected(delta int) {
	if h.metrics != nil {
		h.metrics.RecordWSConnection(delta)
	}
}
