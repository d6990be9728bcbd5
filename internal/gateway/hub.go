package gateway

import (
	"log/slog"
	"sync"

	"github.com/victornm/livequiz/internal/event"
)

// Hub tracks open connections and the game rooms they are subscribed to.
// Delivery never blocks: a connection whose send queue is full is dropped.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[string]*Conn
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*Conn),
		rooms: make(map[string]map[string]*Conn),
	}
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c.id] = c
}

// unregister removes the connection everywhere and returns the codes of the rooms it was in.
func (h *Hub) unregister(c *Conn) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c.id)

	var codes []string
	for code, members := range h.rooms {
		if _, ok := members[c.id]; !ok {
			continue
		}

		delete(members, c.id)
		codes = append(codes, code)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}

	return codes
}

func (h *Hub) Subscribe(code, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}

	if h.rooms[code] == nil {
		h.rooms[code] = make(map[string]*Conn)
	}
	h.rooms[code][connID] = c
}

// Unsubscribe removes a connection from the room of a game. The connection stays open.
func (h *Hub) Unsubscribe(code, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[code]
	if !ok {
		return
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, code)
	}
}

func (h *Hub) Publish(code string, e event.Event) {
	b, err := encode(e)
	if err != nil {
		slog.Error("gateway: marshal event failed", "event", e.Name(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.rooms[code] {
		c.enqueue(b)
	}

	slog.Debug("gateway: event broadcasted", "event", e.Name(), "code", code, "connections", len(h.rooms[code]))
}

func (h *Hub) Send(connID string, e event.Event) {
	b, err := encode(e)
	if err != nil {
		slog.Error("gateway: marshal event failed", "event", e.Name(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, ok := h.conns[connID]; ok {
		c.enqueue(b)
	}
}

// Close drops the room of a game. Connections stay open.
func (h *Hub) Close(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms, code)
}

// Members returns the number of connections in the room of a game.
func (h *Hub) Members(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[code])
}

// CloseAll closes every open connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.conns {
		c.close()
	}
}
