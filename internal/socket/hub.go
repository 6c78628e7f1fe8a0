// server/internal/socket/hub.go
package socket

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// Frames queued per client before it is considered too slow and dropped.
	sendBuffer = 16
)

var ErrClientTooSlow = errors.New("websocket client send buffer full")

// Conn is the subset of *websocket.Conn the Hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client owns one connection. Only its writePump goroutine writes to conn,
// so gorilla's single-writer rule holds without a lock.
type client struct {
	conn Conn
	send chan []byte
}

// Hub manages every connected dashboard client. Broadcast and Send only
// enqueue; a slow client never delays the caller.
type Hub struct {
	// clients is keyed by a per-connection ID.
	clients map[string]*client
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// Register adds a client to the Hub and starts its writer. Registering an ID
// again replaces the previous client.
func (h *Hub) Register(clientID string, conn Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if old, ok := h.clients[clientID]; ok {
		close(old.send)
	}
	h.clients[clientID] = c
	h.mu.Unlock()

	go h.writePump(clientID, c)
	h.logger.Debug("websocket client registered", slog.String("client", clientID))
}

// Unregister removes a client from the Hub. Frames already queued are still
// written before its writer exits.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		delete(h.clients, clientID)
		close(c.send)
		h.logger.Debug("websocket client unregistered", slog.String("client", clientID))
	}
}

// drop removes c only if it is still the client registered under id, then
// closes its connection so the read loop in the handler ends too.
func (h *Hub) drop(id string, c *client, reason error) {
	h.mu.Lock()
	if cur, ok := h.clients[id]; ok && cur == c {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()

	h.logger.Warn("dropping websocket client", slog.String("client", id), slog.Any("error", reason))
	_ = c.conn.Close()
}

func (h *Hub) writePump(id string, c *client) {
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.drop(id, c, err)
			// Drain so nothing blocks on a client that is gone.
			for range c.send {
			}
			return
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues a message for one client. An offline client is not an error; a
// client whose buffer is full is dropped and ErrClientTooSlow returned.
func (h *Hub) Send(clientID string, message []byte) error {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	queued := ok && enqueue(c, message)
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug("websocket client not found", slog.String("client", clientID))
		return nil
	}
	if !queued {
		h.drop(clientID, c, ErrClientTooSlow)
		return ErrClientTooSlow
	}
	return nil
}

// Broadcast queues message for every client. Clients with a full buffer are
// closed and dropped.
func (h *Hub) Broadcast(message []byte) {
	slow := map[string]*client{}

	h.mu.RLock()
	for id, c := range h.clients {
		if !enqueue(c, message) {
			slow[id] = c
		}
	}
	h.mu.RUnlock()

	for id, c := range slow {
		h.drop(id, c, ErrClientTooSlow)
	}
}

// enqueue must be called with the hub lock held so send is not closed
// underneath it.
func enqueue(c *client, message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}
