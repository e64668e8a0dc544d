package sync

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"animehub/internal/metrics"
)

const writeWait = 2 * time.Second

type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// client serializes writes to one socket; gorilla allows a single writer.
type client struct {
	userID string
	wmu    sync.Mutex
}

// Hub tracks open sockets. mu guards the registry only and is never held
// across a socket write.
type Hub struct {
	mu      sync.Mutex
	clients map[conn]*client
	log     zerolog.Logger
}

type Stats struct {
	WSClients int `json:"ws_clients"`
	Users     int `json:"users"`
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[conn]*client),
		log:     log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) add(c conn, userID string) {
	h.mu.Lock()
	h.clients[c] = &client{userID: userID}
	h.mu.Unlock()
	metrics.WSConnections.Inc()
}

func (h *Hub) remove(c conn) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		metrics.WSConnections.Dec()
	}
	_ = c.Close()
}

// Publish sends ev to the sockets of ev.UserID, or to all sockets when
// UserID is empty. Sockets that fail a write are dropped.
func (h *Hub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("encode event")
		return
	}

	type target struct {
		c  conn
		cl *client
	}
	h.mu.Lock()
	targets := make([]target, 0, len(h.clients))
	for c, cl := range h.clients {
		if ev.UserID != "" && cl.userID != ev.UserID {
			continue
		}
		targets = append(targets, target{c, cl})
	}
	h.mu.Unlock()

	for _, t := range targets {
		if err := t.cl.write(t.c, b); err != nil {
			h.remove(t.c)
		}
	}
}

// send writes one message to a registered socket.
func (h *Hub) send(c conn, b []byte) error {
	h.mu.Lock()
	cl, ok := h.clients[c]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return cl.write(c, b)
}

func (cl *client) write(c conn, b []byte) error {
	cl.wmu.Lock()
	defer cl.wmu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, b)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make(map[string]struct{}, len(h.clients))
	for _, cl := range h.clients {
		users[cl.userID] = struct{}{}
	}
	return Stats{WSClients: len(h.clients), Users: len(users)}
}
