package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-lesson/internal/session"
)

const defaultClientBuffer = 64

// client is one websocket subscriber. Updates are delivered in order.
type client struct {
	out  chan session.Update
	done chan struct{}
	once sync.Once
}

func newClient(buffer int) *client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &client{
		out:  make(chan session.Update, buffer),
		done: make(chan struct{}),
	}
}

// trySend queues u without blocking. A full queue drops the update.
func (c *client) trySend(u session.Update) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- u:
		return true
	default:
		return false
	}
}

// send queues u, waiting for room until ctx ends or the client closes.
func (c *client) send(ctx context.Context, u session.Update) error {
	select {
	case c.out <- u:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub routes session updates to the websocket clients watching each session.
// It is the session Notifier and the MediaController of the service.
type Hub struct {
	clients map[string]map[*client]struct{}
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
	}
}

// Register subscribes c to a session's updates.
func (h *Hub) Register(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[sessionID] = set
	}
	set[c] = struct{}{}
	slog.Debug("websocket client registered", "session_id", sessionID, "clients", len(set))
}

// Unregister removes c and closes it.
func (h *Hub) Unregister(sessionID string, c *client) {
	h.mu.Lock()
	if set, ok := h.clients[sessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, sessionID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// Clients returns the number of subscribers of a session.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) subscribers(sessionID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients[sessionID]))
	for c := range h.clients[sessionID] {
		out = append(out, c)
	}
	return out
}

// Notify fans an update out to the session's clients. Slow clients miss it.
func (h *Hub) Notify(u session.Update) {
	for _, c := range h.subscribers(u.SessionID) {
		if !c.trySend(u) {
			slog.Warn("dropping update for slow websocket client",
				"session_id", u.SessionID,
				"type", u.Type,
			)
		}
	}
}

// Stop tells every client of the session to release the player of stepID.
// The command is queued ahead of any later plan update.
func (h *Hub) Stop(ctx context.Context, sessionID, stepID string) error {
	u := session.Update{
		Type:      session.UpdateMediaStop,
		SessionID: sessionID,
		Data:      map[string]string{"stepId": stepID},
	}
	for _, c := range h.subscribers(sessionID) {
		if err := c.send(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// CloseSession disconnects every client of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	set := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	for c := range set {
		c.close()
	}
}
