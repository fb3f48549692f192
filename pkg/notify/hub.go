// Package notify implements per-client push-event delivery.
//
// The hub maps a client id to a buffered event channel. Producers call Send
// or Broadcast; a transport (the websocket handler, a test) consumes the
// channel. Delivery is at-most-once: a client whose channel is full or gone
// is treated as stale and removed. Reconnecting clients must re-query job
// status rather than expect replay.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultChannelBuffer is the per-client event channel capacity.
//
// The buffer absorbs bursts from a chatty task; a consumer that falls this
// far behind is considered dead and is disconnected on the next send.
const DefaultChannelBuffer = 64

// Hub tracks connected clients and fans events out to them.
//
// Hub is safe for concurrent use. Per-client ordering is the caller's
// responsibility: events for one job must be emitted by a single goroutine
// (the owning task), which the scheduler enforces.
type Hub struct {
	mu      sync.Mutex
	clients map[string]chan Event
	buffer  int
	logger  *zap.Logger
}

// NewHub creates a hub. logger may be nil.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]chan Event),
		buffer:  DefaultChannelBuffer,
		logger:  logger,
	}
}

// Connect registers clientID and returns its event channel. A second
// Connect for the same id replaces the previous channel; the old channel is
// closed so a stale consumer unblocks.
func (h *Hub) Connect(clientID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[clientID]; ok {
		close(old)
	}
	ch := make(chan Event, h.buffer)
	h.clients[clientID] = ch
	h.logger.Info("client connected", zap.String("client_id", clientID))
	return ch
}

// Disconnect removes clientID and closes its channel. Unknown ids are a
// no-op.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(clientID)
}

func (h *Hub) disconnectLocked(clientID string) {
	ch, ok := h.clients[clientID]
	if !ok {
		return
	}
	delete(h.clients, clientID)
	close(ch)
	h.logger.Info("client disconnected", zap.String("client_id", clientID))
}

// Send delivers ev to clientID. Sending to an unknown client is a no-op.
// If the client's channel is full the client is assumed stale and is
// disconnected; the event is dropped.
func (h *Hub) Send(clientID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		h.logger.Warn("client channel full, dropping client",
			zap.String("client_id", clientID),
			zap.String("event_type", string(ev.Type)))
		h.disconnectLocked(clientID)
	}
}

// Broadcast delivers ev to every connected client, removing any client whose
// channel is full.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []string
	for clientID, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			stale = append(stale, clientID)
		}
	}
	for _, clientID := range stale {
		h.logger.Warn("client channel full during broadcast, dropping client",
			zap.String("client_id", clientID))
		h.disconnectLocked(clientID)
	}
}

// Connected reports whether clientID currently has a channel.
func (h *Hub) Connected(clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[clientID]
	return ok
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
