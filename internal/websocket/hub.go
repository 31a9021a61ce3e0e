// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	wstypes "isp-billing-service/internal/domain/websocket"
	"isp-billing-service/internal/events"

	"go.uber.org/zap"
)

// Hub fans engine events out to connected admin dashboards.
type Hub struct {
	// Registered clients by identity ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	register   chan *Client
	unregister chan *Client

	// Broadcasting
	broadcast chan *BroadcastMessage

	done   chan struct{}
	logger *zap.Logger
}

type BroadcastMessage struct {
	IdentityIDs []int64
	Channel     wstypes.ChannelType
	Message     *wstypes.WSMessage
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

// Forward is an events.Handler. It never blocks the publisher: when the broadcast queue is
// full the event is dropped.
func (h *Hub) Forward(ctx context.Context, e events.Event) {
	channel, ok := wstypes.ChannelForKind(string(e.Kind))
	if !ok {
		h.logger.Debug("event not forwarded", zap.String("kind", string(e.Kind)), zap.Error(ErrUnknownKind))
		return
	}

	msg := wstypes.NewMessage(wstypes.EventTypeBilling, e.Payload)
	msg.ID = e.ID
	msg.Timestamp = e.OccurredAt
	msg.Metadata = map[string]interface{}{
		"kind": e.Kind,
	}

	select {
	case h.broadcast <- &BroadcastMessage{Channel: channel, Message: msg}:
	case <-h.done:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping event",
			zap.String("event_id", e.ID),
			zap.String("kind", string(e.Kind)),
		)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true

	h.logger.Info("websocket client connected",
		zap.Int64("identity_id", client.identityID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"identity_id": client.identityID,
		"session_id":  client.sessionID,
		"roles":       client.roles,
		"channels":    client.Channels(),
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.identityID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.identityID)
			}

			h.logger.Info("websocket client disconnected",
				zap.Int64("identity_id", client.identityID),
				zap.String("session_id", client.sessionID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.IdentityIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					client.SendMessage(msg.Message)
				}
			}
		}
		return
	}

	for _, identityID := range msg.IdentityIDs {
		for client := range h.clients[identityID] {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// Join registers client with the running hub.
func (h *Hub) Join(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// leave hands client back to the hub loop. It returns false once the hub has stopped.
func (h *Hub) leave(client *Client) bool {
	select {
	case h.unregister <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for identityID, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
		delete(h.clients, identityID)
	}
}
