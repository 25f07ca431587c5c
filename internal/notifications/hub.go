package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chatwarden/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per moderator
	maxConnsPerModerator = 8
	// Max total connections
	maxTotalConns = 5000
)

var (
	ErrServerConnLimit    = errors.New("server connection limit reached")
	ErrModeratorConnLimit = errors.New("moderator connection limit reached")
)

// Hub fans feed frames out to every open connection of a moderator.
type Hub struct {
	mu         sync.RWMutex
	conns      map[int64]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[int64]map[*Client]struct{})}
}

// Register a connection for a moderator. Returns the Client or an error if limits are exceeded.
func (h *Hub) Register(moderatorID int64, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.totalConns >= maxTotalConns {
		return nil, ErrServerConnLimit
	}

	m, ok := h.conns[moderatorID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[moderatorID] = m
	}
	if len(m) >= maxConnsPerModerator {
		return nil, ErrModeratorConnLimit
	}

	client := newClient(h, conn, moderatorID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnections.Inc()
	return client, nil
}

// UnregisterClient removes the client and closes its send channel. Safe to call twice.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.ModeratorID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	close(client.Send)
	h.totalConns--
	observability.WebSocketConnections.Dec()
	if len(m) == 0 {
		delete(h.conns, client.ModeratorID)
	}
}

// Broadcast sends message to all connections for moderatorID
func (h *Hub) Broadcast(moderatorID int64, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[moderatorID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// Send implements Transport for a single instance running without Redis.
// An offline moderator is not an error; the notice waits for catch-up.
func (h *Hub) Send(_ context.Context, moderatorID int64, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	h.Broadcast(moderatorID, string(body))
	return nil
}

// IsOnline reports whether a moderator has at least one open feed connection.
func (h *Hub) IsOnline(moderatorID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[moderatorID]) > 0
}

// StartWiring connects the Notifier to this hub: it subscribes to the Redis
// pattern and forwards each message to the addressed moderator's connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == broadcastChannel {
			h.BroadcastAll(payload)
			return
		}
		moderatorID, ok := parseModeratorChannel(channel)
		if !ok {
			observability.L().Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		h.Broadcast(moderatorID, payload)
	})
}

// Shutdown closes every client's send channel; each WritePump then sends the
// close frame and closes its connection.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for _, clients := range h.conns {
		for client := range clients {
			close(client.Send)
			observability.WebSocketConnections.Dec()
		}
	}
	h.conns = make(map[int64]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
