// Package stream pushes inbox events to connected agents over
// WebSocket, so open inbox clients see new inbound messages and status
// changes without polling.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/models"
	"github.com/dealerdesk/wainbox/internal/observ"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 32
	maxMessageSize = 512
)

// Event is one inbox update pushed to clients of a tenant.
type Event struct {
	Type           string          `json:"type"` // message.inbound | message.status
	ConversationID uuid.UUID       `json:"conversation_id,omitempty"`
	UnreadCount    int             `json:"unread_count,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	WAMessageID    string          `json:"wa_message_id,omitempty"`
	Status         string          `json:"status,omitempty"`
}

type client struct {
	tenantID uuid.UUID
	send     chan Event
}

// Hub fans events out to the websocket clients of each tenant. Slow
// clients get dropped events, not a stalled hub: the per-client buffer
// is the backpressure boundary.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// NotifyInbound implements webhook.Notifier.
func (h *Hub) NotifyInbound(tenantID uuid.UUID, conversation *models.Conversation, message *models.Message) {
	h.broadcast(tenantID, Event{
		Type:           "message.inbound",
		ConversationID: conversation.ID,
		UnreadCount:    conversation.UnreadCount,
		Message:        message,
	})
}

// NotifyStatus implements webhook.Notifier.
func (h *Hub) NotifyStatus(tenantID uuid.UUID, waMessageID, status string) {
	h.broadcast(tenantID, Event{
		Type:        "message.status",
		WAMessageID: waMessageID,
		Status:      status,
	})
}

func (h *Hub) broadcast(tenantID uuid.UUID, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[tenantID] {
		select {
		case c.send <- event:
		default:
			// Buffer full; the client is behind. Drop the event; the
			// next list fetch reconciles.
		}
	}
}

// Serve upgrades the request and streams events for the agent's tenant
// until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		tenantID: tenantID,
		send:     make(chan Event, clientBuffer),
	}
	h.register(c)
	observ.StreamClientsActive.Inc()

	done := make(chan struct{})

	// Read loop: we ignore client frames, but reading is what detects
	// the close handshake.
	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.unregister(c)
		observ.StreamClientsActive.Dec()
		conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.tenantID] == nil {
		h.clients[c.tenantID] = make(map[*client]struct{})
	}
	h.clients[c.tenantID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[c.tenantID], c)
	if len(h.clients[c.tenantID]) == 0 {
		delete(h.clients, c.tenantID)
	}
}
