package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/models"
)

func dialHub(t *testing.T, hub *Hub, tenantID uuid.UUID) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, tenantID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, tenantID uuid.UUID, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		got := len(hub.clients[tenantID])
		hub.mu.RUnlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("tenant never reached %d clients", n)
}

func TestNotifyInboundReachesTenantClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	tenantID := uuid.New()

	conn := dialHub(t, hub, tenantID)
	waitForClients(t, hub, tenantID, 1)

	body := "hola"
	conversation := &models.Conversation{ID: uuid.New(), TenantID: tenantID, UnreadCount: 3}
	message := &models.Message{ID: uuid.New(), ConversationID: conversation.ID, Body: &body}
	hub.NotifyInbound(tenantID, conversation, message)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, "message.inbound", event.Type)
	assert.Equal(t, conversation.ID, event.ConversationID)
	assert.Equal(t, 3, event.UnreadCount)
	require.NotNil(t, event.Message)
	assert.Equal(t, message.ID, event.Message.ID)
}

func TestNotifyStatusIsTenantScoped(t *testing.T) {
	hub := NewHub(zap.NewNop())
	tenantA := uuid.New()
	tenantB := uuid.New()

	connA := dialHub(t, hub, tenantA)
	connB := dialHub(t, hub, tenantB)
	waitForClients(t, hub, tenantA, 1)
	waitForClients(t, hub, tenantB, 1)

	hub.NotifyStatus(tenantA, "wamid.A", models.StatusRead)

	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, connA.ReadJSON(&event))
	assert.Equal(t, "message.status", event.Type)
	assert.Equal(t, "wamid.A", event.WAMessageID)
	assert.Equal(t, models.StatusRead, event.Status)

	// Tenant B must see nothing.
	connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := connB.ReadMessage()
	assert.Error(t, err)
}

func TestBroadcastWithoutClientsIsNoOp(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.NotifyStatus(uuid.New(), "wamid.X", models.StatusSent)
}

func TestUnregisterOnDisconnect(t *testing.T) {
	hub := NewHub(zap.NewNop())
	tenantID := uuid.New()

	conn := dialHub(t, hub, tenantID)
	waitForClients(t, hub, tenantID, 1)

	conn.Close()
	waitForClients(t, hub, tenantID, 0)
}
