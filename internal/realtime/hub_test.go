package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/pkg/logger"
)

func dialHub(t *testing.T, h *Hub, userID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if userID != "" {
		url += "?user_id=" + userID
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastReachesSubscriber(t *testing.T) {
	h := NewHub(logger.NewNop())
	conn := dialHub(t, h, "u1")

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Broadcast("u1", contracts.RunStatusUpdate{
		RunID:    "r1",
		Status:   contracts.StatusRunning,
		Progress: 40,
		Stage:    "optimization",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got contracts.RunStatusUpdate
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, contracts.StatusRunning, got.Status)
	assert.Equal(t, 40, got.Progress)
}

func TestHubBroadcastScopedToUser(t *testing.T) {
	h := NewHub(logger.NewNop())
	conn := dialHub(t, h, "u2")

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Broadcast("u1", contracts.RunStatusUpdate{RunID: "other"})
	h.Broadcast("u2", contracts.RunStatusUpdate{RunID: "mine"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got contracts.RunStatusUpdate
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "mine", got.RunID, "update for another user must not be delivered")
}

func TestHubShutdownDisconnectsClients(t *testing.T) {
	h := NewHub(logger.NewNop())
	dialHub(t, h, "u1")

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Shutdown(context.Background())
	assert.Zero(t, h.ClientCount())
}
