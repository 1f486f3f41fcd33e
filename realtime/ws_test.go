package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdispatch-be/models"
)

func newChatServer(t *testing.T) (*Hub, *fakeMessageStore, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(quietLogger())
	store := &fakeMessageStore{}
	handler := NewChatHandler(hub, store, quietLogger())

	r := gin.New()
	r.GET("/ws/chat", handler.ServeWS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, store, srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat" + query
}

func TestServeWS_MissingRoomKeyClosesConnection(t *testing.T) {
	hub, _, srv := newChatServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.NoError(t, err) // the upgrade itself succeeds
	defer conn.Close()

	// The server closes right after the upgrade without joining a room, so
	// the first read fails instead of hanging.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	assert.Zero(t, hub.RoomSize(""))
}

func TestServeWS_ChatRoundTripOverConnection(t *testing.T) {
	hub, _, srv := newChatServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?community=ward-7"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.RoomSize("ward-7") == 1 }, 2*time.Second, 10*time.Millisecond)

	payload := `{"type":"chat","payload":{"text":"streetlight out","sender":"asha"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "chat", frame.Type)

	var msg models.Message
	require.NoError(t, json.Unmarshal(frame.Payload, &msg))
	assert.Equal(t, "ward-7", msg.CommunityID)
	assert.Equal(t, "streetlight out", msg.Text)
	assert.Equal(t, "asha", msg.Sender)

	conn.Close()
	require.Eventually(t, func() bool { return hub.RoomSize("ward-7") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestListenerSendNeverBlocks(t *testing.T) {
	// No write pump draining: Send must queue until the buffer is full and
	// then fail instead of waiting on the connection.
	l := newWSListener(nil)

	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, l.Send([]byte("frame")))
	}
	assert.ErrorIs(t, l.Send([]byte("frame")), errSendBufferFull)
}

func TestHub_StalledListenerDoesNotBlockRoom(t *testing.T) {
	hub := NewHub(quietLogger())

	// A listener whose connection never drains: its buffer fills up and
	// further sends fail, but nothing waits on it.
	stalled := newWSListener(nil)
	healthy := &fakeListener{}
	hub.Join(stalled, "ward-7")
	hub.Join(healthy, "ward-7")

	total := sendBufferSize + 5
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			hub.Publish("ward-7", []byte("frame"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing wedged behind a stalled listener")
	}

	assert.Len(t, healthy.received, total)
	// The hub itself stays responsive.
	assert.Equal(t, 2, hub.RoomSize("ward-7"))
	hub.Leave(stalled)
	assert.Equal(t, 1, hub.RoomSize("ward-7"))
}
