package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverSide struct {
	conns  chan *Conn
	closed chan *Conn
}

// startServer upgrades every request and serves it with handle.
func startServer(t *testing.T, handle FrameHandler) (*httptest.Server, *serverSide) {
	t.Helper()

	side := &serverSide{
		conns:  make(chan *Conn, 1),
		closed: make(chan *Conn, 1),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConn(wsConn)
		side.conns <- c
		c.Run(handle, func(c *Conn) { side.closed <- c })
	}))
	t.Cleanup(srv.Close)
	return srv, side
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func readJSON(t *testing.T, client *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, client.ReadJSON(&msg))
	return msg
}

func TestConn_AckReply(t *testing.T) {
	srv, _ := startServer(t, func(c *Conn, f Frame) {
		if f.Ack != nil {
			_ = c.Reply(*f.Ack, f.Event == "ping")
		}
	})
	client := dial(t, srv)

	require.NoError(t, client.WriteJSON(map[string]any{"event": "ping", "data": map[string]string{}, "ack": 7}))

	msg := readJSON(t, client)
	assert.Equal(t, EventAck, msg["event"])
	assert.Equal(t, float64(7), msg["ack"])
	assert.Equal(t, true, msg["data"])
}

func TestConn_EmitAndBind(t *testing.T) {
	srv, side := startServer(t, func(c *Conn, f Frame) {})
	client := dial(t, srv)

	c := <-side.conns
	assert.NotEmpty(t, c.ID())
	c.Bind("u1")
	assert.Equal(t, "u1", c.UserID())

	require.NoError(t, c.Emit("match_found", map[string]string{"matchId": "m1"}))

	msg := readJSON(t, client)
	assert.Equal(t, "match_found", msg["event"])
	assert.Equal(t, map[string]any{"matchId": "m1"}, msg["data"])
	assert.NotContains(t, msg, "ack")
}

func TestConn_MalformedFrameIsIgnored(t *testing.T) {
	frames := make(chan Frame, 1)
	srv, _ := startServer(t, func(c *Conn, f Frame) { frames <- f })
	client := dial(t, srv)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))
	require.NoError(t, client.WriteJSON(map[string]any{"event": "user_connected", "data": map[string]string{"userId": "u1"}}))

	select {
	case f := <-frames:
		assert.Equal(t, "user_connected", f.Event)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(f.Data, &payload))
		assert.Equal(t, "u1", payload["userId"])
		assert.Nil(t, f.Ack)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestConn_CloseFlushesAndNotifies(t *testing.T) {
	srv, side := startServer(t, func(c *Conn, f Frame) {})
	client := dial(t, srv)

	c := <-side.conns
	require.NoError(t, c.Emit("match_request_error", nil))
	require.NoError(t, c.Close())

	msg := readJSON(t, client)
	assert.Equal(t, "match_request_error", msg["event"])

	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	select {
	case closed := <-side.closed:
		assert.Equal(t, c.ID(), closed.ID())
	case <-time.After(2 * time.Second):
		t.Fatal("onClose not called")
	}

	assert.ErrorIs(t, c.Emit("late", nil), ErrClosed)
}

func TestConn_PeerCloseRunsOnClose(t *testing.T) {
	srv, side := startServer(t, func(c *Conn, f Frame) {})
	client := dial(t, srv)

	c := <-side.conns
	require.NoError(t, client.Close())

	select {
	case closed := <-side.closed:
		assert.Equal(t, c.ID(), closed.ID())
	case <-time.After(2 * time.Second):
		t.Fatal("onClose not called")
	}
}
