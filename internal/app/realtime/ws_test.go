package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planpoker/internal/pkg/errs"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/hub"
}

func TestHubURL(t *testing.T) {
	got, err := HubURL("wss://poker.example.com/hub", testJoin)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/hub", u.Path)
	assert.Equal(t, "tok", u.Query().Get("access_token"))
	assert.Equal(t, "ABC234", u.Query().Get("roomCode"))
}

func TestWSDialer_ExchangesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Frame, 1)
	query := make(chan url.Values, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.Query()
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		received <- f

		ws.WriteJSON(Frame{Type: FramePing})
		out, _ := NewInvocation("UserJoined", map[string]string{"id": "u2"})
		ws.WriteJSON(out)
		ws.WriteJSON(Frame{Type: FrameClose, Error: "room closed"})
	}))
	defer srv.Close()

	conn, err := NewWSDialer(wsURL(srv)).Dial(context.Background(), testJoin)
	require.NoError(t, err)
	defer conn.Close()

	q := <-query
	assert.Equal(t, "tok", q.Get("access_token"))
	assert.Equal(t, "ABC234", q.Get("roomCode"))

	join, err := NewInvocation(MethodJoinRoom, "ABC234", "room-1", "user-1")
	require.NoError(t, err)
	require.NoError(t, conn.Send(context.Background(), join))

	select {
	case f := <-received:
		assert.Equal(t, MethodJoinRoom, f.Target)
		assert.Len(t, f.Arguments, 3)
	case <-time.After(time.Second):
		t.Fatal("server did not receive JoinRoom")
	}

	select {
	case f, ok := <-conn.Frames():
		require.True(t, ok)
		assert.Equal(t, "UserJoined", f.Target)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(f.Arguments[0], &payload))
		assert.Equal(t, "u2", payload["id"])
	case <-time.After(time.Second):
		t.Fatal("no frame from server")
	}

	select {
	case _, ok := <-conn.Frames():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("frames not closed")
	}
	assert.EqualError(t, conn.Err(), "room closed")
}

func TestWSDialer_RejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewWSDialer(wsURL(srv)).Dial(context.Background(), testJoin)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, errs.StatusOf(err))
}

func TestWSDialer_UnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := wsURL(srv)
	srv.Close()

	_, err := NewWSDialer(target).Dial(context.Background(), testJoin)
	require.Error(t, err)
	assert.True(t, errs.IsNetwork(err))
}
