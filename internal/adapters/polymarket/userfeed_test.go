package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/adapters/polymarket"
)

// userChannelServer serves derive-api-key over HTTP and the user channel over
// websocket. Each accepted connection is handed to onConn.
func userChannelServer(t *testing.T, onConn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/derive-api-key" {
			writeCreds(w)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onConn(conn)
	}))
}

func TestUserFeed_SignalsOnOrderEvents(t *testing.T) {
	subscribed := make(chan map[string]any, 1)
	release := make(chan struct{})

	srv := userChannelServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub

		conn.WriteMessage(websocket.TextMessage, []byte(`[{"event_type":"order","market":"0xcond"}]`))
		<-release
	})
	defer srv.Close()
	defer close(release)

	auth, err := polymarket.NewAuthClient(polymarket.NewClient(srv.URL, ""), polymarket.AuthConfig{PrivateKeyHex: testPrivateKey})
	require.NoError(t, err)
	feed := polymarket.NewUserFeed(auth, "ws"+strings.TrimPrefix(srv.URL, "http"))

	sub, err := feed.Subscribe(context.Background(), "0xcond")
	require.NoError(t, err)
	defer sub.Close()

	select {
	case msg := <-subscribed:
		assert.Equal(t, "user", msg["type"])
		assert.Equal(t, []any{"0xcond"}, msg["markets"])
		authMsg, _ := json.Marshal(msg["auth"])
		assert.Contains(t, string(authMsg), testAPIKey)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription received")
	}

	select {
	case <-sub.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("no event signalled")
	}
	assert.True(t, sub.Connected())
}

func TestUserFeed_DisconnectClearsConnected(t *testing.T) {
	srv := userChannelServer(t, func(conn *websocket.Conn) {
		var sub map[string]any
		conn.ReadJSON(&sub)
		conn.Close()
	})
	defer srv.Close()

	auth, err := polymarket.NewAuthClient(polymarket.NewClient(srv.URL, ""), polymarket.AuthConfig{PrivateKeyHex: testPrivateKey})
	require.NoError(t, err)
	feed := polymarket.NewUserFeed(auth, "ws"+strings.TrimPrefix(srv.URL, "http"))

	sub, err := feed.Subscribe(context.Background(), "0xcond")
	require.NoError(t, err)
	defer sub.Close()

	assert.Eventually(t, func() bool { return !sub.Connected() }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, sub.Close())
}
