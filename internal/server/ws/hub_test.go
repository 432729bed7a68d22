package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/service"
)

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "full"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello map[string]any
	readJSON(t, conn, &hello)
	require.Equal(t, "hello", hello["type"])
	return hub, conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestHubDeliversEvents(t *testing.T) {
	hub, conn := startHub(t)

	hub.PublishEvent(context.Background(), domain.Event{
		Seq:     7,
		Name:    domain.EventItemSold,
		TokenID: 3,
		Amount:  big.NewInt(42),
	})

	var msg service.EventMessage
	readJSON(t, conn, &msg)
	require.Equal(t, "market_event", msg.Type)
	require.Equal(t, domain.EventItemSold, msg.Event.Name)
	require.Equal(t, uint64(3), msg.Event.TokenID)
}

func TestHubHonoursSubscriptions(t *testing.T) {
	hub, conn := startHub(t)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: defaultChannels}))
	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Channels: []string{ChannelPrefix + string(domain.EventItemLiked)}}))

	// Subscriptions are applied asynchronously by the read pump.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.isSubscribed(ChannelPrefix+string(domain.EventItemSold)) ||
				!c.isSubscribed(ChannelPrefix+string(domain.EventItemLiked)) {
				return false
			}
		}
		return len(hub.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.PublishEvent(context.Background(), domain.Event{Seq: 1, Name: domain.EventItemSold, TokenID: 1})
	hub.PublishEvent(context.Background(), domain.Event{Seq: 2, Name: domain.EventItemLiked, TokenID: 1})

	var msg service.EventMessage
	readJSON(t, conn, &msg)
	require.Equal(t, domain.EventItemLiked, msg.Event.Name)
}

func TestIsSubscribedWildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"events:*": true}}
	require.True(t, c.isSubscribed("events:ItemSold"))
	require.False(t, c.isSubscribed("other"))

	c = &client{subs: map[string]bool{"events:ItemLiked": true}}
	require.True(t, c.isSubscribed("events:ItemLiked"))
	require.False(t, c.isSubscribed("events:ItemSold"))
}

func TestOriginAllowed(t *testing.T) {
	require.True(t, originAllowed(nil, "https://x.example"))
	require.True(t, originAllowed([]string{"https://x.example"}, ""))
	require.True(t, originAllowed([]string{"https://X.example"}, "https://x.example"))
	require.False(t, originAllowed([]string{"https://x.example"}, "https://y.example"))
}

func TestHandleWSAfterRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	returned := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWS(w, r)
		returned <- struct{}{}
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS blocked on a stopped hub")
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestClientsDisconnectWhenRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	readJSON(t, conn, &hello)
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) ||
		websocket.IsUnexpectedCloseError(err), "got %v", err)
	require.Zero(t, hub.clientCount())
}
