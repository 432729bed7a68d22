package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/service"
)

const (
	writeWait         = 10 * time.Second
	readWait          = 90 * time.Second
	reconnectDelay    = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// EventHandler receives each event pushed by the server.
type EventHandler func(domain.Event)

// EventStream follows the server's WebSocket feed of committed events. It
// reconnects with backoff until its context is cancelled.
type EventStream struct {
	wsURL   string
	names   map[domain.EventName]bool
	onEvent EventHandler
	logger  *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// EventStream returns a stream of the named events, or of every event when
// no names are given. Call Run to start it.
func (c *Client) EventStream(onEvent EventHandler, logger *slog.Logger, names ...domain.EventName) (*EventStream, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: event stream: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	s := &EventStream{
		wsURL:   u.String(),
		onEvent: onEvent,
		logger:  logger.With(slog.String("component", "event_stream")),
		ready:   make(chan struct{}),
	}
	if len(names) > 0 {
		s.names = make(map[domain.EventName]bool, len(names))
		for _, n := range names {
			s.names[n] = true
		}
	}
	return s, nil
}

// Ready is closed once the first connection is subscribed.
func (s *EventStream) Ready() <-chan struct{} {
	return s.ready
}

// Run connects and dispatches events until ctx is cancelled.
func (s *EventStream) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("event stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *EventStream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	if err := s.subscribe(conn); err != nil {
		return err
	}
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("client: server closed the stream")
			}
			return fmt.Errorf("client: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		s.handleMessage(raw)
	}
}

// subscribe narrows the server-side subscription to the requested events.
func (s *EventStream) subscribe(conn *websocket.Conn) error {
	if len(s.names) == 0 {
		return nil
	}
	channels := make([]string, 0, len(s.names))
	for n := range s.names {
		channels = append(channels, "events:"+string(n))
	}
	for _, cmd := range []map[string]any{
		{"action": "unsubscribe", "channels": []string{"events:*"}},
		{"action": "subscribe", "channels": channels},
	} {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(cmd); err != nil {
			return fmt.Errorf("client: subscribe: %w", err)
		}
	}
	return nil
}

func (s *EventStream) handleMessage(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.Type != "market_event" {
		return
	}

	var msg service.EventMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn("dropping malformed event", slog.String("error", err.Error()))
		return
	}
	// Events published before the subscription changed may still arrive.
	if s.names != nil && !s.names[msg.Event.Name] {
		return
	}
	s.onEvent(msg.Event)
}
