// Package client talks to a chat hub: the relay socket, the BYOM endpoints,
// and a Session that ties both to a local conversation store.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/relay"
)

// Socket is a relay connection. Emit is safe for concurrent use; Listen
// must run in a single goroutine.
type Socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// SocketURL turns a hub base URL such as "http://localhost:3000" into its
// socket endpoint.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/socket"
	return u.String(), nil
}

func Dial(ctx context.Context, base string) (*Socket, error) {
	target, err := SocketURL(base)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &Socket{conn: conn}, nil
}

func (s *Socket) Emit(event string, data any) error {
	frame, err := relay.EncodeFrame(event, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (s *Socket) Join(convID, userID string) error {
	return s.Emit(relay.EventJoin, relay.JoinPayload{ConversationID: convID, UserID: userID})
}

func (s *Socket) SendMessage(convID string, msg chat.Message) error {
	return s.Emit(relay.EventMessage, payloadOf(convID, msg))
}

func (s *Socket) SendAssistant(convID string, msg chat.Message) error {
	return s.Emit(relay.EventAssistant, payloadOf(convID, msg))
}

// Listen reads frames and passes them to handle until the connection closes
// or ctx is cancelled.
func (s *Socket) Listen(ctx context.Context, handle func(relay.Frame)) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		var f relay.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		handle(f)
	}
}

func (s *Socket) Close() error {
	s.mu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.mu.Unlock()
	return s.conn.Close()
}

func payloadOf(convID string, msg chat.Message) relay.MessagePayload {
	return relay.MessagePayload{
		ConversationID: convID,
		Author:         msg.Author,
		Text:           msg.Text,
		TS:             msg.TS,
		Meta:           msg.Meta,
	}
}
