package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/chathub/internal/relay"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	// Browsers connect from the SPA origin or a dev server; any origin may join.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// socketPeer is a websocket connection seen by the relay. Frames are queued
// on send and written by a single writer goroutine.
type socketPeer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (p *socketPeer) ID() string { return p.id }

func (p *socketPeer) Send(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *socketPeer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	peer := &socketPeer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	s.logger.Debug("socket connected", "peer_id", peer.id, "remote", r.RemoteAddr)

	go s.writeLoop(peer)
	s.readLoop(peer)
}

func (s *Server) readLoop(peer *socketPeer) {
	defer func() {
		s.deps.Relay.Leave(peer)
		peer.close()
		s.logger.Debug("socket disconnected", "peer_id", peer.id)
	}()

	peer.conn.SetReadLimit(maxFrameSize)
	peer.conn.SetReadDeadline(time.Now().Add(pongWait))
	peer.conn.SetPongHandler(func(string) error {
		return peer.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := peer.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("socket read failed", "peer_id", peer.id, "error", err)
			}
			return
		}
		s.deps.Relay.HandleFrame(context.Background(), peer, raw)
	}
}

func (s *Server) writeLoop(peer *socketPeer) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		peer.close()
	}()

	for {
		select {
		case frame := <-peer.send:
			peer.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := peer.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			peer.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := peer.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-peer.done:
			return
		}
	}
}

var _ relay.Peer = (*socketPeer)(nil)
