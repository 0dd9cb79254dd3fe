package relay

import (
	"log/slog"
	"sync"
)

// Peer is one connected socket. Send must not block: it returns false when
// the frame was dropped because the peer is slow or gone.
type Peer interface {
	ID() string
	Send(frame []byte) bool
}

// Rooms tracks which peers are in which conversation. A peer is in at most
// one room at a time.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]Peer // conversationID -> peerID -> peer
	current map[string]string          // peerID -> conversationID
	logger  *slog.Logger
}

func NewRooms(logger *slog.Logger) *Rooms {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rooms{
		members: make(map[string]map[string]Peer),
		current: make(map[string]string),
		logger:  logger.With("component", "rooms"),
	}
}

// Join moves peer into the conversation's room, leaving any previous room.
// It returns the id of the room that was left, or "".
func (r *Rooms) Join(convID string, peer Peer) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current[peer.ID()]
	if prev == convID {
		return ""
	}
	if prev != "" {
		r.removeLocked(prev, peer.ID())
	}

	if _, ok := r.members[convID]; !ok {
		r.members[convID] = make(map[string]Peer)
	}
	r.members[convID][peer.ID()] = peer
	r.current[peer.ID()] = convID
	return prev
}

// Leave removes peer from whatever room it is in.
func (r *Rooms) Leave(peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if convID, ok := r.current[peer.ID()]; ok {
		r.removeLocked(convID, peer.ID())
	}
}

// Room returns the conversation the peer is currently in.
func (r *Rooms) Room(peerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	convID, ok := r.current[peerID]
	return convID, ok
}

// Size returns the number of peers in a room.
func (r *Rooms) Size(convID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[convID])
}

// Broadcast sends frame to every peer in the room and returns how many
// peers accepted it.
func (r *Rooms) Broadcast(convID string, frame []byte) int {
	r.mu.RLock()
	subs := r.members[convID]
	targets := make([]Peer, 0, len(subs))
	for _, p := range subs {
		targets = append(targets, p)
	}
	r.mu.RUnlock()

	sent := 0
	for _, p := range targets {
		if p.Send(frame) {
			sent++
			continue
		}
		r.logger.Debug("dropped frame for slow peer",
			"conversation_id", convID,
			"peer_id", p.ID())
	}
	return sent
}

func (r *Rooms) removeLocked(convID, peerID string) {
	delete(r.current, peerID)
	subs, ok := r.members[convID]
	if !ok {
		return
	}
	delete(subs, peerID)
	if len(subs) == 0 {
		delete(r.members, convID)
	}
}
