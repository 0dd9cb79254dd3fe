// Package relay fans conversation events out to the sockets joined to each
// conversation and keeps the capped history buffer current.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/history"
)

// SubjectEvents is the bus subject relay processes exchange events on.
const SubjectEvents = "chathub.relay.events"

// Bus carries accepted events between relay processes.
type Bus interface {
	Publish(subject string, data any) error
}

// Archive is durable storage for relayed messages.
type Archive interface {
	AppendMessage(ctx context.Context, convID string, msg chat.Message) error
	RecentMessages(ctx context.Context, convID string, limit int) ([]chat.Message, error)
}

type Relay struct {
	history *history.Buffer
	rooms   *Rooms
	bus     Bus
	archive Archive
	origin  string
	logger  *slog.Logger
}

type Option func(*Relay)

// WithBus routes accepted events through the bus instead of delivering them
// locally. The caller must subscribe HandleBusEvent to SubjectEvents.
func WithBus(bus Bus) Option {
	return func(r *Relay) { r.bus = bus }
}

// WithArchive mirrors accepted messages to durable storage and warms empty
// conversations from it on join.
func WithArchive(a Archive) Option {
	return func(r *Relay) { r.archive = a }
}

func New(buf *history.Buffer, logger *slog.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		history: buf,
		rooms:   NewRooms(logger),
		origin:  uuid.NewString(),
		logger:  logger.With("component", "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// History returns the buffered messages of a conversation.
func (r *Relay) History(convID string) []chat.Message {
	return r.history.Get(convID)
}

// Rooms exposes room membership.
func (r *Relay) Rooms() *Rooms {
	return r.rooms
}

// HandleFrame dispatches one raw socket frame from peer. Malformed frames are
// dropped.
func (r *Relay) HandleFrame(ctx context.Context, peer Peer, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		r.logger.Debug("dropping malformed frame", "peer_id", peer.ID(), "error", err)
		return
	}

	switch f.Event {
	case EventJoin:
		p, err := decodeJoin(f.Data)
		if err != nil {
			r.logger.Debug("dropping join", "peer_id", peer.ID(), "error", err)
			return
		}
		r.Join(ctx, peer, p.ConversationID, p.UserID)
	case EventMessage, EventAssistant:
		evt, err := decodeMessage(f.Event, f.Data)
		if err != nil {
			r.logger.Debug("dropping event", "peer_id", peer.ID(), "event", f.Event, "error", err)
			return
		}
		r.Submit(ctx, evt)
	default:
		r.logger.Debug("dropping unknown event", "peer_id", peer.ID(), "event", f.Event)
	}
}

// Join places peer in the conversation's room and sends it the current
// history. Unknown conversations produce an empty history.
func (r *Relay) Join(ctx context.Context, peer Peer, convID, userID string) {
	if r.archive != nil && r.history.Len(convID) == 0 {
		r.warm(ctx, convID)
	}

	r.rooms.Join(convID, peer)

	frame, err := EncodeFrame(EventHistory, r.history.Get(convID))
	if err != nil {
		r.logger.Error("encode history", "conversation_id", convID, "error", err)
		return
	}
	if !peer.Send(frame) {
		r.logger.Warn("history not delivered", "conversation_id", convID, "peer_id", peer.ID())
	}

	r.logger.Info("peer joined",
		"conversation_id", convID,
		"user_id", userID,
		"peer_id", peer.ID(),
		"room_size", r.rooms.Size(convID))
}

// Leave removes peer from its room.
func (r *Relay) Leave(peer Peer) {
	r.rooms.Leave(peer)
}

// Submit accepts a validated event. With a bus the event is published and
// delivered when it comes back on the subject; otherwise it is delivered
// locally.
func (r *Relay) Submit(ctx context.Context, evt Event) {
	evt.Origin = r.origin

	delivered := false
	if r.bus != nil {
		if err := r.bus.Publish(SubjectEvents, evt); err != nil {
			r.logger.Warn("bus publish failed, delivering locally", "conversation_id", evt.ConversationID, "error", err)
		} else {
			delivered = true
		}
	}
	if !delivered {
		r.deliver(evt)
	}

	if r.archive != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.archive.AppendMessage(actx, evt.ConversationID, evt.Message); err != nil {
			r.logger.Warn("archive append failed", "conversation_id", evt.ConversationID, "error", err)
		}
	}
}

// HandleBusEvent is the bus handler for SubjectEvents.
func (r *Relay) HandleBusEvent(subject string, data []byte) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		r.logger.Error("failed to parse bus event", "subject", subject, "error", err)
		return
	}
	if evt.ConversationID == "" || (evt.Kind != EventMessage && evt.Kind != EventAssistant) {
		r.logger.Debug("dropping bus event", "subject", subject, "kind", evt.Kind)
		return
	}
	r.deliver(evt)
}

func (r *Relay) deliver(evt Event) {
	r.history.Append(evt.ConversationID, evt.Message)

	frame, err := EncodeFrame(evt.Kind, evt.Message)
	if err != nil {
		r.logger.Error("encode event", "conversation_id", evt.ConversationID, "error", err)
		return
	}
	sent := r.rooms.Broadcast(evt.ConversationID, frame)

	r.logger.Debug("event relayed",
		"conversation_id", evt.ConversationID,
		"kind", evt.Kind,
		"author", evt.Message.Author,
		"recipients", sent)
}

func (r *Relay) warm(ctx context.Context, convID string) {
	msgs, err := r.archive.RecentMessages(ctx, convID, r.history.Cap())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Warn("archive warm failed", "conversation_id", convID, "error", err)
		}
		return
	}
	if r.history.Seed(convID, msgs) {
		r.logger.Info("history warmed from archive", "conversation_id", convID, "messages", len(msgs))
	}
}
