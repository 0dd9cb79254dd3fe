package client

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/MikeSquared-Agency/chathub/internal/byom"
	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/chatlog"
	"github.com/MikeSquared-Agency/chathub/internal/relay"
)

// Emitter sends socket events. *Socket implements it.
type Emitter interface {
	Emit(event string, data any) error
}

// Invoker runs a BYOM call. *BYOM implements it.
type Invoker interface {
	Invoke(ctx context.Context, userID, convID, prompt string, conversation []chat.Message) (byom.InvokeResult, error)
}

// Session is one user in one conversation.
type Session struct {
	convID  string
	userID  string
	store   *chatlog.Store
	emitter Emitter
	invoker Invoker
	logger  *slog.Logger

	// AutoPublish shares assistant replies as soon as they arrive.
	AutoPublish bool
}

func NewSession(store *chatlog.Store, emitter Emitter, invoker Invoker, convID, userID string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		convID:  convID,
		userID:  userID,
		store:   store,
		emitter: emitter,
		invoker: invoker,
		logger:  logger.With("component", "session", "conversation_id", convID),
	}
}

func (s *Session) ConversationID() string { return s.convID }

func (s *Session) Store() *chatlog.Store { return s.store }

func (s *Session) Join() error {
	return s.emitter.Emit(relay.EventJoin, relay.JoinPayload{ConversationID: s.convID, UserID: s.userID})
}

// HandleFrame applies a server event to the store. Frames that do not
// decode are ignored.
func (s *Session) HandleFrame(f relay.Frame) {
	switch f.Event {
	case relay.EventHistory:
		var msgs []chat.Message
		if err := json.Unmarshal(f.Data, &msgs); err != nil {
			s.logger.Debug("dropping history frame", "error", err)
			return
		}
		s.store.SetMessages(s.convID, msgs)
	case relay.EventMessage, relay.EventAssistant:
		var msg chat.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			s.logger.Debug("dropping frame", "event", f.Event, "error", err)
			return
		}
		msg.Ephemeral = false
		s.store.AddMessage(s.convID, msg)
	}
}

// Send records text locally and relays it. The server echo carries the same
// (author, ts) and replaces the local copy.
func (s *Session) Send(text string) (chat.Message, error) {
	msg := s.store.AddUserMessage(s.convID, s.userID, text)
	if err := s.emitter.Emit(relay.EventMessage, payloadOf(s.convID, msg)); err != nil {
		return msg, err
	}
	return msg, nil
}

// Ask invokes the user's provider on the conversation and stores the reply
// as ephemeral. A failed call still produces a reply whose text is the
// error.
func (s *Session) Ask(ctx context.Context, prompt string) chat.Message {
	snapshot := s.store.Snapshot(s.convID, byom.SnapshotLimit)

	text, modelID := "", ""
	res, err := s.invoker.Invoke(ctx, s.userID, s.convID, prompt, snapshot)
	if err != nil {
		s.logger.Warn("ask failed", "error", err)
		text = "Error: " + err.Error()
	} else {
		text = res.Reply
		if res.Meta != nil {
			modelID = res.Meta.ModelID
		}
	}

	msg := s.store.AddAssistantMessage(s.convID, text, modelID, true)
	if s.AutoPublish {
		published, err := s.Reveal(msg.TS)
		if err != nil {
			s.logger.Warn("auto publish failed", "error", err)
			return msg
		}
		return published
	}
	return msg
}

// Reveal publishes the ephemeral reply at ts and broadcasts it.
func (s *Session) Reveal(ts int64) (chat.Message, error) {
	msg, err := s.store.Publish(s.convID, chat.AssistantAuthor, ts)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.emitter.Emit(relay.EventAssistant, payloadOf(s.convID, msg)); err != nil {
		return msg, err
	}
	return msg, nil
}

// RevealLatest publishes the newest ephemeral reply, if any.
func (s *Session) RevealLatest() (chat.Message, error) {
	latest, ok := s.store.LatestEphemeral(s.convID)
	if !ok {
		return chat.Message{}, chatlog.ErrNotFound
	}
	return s.Reveal(latest.TS)
}
