package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

// Socket event names.
const (
	EventJoin      = "join"
	EventMessage   = "message"
	EventAssistant = "assistant"
	EventHistory   = "history"
)

// Frame is the envelope for every socket event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload is sent by a client to enter a conversation's room.
type JoinPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
}

// MessagePayload is sent by a client for both message and assistant events.
type MessagePayload struct {
	ConversationID string     `json:"conversationId"`
	Author         string     `json:"author,omitempty"`
	Text           string     `json:"text"`
	TS             int64      `json:"ts,omitempty"`
	Meta           *chat.Meta `json:"meta,omitempty"`
}

// Event is an accepted message or assistant event on its way to a room. It
// is also the payload carried on the event bus between relay processes.
type Event struct {
	Kind           string       `json:"kind"`
	ConversationID string       `json:"conversation_id"`
	Message        chat.Message `json:"message"`
	Origin         string       `json:"origin,omitempty"`
}

// EncodeFrame builds a wire frame for event with data as its payload.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// decodeJoin accepts both {"conversationId": ...} and a bare conversation id
// string.
func decodeJoin(data json.RawMessage) (JoinPayload, error) {
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		var id string
		if err2 := json.Unmarshal(data, &id); err2 != nil {
			return p, fmt.Errorf("decode join: %w", err)
		}
		p.ConversationID = id
	}
	p.ConversationID = strings.TrimSpace(p.ConversationID)
	if p.ConversationID == "" {
		return p, fmt.Errorf("join without conversationId")
	}
	return p, nil
}

// decodeMessage validates a message or assistant payload and turns it into an
// Event. Missing timestamps are stamped with now.
func decodeMessage(kind string, data json.RawMessage) (Event, error) {
	var p MessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return Event{}, fmt.Errorf("%s without conversationId", kind)
	}
	if p.Text == "" {
		return Event{}, fmt.Errorf("%s without text", kind)
	}

	msg := chat.Message{
		Author: p.Author,
		Text:   p.Text,
		TS:     p.TS,
		Meta:   p.Meta,
	}
	switch kind {
	case EventMessage:
		if strings.TrimSpace(p.Author) == "" {
			return Event{}, fmt.Errorf("message without author")
		}
		msg.Role = chat.RoleUser
	case EventAssistant:
		if msg.Author == "" {
			msg.Author = chat.AssistantAuthor
		}
		msg.Role = chat.RoleAssistant
	default:
		return Event{}, fmt.Errorf("unknown event %q", kind)
	}
	if msg.TS <= 0 {
		msg.TS = chat.NowMillis()
	}

	return Event{Kind: kind, ConversationID: strings.TrimSpace(p.ConversationID), Message: msg}, nil
}
