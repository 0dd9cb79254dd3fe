package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AssistantAuthor is the author recorded on assistant replies.
const AssistantAuthor = "assistant"

// Meta carries optional model attribution for a message.
type Meta struct {
	ModelID  string `json:"modelId,omitempty"`
	SentToAI bool   `json:"sentToAI,omitempty"`
}

// Message is a single entry in a conversation. Messages are ordered by TS and
// identified by (Author, TS).
type Message struct {
	ID        string `json:"id,omitempty"`
	Author    string `json:"author"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	TS        int64  `json:"ts"`
	Meta      *Meta  `json:"meta,omitempty"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

// Key is the identity of a message within a conversation.
type Key struct {
	Author string
	TS     int64
}

func (m Message) Key() Key {
	return Key{Author: m.Author, TS: m.TS}
}

// Stripped returns the message reduced to author, role, text and ts, the
// shape sent to a model as conversation context.
func (m Message) Stripped() Message {
	return Message{Author: m.Author, Role: m.Role, Text: m.Text, TS: m.TS}
}

// ModelID returns the model attribution, or "" if none.
func (m Message) ModelID() string {
	if m.Meta == nil {
		return ""
	}
	return m.Meta.ModelID
}

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Tail returns the last n messages of msgs. The result shares no backing
// array with msgs.
func Tail(msgs []Message, n int) []Message {
	if n < 0 {
		n = 0
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
