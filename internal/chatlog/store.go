// Package chatlog is the client-side mirror of conversations. Unlike the
// relay's history buffer it keeps each conversation sorted by timestamp,
// collapses duplicates by (author, ts) and tracks ephemeral assistant replies
// that have not been shared yet.
package chatlog

import (
	"errors"
	"sort"
	"sync"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

// DefaultCap is the number of messages kept per conversation.
const DefaultCap = 500

var (
	ErrNotFound     = errors.New("message not found")
	ErrNotEphemeral = errors.New("message is already published")
)

// Listener is called after a conversation changes.
type Listener func(convID string)

type Store struct {
	mu        sync.Mutex
	capacity  int
	convs     map[string][]chat.Message
	listeners map[int]Listener
	nextID    int
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Store{
		capacity:  capacity,
		convs:     make(map[string][]chat.Message),
		listeners: make(map[int]Listener),
	}
}

// Messages returns a copy of the conversation, oldest first.
func (s *Store) Messages(convID string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.convs[convID]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out
}

// AddMessage inserts msg at its position by ts. A message with the same
// (author, ts) is replaced in place.
func (s *Store) AddMessage(convID string, msg chat.Message) {
	s.mu.Lock()
	s.convs[convID] = s.trim(insert(s.convs[convID], msg))
	s.mu.Unlock()

	s.notify(convID)
}

// SetMessages replaces the conversation with msgs, typically a history
// snapshot from the relay. Local ephemeral replies that the snapshot does
// not contain are kept.
func (s *Store) SetMessages(convID string, msgs []chat.Message) {
	s.mu.Lock()
	merged := make([]chat.Message, 0, len(msgs))
	index := make(map[chat.Key]int, len(msgs))
	add := func(m chat.Message) {
		if i, ok := index[m.Key()]; ok {
			merged[i] = m
			return
		}
		index[m.Key()] = len(merged)
		merged = append(merged, m)
	}
	for _, m := range msgs {
		add(m)
	}
	for _, m := range s.convs[convID] {
		if _, ok := index[m.Key()]; !ok && m.Ephemeral {
			add(m)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].TS < merged[j].TS })
	s.convs[convID] = s.trim(merged)
	s.mu.Unlock()

	s.notify(convID)
}

// AddUserMessage records a message typed by author now.
func (s *Store) AddUserMessage(convID, author, text string) chat.Message {
	msg := chat.Message{Author: author, Role: chat.RoleUser, Text: text, TS: chat.NowMillis()}
	s.AddMessage(convID, msg)
	return msg
}

// AddAssistantMessage records a model reply now. Ephemeral replies stay local
// until Publish.
func (s *Store) AddAssistantMessage(convID, text, modelID string, ephemeral bool) chat.Message {
	msg := chat.Message{
		Author:    chat.AssistantAuthor,
		Role:      chat.RoleAssistant,
		Text:      text,
		TS:        chat.NowMillis(),
		Ephemeral: ephemeral,
	}
	if modelID != "" {
		msg.Meta = &chat.Meta{ModelID: modelID}
	}
	s.AddMessage(convID, msg)
	return msg
}

// Publish marks an ephemeral message as shared and returns the updated
// message for broadcast.
func (s *Store) Publish(convID, author string, ts int64) (chat.Message, error) {
	key := chat.Key{Author: author, TS: ts}

	s.mu.Lock()
	msgs := s.convs[convID]
	i := indexOf(msgs, key)
	if i < 0 {
		s.mu.Unlock()
		return chat.Message{}, ErrNotFound
	}
	if !msgs[i].Ephemeral {
		s.mu.Unlock()
		return chat.Message{}, ErrNotEphemeral
	}
	msgs[i].Ephemeral = false
	published := msgs[i]
	s.mu.Unlock()

	s.notify(convID)
	return published, nil
}

// LatestEphemeral returns the newest unpublished reply in the conversation.
func (s *Store) LatestEphemeral(convID string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.convs[convID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Ephemeral {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}

// Snapshot returns the last n messages reduced to author, role, text and ts.
func (s *Store) Snapshot(convID string, n int) []chat.Message {
	tail := chat.Tail(s.Messages(convID), n)
	for i, m := range tail {
		tail[i] = m.Stripped()
	}
	return tail
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify runs listeners outside the lock so they may read the store.
func (s *Store) notify(convID string) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(convID)
	}
}

func (s *Store) trim(msgs []chat.Message) []chat.Message {
	if over := len(msgs) - s.capacity; over > 0 {
		n := copy(msgs, msgs[over:])
		msgs = msgs[:n]
	}
	return msgs
}

func insert(msgs []chat.Message, msg chat.Message) []chat.Message {
	if i := indexOf(msgs, msg.Key()); i >= 0 {
		msgs[i] = msg
		return msgs
	}
	// Equal timestamps keep arrival order.
	pos := sort.Search(len(msgs), func(i int) bool { return msgs[i].TS > msg.TS })
	msgs = append(msgs, chat.Message{})
	copy(msgs[pos+1:], msgs[pos:])
	msgs[pos] = msg
	return msgs
}

func indexOf(msgs []chat.Message, key chat.Key) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Key() == key {
			return i
		}
	}
	return -1
}
