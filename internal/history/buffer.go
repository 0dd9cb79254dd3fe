// Package history holds the relay's capped, in-memory conversation buffers.
package history

import (
	"sort"
	"sync"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

// DefaultCap is the number of messages kept per conversation when no cap is
// configured.
const DefaultCap = 500

// Buffer maps conversation ids to the most recent messages in arrival order.
// Once a conversation reaches the cap, each append evicts the oldest entry.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	convs    map[string][]chat.Message
}

// New creates a buffer keeping at most capacity messages per conversation.
// A non-positive capacity selects DefaultCap.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Buffer{
		capacity: capacity,
		convs:    make(map[string][]chat.Message),
	}
}

// Cap returns the per-conversation limit.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Append adds msg to the end of the conversation and evicts the oldest
// entries beyond the cap. It returns the number of evicted messages.
func (b *Buffer) Append(convID string, msg chat.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := append(b.convs[convID], msg)
	evicted := 0
	if over := len(msgs) - b.capacity; over > 0 {
		// Shift in place so the backing array does not grow without bound.
		n := copy(msgs, msgs[over:])
		msgs = msgs[:n]
		evicted = over
	}
	b.convs[convID] = msgs
	return evicted
}

// Get returns a copy of the conversation. Unknown conversations yield an
// empty, non-nil slice.
func (b *Buffer) Get(convID string) []chat.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msgs := b.convs[convID]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Seed fills an empty conversation with msgs, keeping only the newest entries
// up to the cap. It reports whether the seed was applied.
func (b *Buffer) Seed(convID string, msgs []chat.Message) bool {
	if len(msgs) == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.convs[convID]) > 0 {
		return false
	}
	b.convs[convID] = chat.Tail(msgs, b.capacity)
	return true
}

// Len returns the number of buffered messages for a conversation.
func (b *Buffer) Len(convID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.convs[convID])
}

// Conversations lists the ids of all conversations with buffered messages.
func (b *Buffer) Conversations() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.convs))
	for id := range b.convs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
