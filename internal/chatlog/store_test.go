package chatlog

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

func userMsg(author string, ts int64, text string) chat.Message {
	return chat.Message{Author: author, Role: chat.RoleUser, Text: text, TS: ts}
}

func isSorted(msgs []chat.Message) bool {
	return sort.SliceIsSorted(msgs, func(i, j int) bool { return msgs[i].TS < msgs[j].TS })
}

func TestAddMessage_OutOfOrderStaysSorted(t *testing.T) {
	s := New(1000)
	rng := rand.New(rand.NewSource(42))

	for _, ts := range rng.Perm(200) {
		s.AddMessage("demo", userMsg(fmt.Sprintf("u%d", ts%3), int64(ts), "hi"))
	}

	got := s.Messages("demo")
	require.Len(t, got, 200)
	assert.True(t, isSorted(got))
}

func TestAddMessage_SameKeyReplaces(t *testing.T) {
	s := New(10)

	s.AddMessage("demo", userMsg("alice", 100, "first"))
	s.AddMessage("demo", userMsg("bob", 100, "other author"))
	s.AddMessage("demo", userMsg("alice", 100, "second"))

	got := s.Messages("demo")
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Text)
	assert.Equal(t, "bob", got[1].Author)
}

func TestAddMessage_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	s := New(10)

	s.AddMessage("demo", userMsg("alice", 5, "a"))
	s.AddMessage("demo", userMsg("bob", 5, "b"))
	s.AddMessage("demo", userMsg("carol", 1, "c"))

	got := s.Messages("demo")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"carol", "alice", "bob"}, []string{got[0].Author, got[1].Author, got[2].Author})
}

func TestAddMessage_NeverExceedsCap(t *testing.T) {
	s := New(5)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		s.AddMessage("demo", userMsg("alice", rng.Int63n(1000), fmt.Sprint(i)))
		assert.LessOrEqual(t, len(s.Messages("demo")), 5)
	}
	assert.True(t, isSorted(s.Messages("demo")))
}

func TestAddMessage_CapDropsOldest(t *testing.T) {
	s := New(3)
	for ts := int64(1); ts <= 4; ts++ {
		s.AddMessage("demo", userMsg("alice", ts, "x"))
	}

	// An insert older than everything retained is dropped immediately.
	s.AddMessage("demo", userMsg("bob", 0, "late"))

	got := s.Messages("demo")
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].TS)
	assert.Equal(t, int64(4), got[2].TS)
}

func TestMessages_UnknownConversation(t *testing.T) {
	s := New(10)
	assert.Empty(t, s.Messages("missing"))
}

func TestSetMessages_SortsDedupesAndKeepsEphemeral(t *testing.T) {
	s := New(10)
	s.AddMessage("demo", chat.Message{Author: chat.AssistantAuthor, Role: chat.RoleAssistant, Text: "draft", TS: 25, Ephemeral: true})
	s.AddMessage("demo", userMsg("stale", 1, "dropped by refresh"))

	s.SetMessages("demo", []chat.Message{
		userMsg("bob", 30, "three"),
		userMsg("alice", 10, "one"),
		userMsg("alice", 10, "one, edited"),
		userMsg("carol", 20, "two"),
	})

	got := s.Messages("demo")
	require.Len(t, got, 4)
	assert.True(t, isSorted(got))
	assert.Equal(t, "one, edited", got[0].Text)
	assert.Equal(t, "draft", got[2].Text)
	assert.True(t, got[2].Ephemeral)
}

func TestSetMessages_ServerCopyWinsOverEphemeral(t *testing.T) {
	s := New(10)
	s.AddMessage("demo", chat.Message{Author: chat.AssistantAuthor, Role: chat.RoleAssistant, Text: "draft", TS: 25, Ephemeral: true})

	s.SetMessages("demo", []chat.Message{{Author: chat.AssistantAuthor, Role: chat.RoleAssistant, Text: "draft", TS: 25}})

	got := s.Messages("demo")
	require.Len(t, got, 1)
	assert.False(t, got[0].Ephemeral)
}

func TestPublish(t *testing.T) {
	s := New(10)
	reply := s.AddAssistantMessage("demo", "answer", "gpt-4o-mini", true)

	published, err := s.Publish("demo", chat.AssistantAuthor, reply.TS)
	require.NoError(t, err)
	assert.False(t, published.Ephemeral)
	assert.Equal(t, "gpt-4o-mini", published.ModelID())

	got := s.Messages("demo")
	require.Len(t, got, 1)
	assert.False(t, got[0].Ephemeral)

	_, err = s.Publish("demo", chat.AssistantAuthor, reply.TS)
	assert.ErrorIs(t, err, ErrNotEphemeral)

	_, err = s.Publish("demo", chat.AssistantAuthor, reply.TS+1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestEphemeral(t *testing.T) {
	s := New(10)
	_, ok := s.LatestEphemeral("demo")
	assert.False(t, ok)

	s.AddMessage("demo", chat.Message{Author: chat.AssistantAuthor, Role: chat.RoleAssistant, Text: "old", TS: 1, Ephemeral: true})
	s.AddMessage("demo", chat.Message{Author: chat.AssistantAuthor, Role: chat.RoleAssistant, Text: "new", TS: 2, Ephemeral: true})
	s.AddMessage("demo", userMsg("alice", 3, "after"))

	m, ok := s.LatestEphemeral("demo")
	require.True(t, ok)
	assert.Equal(t, "new", m.Text)
}

func TestSnapshot_StripsAndBounds(t *testing.T) {
	s := New(100)
	for ts := int64(1); ts <= 60; ts++ {
		m := userMsg("alice", ts, "x")
		m.Meta = &chat.Meta{ModelID: "m"}
		m.Ephemeral = ts%2 == 0
		s.AddMessage("demo", m)
	}

	snap := s.Snapshot("demo", 50)
	require.Len(t, snap, 50)
	assert.Equal(t, int64(11), snap[0].TS)
	for _, m := range snap {
		assert.Nil(t, m.Meta)
		assert.False(t, m.Ephemeral)
	}
}

func TestSubscribe_NotifiesUntilUnsubscribed(t *testing.T) {
	s := New(10)

	var seen []string
	unsubscribe := s.Subscribe(func(convID string) {
		// Listeners may read the store.
		seen = append(seen, fmt.Sprintf("%s:%d", convID, len(s.Messages(convID))))
	})

	s.AddMessage("demo", userMsg("alice", 1, "a"))
	s.SetMessages("other", []chat.Message{userMsg("bob", 2, "b")})
	unsubscribe()
	s.AddMessage("demo", userMsg("alice", 3, "c"))

	assert.Equal(t, []string{"demo:1", "other:1"}, seen)
}
