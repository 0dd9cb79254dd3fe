package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/history"
)

type fakePeer struct {
	id     string
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	var f Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		panic(err)
	}
	p.frames = append(p.frames, f)
	return true
}

func (p *fakePeer) received() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Frame, len(p.frames))
	copy(out, p.frames)
	return out
}

func (p *fakePeer) messages(t *testing.T, event string) []chat.Message {
	t.Helper()
	var out []chat.Message
	for _, f := range p.received() {
		if f.Event != event {
			continue
		}
		var m chat.Message
		require.NoError(t, json.Unmarshal(f.Data, &m))
		out = append(out, m)
	}
	return out
}

func (p *fakePeer) history(t *testing.T) []chat.Message {
	t.Helper()
	for _, f := range p.received() {
		if f.Event == EventHistory {
			var msgs []chat.Message
			require.NoError(t, json.Unmarshal(f.Data, &msgs))
			return msgs
		}
	}
	t.Fatal("no history frame received")
	return nil
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	b, err := EncodeFrame(event, data)
	require.NoError(t, err)
	return b
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRelay(capacity int, opts ...Option) *Relay {
	return New(history.New(capacity), quietLogger(), opts...)
}

func TestJoin_UnknownConversationYieldsEmptyHistory(t *testing.T) {
	r := newRelay(10)
	p := newPeer("p1")

	r.HandleFrame(context.Background(), p, frame(t, EventJoin, JoinPayload{ConversationID: "never-seen", UserID: "alice"}))

	frames := p.received()
	require.Len(t, frames, 1)
	assert.Equal(t, EventHistory, frames[0].Event)
	assert.JSONEq(t, `[]`, string(frames[0].Data))
}

func TestJoin_AcceptsBareConversationID(t *testing.T) {
	r := newRelay(10)
	p := newPeer("p1")

	r.HandleFrame(context.Background(), p, frame(t, EventJoin, "demo"))

	room, ok := r.Rooms().Room("p1")
	require.True(t, ok)
	assert.Equal(t, "demo", room)
}

func TestJoin_HistoryGoesOnlyToJoiner(t *testing.T) {
	r := newRelay(10)
	ctx := context.Background()
	alice, bob := newPeer("alice"), newPeer("bob")

	r.HandleFrame(ctx, alice, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))
	r.HandleFrame(ctx, alice, frame(t, EventMessage, MessagePayload{ConversationID: "demo", Author: "alice", Text: "hi", TS: 100}))
	r.HandleFrame(ctx, bob, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))

	hist := bob.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, "hi", hist[0].Text)

	for _, f := range alice.received()[1:] {
		assert.NotEqual(t, EventHistory, f.Event)
	}
}

func TestMessage_BroadcastToRoomIncludingSender(t *testing.T) {
	r := newRelay(10)
	ctx := context.Background()
	alice, bob, carol := newPeer("alice"), newPeer("bob"), newPeer("carol")

	r.HandleFrame(ctx, alice, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))
	r.HandleFrame(ctx, bob, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))
	r.HandleFrame(ctx, carol, frame(t, EventJoin, JoinPayload{ConversationID: "elsewhere"}))

	r.HandleFrame(ctx, alice, frame(t, EventMessage, MessagePayload{
		ConversationID: "demo", Author: "alice", Text: "hello", TS: 42,
		Meta: &chat.Meta{SentToAI: true},
	}))

	for _, p := range []*fakePeer{alice, bob} {
		got := p.messages(t, EventMessage)
		require.Len(t, got, 1, "peer %s", p.id)
		assert.Equal(t, "hello", got[0].Text)
		assert.Equal(t, chat.RoleUser, got[0].Role)
		assert.Equal(t, int64(42), got[0].TS)
		require.NotNil(t, got[0].Meta)
		assert.True(t, got[0].Meta.SentToAI)
	}
	assert.Empty(t, carol.messages(t, EventMessage))
}

func TestAssistant_DefaultsAuthorAndRole(t *testing.T) {
	r := newRelay(10)
	ctx := context.Background()
	p := newPeer("p")

	r.HandleFrame(ctx, p, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))
	r.HandleFrame(ctx, p, frame(t, EventAssistant, MessagePayload{
		ConversationID: "demo", Text: "model says", TS: 7, Meta: &chat.Meta{ModelID: "gpt-4o-mini"},
	}))

	got := p.messages(t, EventAssistant)
	require.Len(t, got, 1)
	assert.Equal(t, chat.AssistantAuthor, got[0].Author)
	assert.Equal(t, chat.RoleAssistant, got[0].Role)
	assert.Equal(t, "gpt-4o-mini", got[0].ModelID())
	assert.Len(t, r.History("demo"), 1)
}

func TestMessage_MissingTimestampIsStamped(t *testing.T) {
	r := newRelay(10)
	r.HandleFrame(context.Background(), newPeer("p"), frame(t, EventMessage, MessagePayload{ConversationID: "demo", Author: "a", Text: "x"}))

	hist := r.History("demo")
	require.Len(t, hist, 1)
	assert.Positive(t, hist[0].TS)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	r := newRelay(10)
	ctx := context.Background()
	p := newPeer("p")
	r.HandleFrame(ctx, p, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))

	inputs := [][]byte{
		[]byte(`not json`),
		[]byte(`{"event":"message","data":"nope"}`),
		frame(t, EventMessage, MessagePayload{Author: "a", Text: "no conversation"}),
		frame(t, EventMessage, MessagePayload{ConversationID: "demo", Text: "no author"}),
		frame(t, EventMessage, MessagePayload{ConversationID: "demo", Author: "a"}),
		frame(t, EventAssistant, MessagePayload{ConversationID: "demo"}),
		frame(t, EventJoin, JoinPayload{}),
		frame(t, "shout", MessagePayload{ConversationID: "demo", Author: "a", Text: "x"}),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { r.HandleFrame(ctx, p, in) })
	}

	assert.Len(t, p.received(), 1)
	assert.Empty(t, r.History("demo"))
}

func TestHistoryNeverExceedsCap(t *testing.T) {
	r := newRelay(5)
	ctx := context.Background()
	p := newPeer("p")

	for i := 0; i < 20; i++ {
		r.HandleFrame(ctx, p, frame(t, EventMessage, MessagePayload{ConversationID: "demo", Author: "a", Text: "x", TS: int64(i + 1)}))
		assert.LessOrEqual(t, len(r.History("demo")), 5)
	}
	assert.Equal(t, int64(16), r.History("demo")[0].TS)
}

func TestJoinAnotherRoomLeavesPrevious(t *testing.T) {
	r := newRelay(10)
	ctx := context.Background()
	p, other := newPeer("p"), newPeer("other")

	r.HandleFrame(ctx, p, frame(t, EventJoin, JoinPayload{ConversationID: "one"}))
	r.HandleFrame(ctx, p, frame(t, EventJoin, JoinPayload{ConversationID: "two"}))
	r.HandleFrame(ctx, other, frame(t, EventMessage, MessagePayload{ConversationID: "one", Author: "o", Text: "x", TS: 1}))

	assert.Empty(t, p.messages(t, EventMessage))
	assert.Equal(t, 0, r.Rooms().Size("one"))
	assert.Equal(t, 1, r.Rooms().Size("two"))

	r.Leave(p)
	assert.Equal(t, 0, r.Rooms().Size("two"))
}

func TestSlowPeerDoesNotBlockRoom(t *testing.T) {
	r := newRelay(10)
	ctx := context.Background()
	slow, fast := newPeer("slow"), newPeer("fast")

	r.HandleFrame(ctx, slow, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))
	r.HandleFrame(ctx, fast, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	r.HandleFrame(ctx, fast, frame(t, EventMessage, MessagePayload{ConversationID: "demo", Author: "f", Text: "x", TS: 1}))

	assert.Len(t, fast.messages(t, EventMessage), 1)
	assert.Len(t, r.History("demo"), 1)
}

type fakeBus struct {
	mu        sync.Mutex
	published []Event
	err       error
}

func (b *fakeBus) Publish(subject string, data any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	evt := data.(Event)
	b.published = append(b.published, evt)
	return nil
}

func TestBus_PublishesInsteadOfDeliveringLocally(t *testing.T) {
	bus := &fakeBus{}
	r := newRelay(10, WithBus(bus))
	ctx := context.Background()
	p := newPeer("p")
	r.HandleFrame(ctx, p, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))

	r.HandleFrame(ctx, p, frame(t, EventMessage, MessagePayload{ConversationID: "demo", Author: "a", Text: "x", TS: 1}))

	require.Len(t, bus.published, 1)
	assert.Empty(t, r.History("demo"))
	assert.Empty(t, p.messages(t, EventMessage))

	data, err := json.Marshal(bus.published[0])
	require.NoError(t, err)
	r.HandleBusEvent(SubjectEvents, data)

	assert.Len(t, r.History("demo"), 1)
	assert.Len(t, p.messages(t, EventMessage), 1)
}

func TestBus_FailureFallsBackToLocalDelivery(t *testing.T) {
	r := newRelay(10, WithBus(&fakeBus{err: errors.New("nats down")}))
	ctx := context.Background()
	p := newPeer("p")
	r.HandleFrame(ctx, p, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))

	r.HandleFrame(ctx, p, frame(t, EventMessage, MessagePayload{ConversationID: "demo", Author: "a", Text: "x", TS: 1}))

	assert.Len(t, p.messages(t, EventMessage), 1)
}

func TestHandleBusEvent_DropsGarbage(t *testing.T) {
	r := newRelay(10)
	r.HandleBusEvent(SubjectEvents, []byte(`{{`))
	r.HandleBusEvent(SubjectEvents, []byte(`{"kind":"join","conversation_id":"demo"}`))
	assert.Empty(t, r.History("demo"))
}

type fakeArchive struct {
	mu       sync.Mutex
	appended map[string][]chat.Message
	recent   []chat.Message
}

func (a *fakeArchive) AppendMessage(_ context.Context, convID string, msg chat.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.appended == nil {
		a.appended = make(map[string][]chat.Message)
	}
	a.appended[convID] = append(a.appended[convID], msg)
	return nil
}

func (a *fakeArchive) RecentMessages(_ context.Context, _ string, limit int) ([]chat.Message, error) {
	return chat.Tail(a.recent, limit), nil
}

func TestArchive_WarmsEmptyHistoryAndRecordsMessages(t *testing.T) {
	archive := &fakeArchive{recent: []chat.Message{
		{Author: "old", Role: chat.RoleUser, Text: "from yesterday", TS: 1},
	}}
	r := newRelay(10, WithArchive(archive))
	ctx := context.Background()
	p := newPeer("p")

	r.HandleFrame(ctx, p, frame(t, EventJoin, JoinPayload{ConversationID: "demo"}))
	hist := p.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, "from yesterday", hist[0].Text)

	r.HandleFrame(ctx, p, frame(t, EventMessage, MessagePayload{ConversationID: "demo", Author: "a", Text: "today", TS: 2}))
	assert.Len(t, archive.appended["demo"], 1)
	assert.Len(t, r.History("demo"), 2)
}
