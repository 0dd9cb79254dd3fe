package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/chatlog"
	"github.com/MikeSquared-Agency/chathub/internal/provider"
)

type fakeSession struct {
	sent    []string
	asked   []string
	reveals int
	draft   bool
}

func (f *fakeSession) Send(text string) (chat.Message, error) {
	f.sent = append(f.sent, text)
	return chat.Message{Text: text}, nil
}

func (f *fakeSession) Ask(_ context.Context, prompt string) chat.Message {
	f.asked = append(f.asked, prompt)
	f.draft = true
	return chat.Message{Text: "reply", Ephemeral: true}
}

func (f *fakeSession) RevealLatest() (chat.Message, error) {
	if !f.draft {
		return chat.Message{}, chatlog.ErrNotFound
	}
	f.draft = false
	f.reveals++
	return chat.Message{}, nil
}

type fakeRegistrar struct {
	userID string
	kind   provider.Kind
	cfg    provider.Config
	err    error
}

func (f *fakeRegistrar) RegisterProvider(_ context.Context, userID string, kind provider.Kind, cfg provider.Config) error {
	f.userID, f.kind, f.cfg = userID, kind, cfg
	return f.err
}

func TestRepl(t *testing.T) {
	input := strings.Join([]string{
		"hello all",
		"",
		"/show",
		"/ask what did we decide?",
		"/show",
		"/register http sk-1 my-model http://localhost:9000/complete",
		"/bogus",
		"/quit",
		"never sent",
	}, "\n")

	sess := &fakeSession{}
	reg := &fakeRegistrar{}
	var out bytes.Buffer

	if err := repl(context.Background(), strings.NewReader(input), &out, "alice", sess, reg); err != nil {
		t.Fatalf("repl: %v", err)
	}

	if len(sess.sent) != 1 || sess.sent[0] != "hello all" {
		t.Errorf("unexpected sends %v", sess.sent)
	}
	if len(sess.asked) != 1 || sess.asked[0] != "what did we decide?" {
		t.Errorf("unexpected asks %v", sess.asked)
	}
	if sess.reveals != 1 {
		t.Errorf("expected 1 reveal, got %d", sess.reveals)
	}
	if reg.userID != "alice" || reg.kind != provider.KindHTTP {
		t.Errorf("unexpected registration %+v", reg)
	}
	if reg.cfg.Model != "my-model" || reg.cfg.Endpoint != "http://localhost:9000/complete" || reg.cfg.APIKey != "sk-1" {
		t.Errorf("unexpected config %+v", reg.cfg)
	}

	text := out.String()
	for _, want := range []string{"no draft to publish", "draft published", "provider registered", "unknown command /bogus"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, text)
		}
	}
}

func TestRepl_RegisterErrors(t *testing.T) {
	reg := &fakeRegistrar{err: errors.New("config.apiKey is required")}
	var out bytes.Buffer

	input := "/register openai\n/register openai \"\"\n"
	if err := repl(context.Background(), strings.NewReader(input), &out, "alice", &fakeSession{}, reg); err != nil {
		t.Fatalf("repl: %v", err)
	}

	if !strings.Contains(out.String(), "usage: /register") {
		t.Errorf("expected usage hint, got %s", out.String())
	}
	if !strings.Contains(out.String(), "config.apiKey is required") {
		t.Errorf("expected server error, got %s", out.String())
	}
}

func TestPrinter(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out bytes.Buffer
	p := newPrinter(&out, "alice")

	msgs := []chat.Message{
		{Author: "alice", Text: "mine", TS: 1},
		{Author: "bob", Text: "theirs", TS: 2},
		{Author: chat.AssistantAuthor, Text: "draft answer", TS: 3, Ephemeral: true},
	}
	p.print(msgs)
	p.print(msgs)

	msgs = append(msgs, chat.Message{Author: chat.AssistantAuthor, Text: "shared", TS: 4, Meta: &chat.Meta{ModelID: "m1"}})
	p.print(msgs)

	want := "bob: theirs\n" +
		"[draft] assistant: draft answer  (/show to share)\n" +
		"assistant (m1): shared\n"
	if out.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", out.String(), want)
	}
}
