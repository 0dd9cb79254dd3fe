// Package provider adapts user-supplied model credentials to a single
// completion call.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindHTTP      Kind = "http"
	KindAnthropic Kind = "anthropic"
)

// DefaultSystemPrompt is used when a registration carries no system prompt.
const DefaultSystemPrompt = "You are a concise assistant."

// Known reports whether kind names a supported provider.
func Known(kind Kind) bool {
	switch kind {
	case KindOpenAI, KindHTTP, KindAnthropic:
		return true
	}
	return false
}

// Config is the per-user provider configuration.
type Config struct {
	APIKey       string `json:"apiKey,omitempty" yaml:"apiKey"`
	Model        string `json:"model,omitempty" yaml:"model"`
	Endpoint     string `json:"endpoint,omitempty" yaml:"endpoint"`
	SystemPrompt string `json:"systemPrompt,omitempty" yaml:"systemPrompt"`
}

func (c Config) systemPrompt() string {
	if s := strings.TrimSpace(c.SystemPrompt); s != "" {
		return s
	}
	return DefaultSystemPrompt
}

// Request is one model invocation: the user's prompt plus the conversation
// so far.
type Request struct {
	Prompt       string
	Conversation []chat.Message
}

// Reply is the model's answer and the model that produced it.
type Reply struct {
	Text    string
	ModelID string
}

type Provider interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   Kind
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Provider, e.StatusCode, e.Body)
}

// New builds the adapter for kind. httpClient may be nil.
func New(kind Kind, cfg Config, httpClient *http.Client) (Provider, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	switch kind {
	case KindOpenAI:
		return newOpenAI(cfg, httpClient)
	case KindHTTP:
		return newHTTP(cfg, httpClient)
	case KindAnthropic:
		return newAnthropic(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", kind)
	}
}

// turn is one chat turn in provider-neutral form.
type turn struct {
	Role    chat.Role
	Content string
}

// turns renders the conversation followed by the prompt. User messages are
// prefixed with their author so the model can tell participants apart.
func turns(req Request) []turn {
	out := make([]turn, 0, len(req.Conversation)+1)
	for _, m := range req.Conversation {
		if m.Text == "" {
			continue
		}
		if m.Role == chat.RoleAssistant {
			out = append(out, turn{Role: chat.RoleAssistant, Content: m.Text})
			continue
		}
		out = append(out, turn{Role: chat.RoleUser, Content: m.Author + ": " + m.Text})
	}
	if p := strings.TrimSpace(req.Prompt); p != "" {
		out = append(out, turn{Role: chat.RoleUser, Content: p})
	}
	return out
}
