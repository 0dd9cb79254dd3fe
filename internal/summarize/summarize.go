// Package summarize condenses the tail of a conversation into a few bullets.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

const (
	// DefaultModel is used when SUM_MODEL is unset.
	DefaultModel = "gpt-4o-mini"
	// window is how many trailing messages are summarized.
	window = 12
)

const promptTemplate = "Summarize the chat below into 5 short bullets. Keep only facts/decisions.\n\n%s"

// Generator is the subset of an LLM client the summarizer needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type Summarizer struct {
	llm    Generator
	logger *slog.Logger
}

func New(llm Generator, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{llm: llm, logger: logger.With("component", "summarizer")}
}

// NewOpenAI builds a summarizer on the operator's OpenAI key.
func NewOpenAI(apiKey, model string, httpClient *http.Client, logger *slog.Logger) (*Summarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	if model == "" {
		model = DefaultModel
	}
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return New(llm, logger), nil
}

// Prompt renders the summarization prompt for msgs.
func Prompt(msgs []chat.Message) string {
	tail := chat.Tail(msgs, window)
	lines := make([]string, len(tail))
	for i, m := range tail {
		lines[i] = m.Author + ": " + m.Text
	}
	return fmt.Sprintf(promptTemplate, strings.Join(lines, "\n"))
}

// Summarize returns the summary, or "" if the model call fails.
func (s *Summarizer) Summarize(ctx context.Context, msgs []chat.Message) string {
	if len(msgs) == 0 {
		return ""
	}

	resp, err := s.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, Prompt(msgs)),
	})
	if err != nil {
		s.logger.Warn("summarize failed", "error", err)
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Content)
}
