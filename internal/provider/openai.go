package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

// DefaultOpenAIModel is used when an openai registration names no model.
const DefaultOpenAIModel = "gpt-4o-mini"

type openAIProvider struct {
	llm    *openai.LLM
	model  string
	system string
}

// newOpenAI targets api.openai.com, or any OpenAI-compatible server when an
// endpoint such as "http://localhost:11434/v1" is configured.
func newOpenAI(cfg Config, httpClient *http.Client) (*openAIProvider, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
		openai.WithHTTPClient(httpClient),
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"); endpoint != "" {
		opts = append(opts, openai.WithBaseURL(endpoint))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return &openAIProvider{llm: llm, model: model, system: cfg.systemPrompt()}, nil
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (Reply, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, p.system),
	}
	for _, t := range turns(req) {
		role := schema.ChatMessageTypeHuman
		if t.Role == chat.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, t.Content))
	}

	resp, err := p.llm.GenerateContent(ctx, messages)
	if err != nil {
		return Reply{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, errors.New("openai: no response choices")
	}

	return Reply{
		Text:    strings.TrimSpace(resp.Choices[0].Content),
		ModelID: p.model,
	}, nil
}
