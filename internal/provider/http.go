package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

// httpProvider posts the prompt to an arbitrary JSON endpoint.
//
// Request:  {"model", "systemPrompt", "prompt", "conversation"}
// Response: {"reply"} or {"text"}, optionally with "modelId".
type httpProvider struct {
	endpoint string
	apiKey   string
	model    string
	system   string
	client   *http.Client
}

type httpRequest struct {
	Model        string         `json:"model,omitempty"`
	SystemPrompt string         `json:"systemPrompt"`
	Prompt       string         `json:"prompt"`
	Conversation []chat.Message `json:"conversation"`
}

type httpResponse struct {
	Reply   string `json:"reply"`
	Text    string `json:"text"`
	ModelID string `json:"modelId"`
}

func newHTTP(cfg Config, httpClient *http.Client) (*httpProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("http provider requires an endpoint")
	}
	return &httpProvider{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		system:   cfg.systemPrompt(),
		client:   httpClient,
	}, nil
}

func (p *httpProvider) Complete(ctx context.Context, req Request) (Reply, error) {
	conv := make([]chat.Message, len(req.Conversation))
	for i, m := range req.Conversation {
		conv[i] = m.Stripped()
	}

	body, err := json.Marshal(httpRequest{
		Model:        p.model,
		SystemPrompt: p.system,
		Prompt:       req.Prompt,
		Conversation: conv,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("http provider call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, &StatusError{Provider: KindHTTP, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out httpResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Reply{}, fmt.Errorf("unmarshal response: %w", err)
	}

	text := out.Reply
	if text == "" {
		text = out.Text
	}
	modelID := out.ModelID
	if modelID == "" {
		modelID = p.model
	}
	return Reply{Text: strings.TrimSpace(text), ModelID: modelID}, nil
}
