package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

const (
	anthropicURL          = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicMaxTokens    = 1024
)

type anthropicProvider struct {
	apiKey string
	model  string
	system string
	url    string
	client *http.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAnthropic(cfg Config, httpClient *http.Client) *anthropicProvider {
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	url := strings.TrimSpace(cfg.Endpoint)
	if url == "" {
		url = anthropicURL
	}
	return &anthropicProvider{
		apiKey: cfg.APIKey,
		model:  model,
		system: cfg.systemPrompt(),
		url:    url,
		client: httpClient,
	}
}

// anthropicMessages merges consecutive same-role turns and folds leading
// assistant turns into the first user turn; the Messages API requires
// alternating roles starting with user.
func anthropicMessages(ts []turn) []anthropicMessage {
	var out []anthropicMessage
	for _, t := range ts {
		role := string(chat.RoleUser)
		content := t.Content
		if t.Role == chat.RoleAssistant {
			if len(out) == 0 {
				content = chat.AssistantAuthor + ": " + content
			} else {
				role = string(chat.RoleAssistant)
			}
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + content
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: content})
	}
	return out
}

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (Reply, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		MaxTokens: anthropicMaxTokens,
		System:    p.system,
		Messages:  anthropicMessages(turns(req)),
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return Reply{}, &StatusError{Provider: KindAnthropic, StatusCode: resp.StatusCode, Body: errResp.Error.Type + ": " + errResp.Error.Message}
		}
		return Reply{}, &StatusError{Provider: KindAnthropic, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Reply{}, fmt.Errorf("unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, c := range apiResp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return Reply{}, fmt.Errorf("empty response content")
	}

	modelID := apiResp.Model
	if modelID == "" {
		modelID = p.model
	}
	return Reply{Text: strings.TrimSpace(text.String()), ModelID: modelID}, nil
}
