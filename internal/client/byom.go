package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/chathub/internal/byom"
	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/provider"
)

// APIError is a non-2xx answer from the BYOM endpoints. Message is the
// server's "error" field, or the status text when there was none.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// BYOM is the HTTP client for provider registration and invocation.
type BYOM struct {
	baseURL    string
	httpClient *http.Client
}

// NewBYOM targets baseURL, for example "http://localhost:3000/api".
func NewBYOM(baseURL string, httpClient *http.Client) *BYOM {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 130 * time.Second}
	}
	return &BYOM{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (b *BYOM) RegisterProvider(ctx context.Context, userID string, kind provider.Kind, cfg provider.Config) error {
	body := map[string]any{"userId": userID, "provider": kind, "config": cfg}
	return b.do(ctx, http.MethodPost, "/register-provider", body, nil)
}

// Invoke asks the user's provider to answer prompt. Only the last
// byom.SnapshotLimit messages of conversation are sent.
func (b *BYOM) Invoke(ctx context.Context, userID, convID, prompt string, conversation []chat.Message) (byom.InvokeResult, error) {
	req := byom.InvokeRequest{
		UserID:         userID,
		ConversationID: convID,
		Prompt:         prompt,
		Conversation:   chat.Tail(conversation, byom.SnapshotLimit),
	}
	var res byom.InvokeResult
	if err := b.do(ctx, http.MethodPost, "/chat", req, &res); err != nil {
		return byom.InvokeResult{}, err
	}
	return res, nil
}

// HasProvider reports whether userID has a registered provider.
func (b *BYOM) HasProvider(ctx context.Context, userID string) (bool, error) {
	var reg byom.PublicRegistration
	err := b.do(ctx, http.MethodGet, "/providers/"+url.PathEscape(userID), nil, &reg)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *BYOM) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
