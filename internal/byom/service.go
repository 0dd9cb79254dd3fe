package byom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/provider"
)

// SnapshotLimit is the number of trailing conversation messages sent to a
// provider.
const SnapshotLimit = 50

// ErrUpstream wraps provider failures; the HTTP layer maps it to 502.
var ErrUpstream = errors.New("provider call failed")

// Factory builds a provider adapter from a registration.
type Factory func(kind provider.Kind, cfg provider.Config) (provider.Provider, error)

type InvokeRequest struct {
	UserID         string         `json:"userId"`
	ConversationID string         `json:"conversationId,omitempty"`
	Prompt         string         `json:"prompt"`
	Conversation   []chat.Message `json:"conversation"`
}

type InvokeResult struct {
	Reply string     `json:"reply"`
	Meta  *chat.Meta `json:"meta,omitempty"`
}

type Service struct {
	registry *Registry
	factory  Factory
	logger   *slog.Logger
}

func NewService(registry *Registry, factory Factory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		factory:  factory,
		logger:   logger.With("component", "byom"),
	}
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Register stores a provider for a user.
func (s *Service) Register(userID string, kind provider.Kind, cfg provider.Config) error {
	reg, err := s.registry.Register(userID, kind, cfg)
	if err != nil {
		return err
	}
	s.logger.Info("provider registered",
		"user_id", reg.UserID,
		"provider", reg.Provider,
		"model", reg.Config.Model)
	return nil
}

// Invoke sends the prompt and the last SnapshotLimit messages of the
// conversation to the user's provider. It is never retried.
func (s *Service) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return InvokeResult{}, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return InvokeResult{}, fmt.Errorf("%w: prompt is required", ErrValidation)
	}

	reg, ok := s.registry.Lookup(req.UserID)
	if !ok {
		return InvokeResult{}, fmt.Errorf("%w: %w for user %s", ErrValidation, ErrNotRegistered, req.UserID)
	}
	if strings.TrimSpace(reg.Config.APIKey) == "" {
		return InvokeResult{}, fmt.Errorf("%w: config.apiKey is required", ErrValidation)
	}

	p, err := s.factory(reg.Provider, reg.Config)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	snapshot := chat.Tail(req.Conversation, SnapshotLimit)
	reply, err := p.Complete(ctx, provider.Request{Prompt: req.Prompt, Conversation: snapshot})
	if err != nil {
		s.logger.Warn("provider call failed",
			"user_id", req.UserID,
			"conversation_id", req.ConversationID,
			"provider", reg.Provider,
			"error", err)
		return InvokeResult{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	s.logger.Info("provider invoked",
		"user_id", req.UserID,
		"conversation_id", req.ConversationID,
		"provider", reg.Provider,
		"model", reply.ModelID,
		"snapshot", len(snapshot))

	res := InvokeResult{Reply: reply.Text}
	if reply.ModelID != "" {
		res.Meta = &chat.Meta{ModelID: reply.ModelID}
	}
	return res, nil
}
