// Package byom ("bring your own model") keeps per-user provider
// registrations and invokes them on a conversation.
package byom

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/chathub/internal/provider"
)

var (
	// ErrValidation marks bad input; the HTTP layer maps it to 400.
	ErrValidation = errors.New("invalid request")
	// ErrNotRegistered is returned when invoking for a user without a provider.
	ErrNotRegistered = errors.New("no provider registered")
)

// Registration is a user's provider as stored in memory. API keys are held
// in plain text for the life of the process.
type Registration struct {
	UserID       string          `json:"userId"`
	Provider     provider.Kind   `json:"provider"`
	Config       provider.Config `json:"config"`
	RegisteredAt time.Time       `json:"registeredAt"`
}

// Public returns the registration with the API key removed.
func (r Registration) Public() PublicRegistration {
	return PublicRegistration{
		UserID:       r.UserID,
		Provider:     r.Provider,
		Model:        r.Config.Model,
		Endpoint:     r.Config.Endpoint,
		SystemPrompt: r.Config.SystemPrompt,
		HasAPIKey:    r.Config.APIKey != "",
		RegisteredAt: r.RegisteredAt,
	}
}

// PublicRegistration is what GET /providers/{userId} returns.
type PublicRegistration struct {
	UserID       string        `json:"userId"`
	Provider     provider.Kind `json:"provider"`
	Model        string        `json:"model,omitempty"`
	Endpoint     string        `json:"endpoint,omitempty"`
	SystemPrompt string        `json:"systemPrompt,omitempty"`
	HasAPIKey    bool          `json:"hasApiKey"`
	RegisteredAt time.Time     `json:"registeredAt"`
}

type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]Registration)}
}

// Validate checks that a registration carries every field its provider
// needs.
func Validate(userID string, kind provider.Kind, cfg provider.Config) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if kind == "" {
		return fmt.Errorf("%w: provider is required", ErrValidation)
	}
	if !provider.Known(kind) {
		return fmt.Errorf("%w: unsupported provider %q", ErrValidation, kind)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: config.apiKey is required", ErrValidation)
	}
	if kind == provider.KindHTTP && strings.TrimSpace(cfg.Endpoint) == "" {
		return fmt.Errorf("%w: config.endpoint is required for http providers", ErrValidation)
	}
	return nil
}

// Register validates and stores a provider for userID, replacing any
// earlier registration.
func (r *Registry) Register(userID string, kind provider.Kind, cfg provider.Config) (Registration, error) {
	if err := Validate(userID, kind, cfg); err != nil {
		return Registration{}, err
	}

	reg := Registration{
		UserID:       strings.TrimSpace(userID),
		Provider:     kind,
		Config:       cfg,
		RegisteredAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.byUser[reg.UserID] = reg
	r.mu.Unlock()
	return reg, nil
}

func (r *Registry) Lookup(userID string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byUser[strings.TrimSpace(userID)]
	return reg, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
