package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/chathub/internal/provider"
)

// ProviderSeed is a provider registration preloaded at startup.
type ProviderSeed struct {
	UserID   string          `yaml:"userId"`
	Provider provider.Kind   `yaml:"provider"`
	Config   provider.Config `yaml:"config"`
}

type providersFile struct {
	Providers []ProviderSeed `yaml:"providers"`
}

// LoadProviderSeeds reads a YAML file of the form
//
//	providers:
//	  - userId: alice
//	    provider: openai
//	    config:
//	      apiKey: sk-...
//	      model: gpt-4o-mini
//
// Entries are not validated here; registration does that.
func LoadProviderSeeds(path string) ([]ProviderSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var f providersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	for i := range f.Providers {
		f.Providers[i].Config.APIKey = os.ExpandEnv(f.Providers[i].Config.APIKey)
	}
	return f.Providers, nil
}
