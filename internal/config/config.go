package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	SaaSBaseURL     string
	OpenAIAPIKey    string
	SumModel        string
	LogLevel        string
	LogFile         string
	HistoryCap      int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	StaticDir       string
	ProviderTimeout time.Duration
	ProvidersFile   string
}

func Load() Config {
	return Config{
		Port:            envInt("PORT", 3000),
		SaaSBaseURL:     envStr("SAAS_BASE_URL", ""),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		SumModel:        envStr("SUM_MODEL", "gpt-4o-mini"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFile:         envStr("LOG_FILE", ""),
		HistoryCap:      envInt("HISTORY_CAP", 500),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		StaticDir:       envStr("STATIC_DIR", ""),
		ProviderTimeout: envDuration("PROVIDER_TIMEOUT", 120*time.Second),
		ProvidersFile:   envStr("PROVIDERS_FILE", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
