package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the persistent cohort configuration stored as config.toml in the
// .cohort/ directory.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Gateway     GatewayConfig     `toml:"gateway"`
	LLM         LLMConfig         `toml:"llm"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Session     SessionConfig     `toml:"session"`
	Summary     SummaryConfig     `toml:"summary"`
	Events      EventsConfig      `toml:"events"`
	Auth        AuthConfig        `toml:"auth"`
	Client      ClientConfig      `toml:"client"`
}

// StorageConfig selects the durable checkpoint and summary store.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"` // "memory", "sqlite", "postgres"
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Listen          string `toml:"listen,omitempty"`
	MaxTurnDuration string `toml:"max_turn_duration,omitempty"`
}

// LLMConfig configures the text-completion service.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"` // "openai", "anthropic", "ollama"
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"` // "qdrant", "chroma", "sqlite"
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// SessionConfig controls the in-memory thread registry.
type SessionConfig struct {
	Retention     string `toml:"retention,omitempty"`
	SweepInterval string `toml:"sweep_interval,omitempty"`
}

// SummaryConfig controls background conversation summaries.
type SummaryConfig struct {
	Enabled    bool   `toml:"enabled"`
	EveryTurns uint   `toml:"every_turns,omitempty"`
	Store      string `toml:"store,omitempty"` // "" uses the storage provider, "redis"
	RedisURL   string `toml:"redis_url,omitempty"`
}

// EventsConfig selects where persisted turns are published.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"` // "none", "kafka"
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// AuthConfig holds identity settings. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running gateway.
type ClientConfig struct {
	GatewayTarget string `toml:"gateway_target,omitempty"`
}

// ParseDuration parses s, falling back to def when s is empty.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of supported dotted config keys.
var configKeys = map[string]configKeyInfo{
	"storage.provider":          stringKey(func(c *Config) *string { return &c.Storage.Provider }),
	"storage.sqlite_path":       stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn":      stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"gateway.listen":            stringKey(func(c *Config) *string { return &c.Gateway.Listen }),
	"gateway.max_turn_duration": durationKey("gateway.max_turn_duration", func(c *Config) *string { return &c.Gateway.MaxTurnDuration }),
	"llm.provider":              stringKey(func(c *Config) *string { return &c.LLM.Provider }),
	"llm.target":                stringKey(func(c *Config) *string { return &c.LLM.Target }),
	"llm.model":                 stringKey(func(c *Config) *string { return &c.LLM.Model }),
	"llm.api_key":               stringKey(func(c *Config) *string { return &c.LLM.APIKey }),
	"vector_store.provider":     stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":       stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection":   stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"embedding.provider":        stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":          stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":           stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":      uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"session.retention":         durationKey("session.retention", func(c *Config) *string { return &c.Session.Retention }),
	"session.sweep_interval":    durationKey("session.sweep_interval", func(c *Config) *string { return &c.Session.SweepInterval }),
	"summary.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Summary.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for summary.enabled: %w", err)
			}
			c.Summary.Enabled = b
			return nil
		},
	},
	"summary.every_turns": uintKey("summary.every_turns", func(c *Config) *uint { return &c.Summary.EveryTurns }),
	"summary.store":       stringKey(func(c *Config) *string { return &c.Summary.Store }),
	"summary.redis_url":   stringKey(func(c *Config) *string { return &c.Summary.RedisURL }),
	"events.provider":     stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Events.Brokers = append(c.Events.Brokers, b)
				}
			}
			return nil
		},
	},
	"events.topic":          stringKey(func(c *Config) *string { return &c.Events.Topic }),
	"auth.jwt_secret":       stringKey(func(c *Config) *string { return &c.Auth.JWTSecret }),
	"client.gateway_target": stringKey(func(c *Config) *string { return &c.Client.GatewayTarget }),
}

// orderedKeys mirrors the TOML section layout for listing.
var orderedKeys = []string{
	"storage.provider",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"gateway.listen",
	"gateway.max_turn_duration",
	"llm.provider",
	"llm.target",
	"llm.model",
	"llm.api_key",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"session.retention",
	"session.sweep_interval",
	"summary.enabled",
	"summary.every_turns",
	"summary.store",
	"summary.redis_url",
	"events.provider",
	"events.brokers",
	"events.topic",
	"auth.jwt_secret",
	"client.gateway_target",
}
