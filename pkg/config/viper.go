package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/cohort/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. COHORT_GATEWAY_LISTEN.
const EnvPrefix = "COHORT"

// InitViper returns a viper instance seeded with NewDefaultConfig(), the
// config.toml found via dotdir resolution, and COHORT_* environment variables.
//
// Precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables
//  3. config.toml values
//  4. Defaults
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	v.SetDefault("gateway.listen", d.Gateway.Listen)
	v.SetDefault("gateway.max_turn_duration", d.Gateway.MaxTurnDuration)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.target", d.LLM.Target)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)

	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	v.SetDefault("session.retention", d.Session.Retention)
	v.SetDefault("session.sweep_interval", d.Session.SweepInterval)

	v.SetDefault("summary.enabled", d.Summary.Enabled)
	v.SetDefault("summary.every_turns", d.Summary.EveryTurns)
	v.SetDefault("summary.store", d.Summary.Store)
	v.SetDefault("summary.redis_url", d.Summary.RedisURL)

	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)

	v.SetDefault("client.gateway_target", d.Client.GatewayTarget)
}

// FromViper reads the fully resolved configuration out of v.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Provider:    v.GetString("storage.provider"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Gateway: GatewayConfig{
			Listen:          v.GetString("gateway.listen"),
			MaxTurnDuration: v.GetString("gateway.max_turn_duration"),
		},
		LLM: LLMConfig{
			Provider: v.GetString("llm.provider"),
			Target:   v.GetString("llm.target"),
			Model:    v.GetString("llm.model"),
			APIKey:   v.GetString("llm.api_key"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			Collection: v.GetString("vector_store.collection"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		Session: SessionConfig{
			Retention:     v.GetString("session.retention"),
			SweepInterval: v.GetString("session.sweep_interval"),
		},
		Summary: SummaryConfig{
			Enabled:    v.GetBool("summary.enabled"),
			EveryTurns: v.GetUint("summary.every_turns"),
			Store:      v.GetString("summary.store"),
			RedisURL:   v.GetString("summary.redis_url"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  nonEmpty(v.GetStringSlice("events.brokers")),
			Topic:    v.GetString("events.topic"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
		},
		Client: ClientConfig{
			GatewayTarget: v.GetString("client.gateway_target"),
		},
	}
}

func nonEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
