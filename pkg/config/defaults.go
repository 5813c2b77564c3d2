package config

const (
	defaultStorageProvider = "sqlite"
	defaultSQLiteFile      = "cohort.db"

	defaultGatewayListen   = ":8080"
	defaultMaxTurnDuration = "2m"

	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"
	defaultLLMModel    = "gemma3:latest"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "cohort_records"

	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingTarget     = "http://localhost:11434"

	defaultRetention     = "24h"
	defaultSweepInterval = "1h"

	defaultSummaryEveryTurns = 3

	defaultEventsProvider = "none"
	defaultEventsTopic    = "cohort.turns"

	defaultClientGatewayTarget = "http://localhost:8080"
)

// NewDefaultConfig returns a Config with defaults for every field. This is the
// single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			SQLitePath: defaultSQLiteFile,
		},
		Gateway: GatewayConfig{
			Listen:          defaultGatewayListen,
			MaxTurnDuration: defaultMaxTurnDuration,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Target:   defaultLLMTarget,
			Model:    defaultLLMModel,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultLLMProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Session: SessionConfig{
			Retention:     defaultRetention,
			SweepInterval: defaultSweepInterval,
		},
		Summary: SummaryConfig{
			Enabled:    true,
			EveryTurns: defaultSummaryEveryTurns,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Client: ClientConfig{
			GatewayTarget: defaultClientGatewayTarget,
		},
	}
}
