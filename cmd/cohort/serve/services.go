package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/cohort/api"
	"github.com/papercomputeco/cohort/api/mcp"
	"github.com/papercomputeco/cohort/pkg/auth"
	"github.com/papercomputeco/cohort/pkg/config"
	"github.com/papercomputeco/cohort/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/cohort/pkg/embeddings/utils"
	"github.com/papercomputeco/cohort/pkg/eventstream"
	"github.com/papercomputeco/cohort/pkg/eventstream/kafka"
	"github.com/papercomputeco/cohort/pkg/eventstream/nop"
	"github.com/papercomputeco/cohort/pkg/llm"
	providerutils "github.com/papercomputeco/cohort/pkg/llm/provider/utils"
	"github.com/papercomputeco/cohort/pkg/responder"
	"github.com/papercomputeco/cohort/pkg/retrieval"
	"github.com/papercomputeco/cohort/pkg/session"
	"github.com/papercomputeco/cohort/pkg/storage"
	"github.com/papercomputeco/cohort/pkg/storage/inmemory"
	"github.com/papercomputeco/cohort/pkg/storage/postgres"
	"github.com/papercomputeco/cohort/pkg/storage/redis"
	"github.com/papercomputeco/cohort/pkg/storage/sqlite"
	"github.com/papercomputeco/cohort/pkg/summary"
	"github.com/papercomputeco/cohort/pkg/vector"
	vectorutils "github.com/papercomputeco/cohort/pkg/vector/utils"
)

const defaultVectorFile = "vectors.db"

// services is everything serve wires together. Close releases them in
// reverse construction order.
type services struct {
	registry *session.Registry
	sessions *session.Manager
	server   *api.Server

	closers []func() error
}

func (s *services) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(ctx context.Context, cfg *config.Config, configDir string, logger *slog.Logger) (_ *services, err error) {
	s := &services{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	maxTurn, err := config.ParseDuration(cfg.Gateway.MaxTurnDuration, api.DefaultMaxTurnDuration)
	if err != nil {
		return nil, fmt.Errorf("gateway.max_turn_duration: %w", err)
	}
	retention, err := config.ParseDuration(cfg.Session.Retention, session.DefaultRetention)
	if err != nil {
		return nil, fmt.Errorf("session.retention: %w", err)
	}
	sweepInterval, err := config.ParseDuration(cfg.Session.SweepInterval, session.DefaultSweepInterval)
	if err != nil {
		return nil, fmt.Errorf("session.sweep_interval: %w", err)
	}

	store, err := newStorageDriver(ctx, cfg.Storage, configDir, logger)
	if err != nil {
		return nil, err
	}
	s.onClose(store.Close)

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.LLM.APIKey,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	s.onClose(embedder.Close)

	vectors, err := newVectorDriver(ctx, cfg, configDir, logger)
	if err != nil {
		return nil, err
	}
	s.onClose(vectors.Close)

	searcher := retrieval.NewSearcher(embedder, vectors, logger)

	completer, err := providerutils.NewCompleter(&providerutils.NewCompleterOpts{
		ProviderType: cfg.LLM.Provider,
		TargetURL:    cfg.LLM.Target,
		Model:        cfg.LLM.Model,
		APIKey:       cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completer: %w", err)
	}

	resp, err := responder.New(responder.Config{
		Searcher:  searcher,
		Completer: completer,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	s.onClose(publisher.Close)

	summaries, err := newSummaryStore(ctx, cfg.Summary, store, logger)
	if err != nil {
		return nil, err
	}
	if rs, ok := summaries.(*redis.SummaryStore); ok {
		s.onClose(rs.Close)
	}

	managerConfig := session.ManagerConfig{
		Store:     store,
		Responder: resp,
		Publisher: publisher,
		Logger:    logger,
	}

	if cfg.Summary.Enabled {
		worker, err := newSummaryWorker(store, summaries, completer, logger)
		if err != nil {
			return nil, err
		}
		// drain before the stores close
		s.onClose(func() error { worker.Close(); return nil })

		managerConfig.Summaries = worker
		managerConfig.SummaryEvery = cfg.Summary.EveryTurns
	}

	s.sessions, err = session.NewManager(managerConfig)
	if err != nil {
		return nil, err
	}

	s.registry = session.NewRegistry(session.RegistryConfig{
		Retention:     retention,
		SweepInterval: sweepInterval,
		Logger:        logger,
	})
	s.onClose(func() error { s.registry.Stop(); return nil })

	mcpConfig := mcp.Config{
		Searcher: searcher,
		Logger:   logger,
	}
	// the history tool has no principal to check thread ownership against
	if cfg.Auth.JWTSecret == "" {
		mcpConfig.History = s.sessions
	}
	mcpServer, err := mcp.NewServer(mcpConfig)
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	var verifier auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}

	s.server, err = api.NewServer(api.Config{
		ListenAddr:      cfg.Gateway.Listen,
		MaxTurnDuration: maxTurn,
		Registry:        s.registry,
		Sessions:        s.sessions,
		Summaries:       summaries,
		Searcher:        searcher,
		Verifier:        verifier,
		MCPHandler:      mcpServer.Handler(),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func newStorageDriver(ctx context.Context, c config.StorageConfig, configDir string, logger *slog.Logger) (storage.Driver, error) {
	switch c.Provider {
	case "memory":
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case "sqlite":
		path, err := dataPath(configDir, c.SQLitePath)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
		}
		logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case "postgres":
		if c.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for postgres storage")
		}
		driver, err := postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storage: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", c.Provider)
	}
}

func newVectorDriver(ctx context.Context, cfg *config.Config, configDir string, logger *slog.Logger) (vector.Driver, error) {
	target := cfg.VectorStore.Target
	if cfg.VectorStore.Provider == "sqlite" {
		if target == "" {
			target = defaultVectorFile
		}
		var err error
		if target, err = dataPath(configDir, target); err != nil {
			return nil, err
		}
	}

	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType:   cfg.VectorStore.Provider,
		TargetURL:      target,
		CollectionName: cfg.VectorStore.Collection,
		Dimensions:     cfg.Embedding.Dimensions,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	logger.Info("using vector store", "provider", cfg.VectorStore.Provider, "target", target)
	return driver, nil
}

func newPublisher(c config.EventsConfig, logger *slog.Logger) (eventstream.Publisher, error) {
	switch c.Provider {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{Brokers: c.Brokers, Topic: c.Topic}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		logger.Info("publishing turn events to kafka", "topic", c.Topic, "brokers", strings.Join(c.Brokers, ","))
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.Provider)
	}
}

func newSummaryStore(ctx context.Context, c config.SummaryConfig, store storage.SummaryStore, logger *slog.Logger) (storage.SummaryStore, error) {
	switch c.Store {
	case "":
		return store, nil
	case "redis":
		rs, err := redis.NewSummaryStore(ctx, c.RedisURL, 0)
		if err != nil {
			return nil, err
		}
		logger.Info("storing summaries in redis")
		return rs, nil
	default:
		return nil, fmt.Errorf("unsupported summary store: %s", c.Store)
	}
}

func newSummaryWorker(store storage.CheckpointStore, summaries storage.SummaryStore, completer llm.Completer, logger *slog.Logger) (*summary.Worker, error) {
	return summary.NewWorker(&summary.Config{
		Checkpoints: store,
		Summaries:   summaries,
		Completer:   completer,
		Logger:      logger,
	})
}

func dataPath(configDir, path string) (string, error) {
	return dotdir.NewManager().DataPath(configDir, path)
}
