// Package servecmder provides the serve command that runs the cohort gateway.
package servecmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/cohort/pkg/config"
	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/utils"
)

type serveCommander struct {
	flags serveFlagValues

	configDir string
	debug     bool
	pretty    bool
	json      bool
	logFile   string

	viper  *viper.Viper
	logger *slog.Logger
}

// serveFlagValues are the flag targets. Resolved values are read back
// through viper so the file and environment apply to unset flags.
type serveFlagValues struct {
	listen            string
	storageProvider   string
	sqlitePath        string
	postgresDSN       string
	maxTurnDuration   string
	llmProvider       string
	llmTarget         string
	llmModel          string
	vectorProvider    string
	vectorTarget      string
	embeddingProvider string
	embeddingTarget   string
	embeddingModel    string
	embeddingDims     uint
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagMaxTurnDuration,
	config.FlagLLMProvider,
	config.FlagLLMTarget,
	config.FlagLLMModel,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
}

const serveLongDesc string = `Run the cohort chat gateway.

The gateway serves the streaming /chat endpoint together with /history,
/summary, /threads and the MCP tools on /mcp. Every setting can come from
config.toml, COHORT_* environment variables or the flags below.

Examples:
  cohort serve
  cohort serve --listen :9090 --storage postgres --postgres-dsn postgres://...
  cohort serve --llm-provider openai --llm-model gpt-4o-mini`

const serveShortDesc string = "Run the cohort gateway"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &f.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &f.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &f.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagMaxTurnDuration, &f.maxTurnDuration)
	config.AddStringFlag(cmd, config.Flags, config.FlagLLMProvider, &f.llmProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagLLMTarget, &f.llmTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagLLMModel, &f.llmModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &f.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &f.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &f.embeddingProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &f.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &f.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &f.embeddingDims)

	cmd.Flags().BoolVar(&cmder.pretty, "pretty", false, "Colorized human readable logs")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "JSON logs")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file (bare names go in the config dir)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	var closeLog func() error
	var err error
	c.logger, closeLog, err = c.buildLogger(os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.FromViper(c.viper)
	svc, err := buildServices(ctx, cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			c.logger.Warn("error during shutdown", "error", err)
		}
	}()

	svc.registry.Start()

	c.logger.Info("starting cohort gateway",
		"version", utils.Version,
		"listen", cfg.Gateway.Listen,
		"storage", cfg.Storage.Provider,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"vector_store", cfg.VectorStore.Provider,
	)

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := svc.server.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return svc.server.Shutdown()
	}
}

// buildLogger returns the terminal logger, paired with a JSON file logger
// when --log-file is set. The returned func closes the file.
func (c *serveCommander) buildLogger(out io.Writer) (*slog.Logger, func() error, error) {
	term := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(c.pretty),
		logger.WithJSON(c.json),
		logger.WithWriter(out),
	)
	if c.logFile == "" {
		return term, func() error { return nil }, nil
	}

	path, err := dataPath(c.configDir, c.logFile)
	if err != nil {
		return nil, nil, err
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(logFile),
	)
	return logger.Multi(term, file), logFile.Close, nil
}
