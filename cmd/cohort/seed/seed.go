// Package seedcmder provides the seed command that loads reference records
// into the vector store.
package seedcmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/cohort/pkg/cliui"
	"github.com/papercomputeco/cohort/pkg/config"
	"github.com/papercomputeco/cohort/pkg/dotdir"
	"github.com/papercomputeco/cohort/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/cohort/pkg/embeddings/utils"
	"github.com/papercomputeco/cohort/pkg/logger"
	"github.com/papercomputeco/cohort/pkg/retrieval"
	"github.com/papercomputeco/cohort/pkg/vector"
	vectorutils "github.com/papercomputeco/cohort/pkg/vector/utils"
)

const defaultBatchSize = 32

const seedLongDesc string = `Seed reference records into the vector store.

The input is a JSON lines file. Each line holds one record:
  {"id": "acme", "type": "company", "text": "...", "metadata": {"name": "Acme", "batch": "W24"}}

type is "company" or "application". The text is embedded with the
configured embedding provider and stored with its metadata. Records with an
id that already exists are replaced.

Examples:
  cohort seed records.jsonl
  cohort seed records.jsonl --vector-store-provider qdrant --vector-store-target localhost:6334`

const seedShortDesc string = "Seed reference records"

type seedCommander struct {
	vectorProvider    string
	vectorTarget      string
	embeddingProvider string
	embeddingTarget   string
	embeddingModel    string
	embeddingDims     uint
	batchSize         int
	debug             bool

	configDir string
	viper     *viper.Viper
	out       io.Writer
}

var seedFlags = []string{
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed <file.jsonl>",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, seedFlags)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.out = cmd.OutOrStdout()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, args[0])
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", defaultBatchSize, "Records embedded and stored per batch")

	return cmd
}

func (c *seedCommander) run(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	docs, err := readRecords(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no records in %s", path)
	}

	cfg := config.FromViper(c.viper)
	log := logger.New(logger.WithDebug(c.debug), logger.WithWriter(os.Stderr))

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.LLM.APIKey,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	target := cfg.VectorStore.Target
	if cfg.VectorStore.Provider == "sqlite" {
		if target == "" {
			target = "vectors.db"
		}
		if target, err = dotdir.NewManager().DataPath(c.configDir, target); err != nil {
			return err
		}
	}

	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType:   cfg.VectorStore.Provider,
		TargetURL:      target,
		CollectionName: cfg.VectorStore.Collection,
		Dimensions:     cfg.Embedding.Dimensions,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	defer driver.Close()

	if err := seed(ctx, c.out, embedder, driver, docs, c.batchSize); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Seeded %s records into %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(len(docs))),
		cliui.DimStyle.Render(cfg.VectorStore.Provider+" "+target),
	)
	return nil
}

// seed embeds and stores docs in batches of batchSize.
func seed(ctx context.Context, w io.Writer, embedder embeddings.Embedder, driver vector.Driver, docs []vector.Document, batchSize int) error {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	searcher := retrieval.NewSearcher(embedder, driver, logger.Nop())
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		batch := docs[start:end]

		msg := fmt.Sprintf("Embedding records %d-%d of %d", start+1, end, len(docs))
		if err := cliui.Step(w, msg, func() error {
			return searcher.Add(ctx, batch)
		}); err != nil {
			return err
		}
	}
	return nil
}
