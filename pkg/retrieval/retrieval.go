// Package retrieval answers "search(query) -> ranked matches" over the
// reference records in the vector store.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/cohort/pkg/embeddings"
	"github.com/papercomputeco/cohort/pkg/vector"
)

// DefaultTopK is used when Search is given a non-positive topK.
const DefaultTopK = 5

// Searcher embeds a query and runs it against a vector driver.
type Searcher struct {
	embedder embeddings.Embedder
	driver   vector.Driver
	logger   *slog.Logger
}

// NewSearcher creates a Searcher over embedder and driver.
func NewSearcher(embedder embeddings.Embedder, driver vector.Driver, logger *slog.Logger) *Searcher {
	return &Searcher{
		embedder: embedder,
		driver:   driver,
		logger:   logger,
	}
}

// Search returns up to topK matches for query that satisfy filter, best
// first. A non-positive topK means DefaultTopK.
func (s *Searcher) Search(ctx context.Context, query string, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	s.logger.Debug("search request", "query", query, "top_k", topK, "filter", filter.Value)

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.driver.Query(ctx, queryEmbedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	return results, nil
}

// Add embeds each document's Content when it carries no embedding and
// stores the batch.
func (s *Searcher) Add(ctx context.Context, docs []vector.Document) error {
	for i := range docs {
		if len(docs[i].Embedding) > 0 {
			continue
		}
		emb, err := s.embedder.Embed(ctx, docs[i].Content)
		if err != nil {
			return fmt.Errorf("embedding document %s: %w", docs[i].ID, err)
		}
		docs[i].Embedding = emb
	}
	return s.driver.Add(ctx, docs)
}
