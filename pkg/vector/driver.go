// Package vector defines the vector store boundary used for reference
// retrieval and its drivers.
package vector

import (
	"context"
	"fmt"
	"strings"
)

// MetadataKind is the metadata field that tags a reference record as
// "company" or "application".
const MetadataKind = "type"

// Document is a stored reference record with its embedding.
type Document struct {
	ID string

	// Content is the text the embedding was computed from.
	Content string

	// Metadata holds the record's fields. Values are strings, numbers,
	// booleans or string lists.
	Metadata map[string]any

	Embedding []float32
}

// QueryResult is a search hit.
type QueryResult struct {
	Document

	// Score is a similarity in [0, 1]; higher is more similar.
	Score float32
}

// Filter restricts a query to documents whose metadata Field equals Value.
// The zero Filter matches everything.
type Filter struct {
	Field string
	Value string
}

// KindFilter filters on MetadataKind.
func KindFilter(kind string) Filter {
	return Filter{Field: MetadataKind, Value: kind}
}

// IsZero reports whether f matches every document.
func (f Filter) IsZero() bool {
	return f.Field == ""
}

// Match reports whether meta satisfies f. Drivers without native filtering
// apply it after fetching.
func (f Filter) Match(meta map[string]any) bool {
	if f.IsZero() {
		return true
	}
	v, ok := meta[f.Field]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Driver stores and searches embeddings.
type Driver interface {
	// Add stores docs, replacing any document with the same ID.
	Add(ctx context.Context, docs []Document) error

	// Query returns up to topK documents most similar to embedding that
	// satisfy filter, best first.
	Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]QueryResult, error)

	// Get retrieves documents by ID. Missing IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	Delete(ctx context.Context, ids []string) error

	Close() error
}

// StringList flattens a metadata value into a list of strings. Comma
// separated strings are split.
func StringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}
