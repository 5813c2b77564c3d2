// Package chroma implements vector.Driver over Chroma's v2 REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/cohort/pkg/vector"
)

const (
	DefaultCollectionName = "cohort_records"

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"
)

// Driver implements vector.Driver using Chroma.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Config configures the Chroma driver.
type Config struct {
	// URL is the Chroma server URL, e.g. "http://localhost:8000".
	URL string

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	// MaxRetries bounds connection attempts while Chroma starts up.
	// Defaults to 1 (no retry).
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	HTTPClient *http.Client
}

// NewDriver connects to Chroma, creating the collection when missing.
// Connection failures are retried with exponential backoff.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	d := &Driver{
		baseURL:        strings.TrimRight(c.URL, "/"),
		collectionName: c.CollectionName,
		httpClient:     c.HTTPClient,
		logger:         logger,
	}
	if d.collectionName == "" {
		d.collectionName = DefaultCollectionName
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	attempts := max(c.MaxRetries, 1)
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}

	var (
		id  string
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		id, err = d.getOrCreateCollection(context.Background())
		if err == nil {
			break
		}
		if attempt == attempts {
			return nil, fmt.Errorf("%w: collection %q after %d attempts: %v", vector.ErrConnection, d.collectionName, attempts, err)
		}

		logger.Warn("chroma not ready, retrying", "attempt", attempt, "delay", delay, "error", err)
		time.Sleep(delay)
		delay = min(delay*2, maxDelay)
	}
	d.collectionID = id

	logger.Info("connected to chroma",
		"url", d.baseURL,
		"collection", d.collectionName,
		"collection_id", id,
	)

	return d, nil
}

func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var col collection

	status, err := d.do(ctx, http.MethodGet, collectionsPath+"/"+d.collectionName, nil, &col)
	if err == nil {
		return col.ID, nil
	}
	if status != http.StatusNotFound {
		return "", err
	}

	if _, err := d.do(ctx, http.MethodPost, collectionsPath, map[string]string{"name": d.collectionName}, &col); err != nil {
		return "", err
	}
	return col.ID, nil
}

// do sends a JSON request and decodes a 2xx JSON answer into out.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("chroma %s %s: status %d: %s", method, path, resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (d *Driver) collectionPath(op string) string {
	return collectionsPath + "/" + d.collectionID + "/" + op
}

// Add upserts docs. Chroma metadata values must be scalars, so string lists
// are stored comma separated.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := addRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
		Documents:  make([]string, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = flattenMetadata(doc.Metadata)
		req.Documents[i] = doc.Content
	}

	if _, err := d.do(ctx, http.MethodPost, d.collectionPath("upsert"), req, nil); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))
	return nil
}

// Query returns the topK nearest documents that match filter.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	req := queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "documents", "distances"},
	}
	if !filter.IsZero() {
		req.Where = map[string]any{filter.Field: map[string]any{"$eq": filter.Value}}
	}

	var resp queryResponse
	if _, err := d.do(ctx, http.MethodPost, d.collectionPath("query"), req, &resp); err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}

	// one query embedding, so one result group
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]vector.QueryResult, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		r := vector.QueryResult{Document: vector.Document{ID: id}}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Content = resp.Documents[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Score = 1.0 / (1.0 + resp.Distances[0][i])
		}
		results = append(results, r)
	}

	d.logger.Debug("queried chroma", "results", len(results), "filter", filter.Value)
	return results, nil
}

// Get returns the stored documents with ids.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var resp getResponse
	req := getRequest{IDs: ids, Include: []string{"metadatas", "documents", "embeddings"}}
	if _, err := d.do(ctx, http.MethodPost, d.collectionPath("get"), req, &resp); err != nil {
		return nil, fmt.Errorf("getting documents: %w", err)
	}

	docs := make([]vector.Document, len(resp.IDs))
	for i, id := range resp.IDs {
		docs[i].ID = id
		if i < len(resp.Metadatas) {
			docs[i].Metadata = resp.Metadatas[i]
		}
		if i < len(resp.Documents) {
			docs[i].Content = resp.Documents[i]
		}
		if i < len(resp.Embeddings) {
			docs[i].Embedding = resp.Embeddings[i]
		}
	}
	return docs, nil
}

// Delete removes the documents with ids.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := d.do(ctx, http.MethodPost, d.collectionPath("delete"), deleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))
	return nil
}

// Close is a no-op; the HTTP client needs no cleanup.
func (d *Driver) Close() error {
	return nil
}

func flattenMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch v.(type) {
		case []string, []any:
			out[k] = strings.Join(vector.StringList(v), ", ")
		default:
			out[k] = v
		}
	}
	return out
}

var _ vector.Driver = (*Driver)(nil)
