// Package ollama implements llm.Completer against Ollama's /api/chat endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/llm/provider"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
)

// Config configures the Ollama completion client.
type Config struct {
	BaseURL string
	Model   string

	// Format is passed through as Ollama's "format" field, e.g. "json".
	Format     string
	HTTPClient *http.Client
}

// Client completes prompts with Ollama's /api/chat.
type Client struct {
	baseURL    string
	model      string
	format     string
	httpClient *http.Client
}

// New creates a Client, applying defaults for empty fields.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		format:     cfg.Format,
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.httpClient == nil {
		c.httpClient = provider.NewHTTPClient()
	}
	return c
}

// Complete sends prompt and streams deltas to onFragment when set.
func (c *Client) Complete(ctx context.Context, prompt string, onFragment llm.FragmentFunc) (*llm.Completion, error) {
	data, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: llm.RoleUser, Content: prompt}},
		Stream:   onFragment != nil,
		Format:   c.format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.StatusError(provider.Ollama, resp)
	}

	if onFragment == nil {
		var out chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if out.Error != "" {
			return nil, fmt.Errorf("%w: %s", provider.ErrUpstream, out.Error)
		}
		return c.completion(&out, out.Message.Content), nil
	}

	var (
		b       strings.Builder
		last    chatResponse
		scanner = bufio.NewScanner(resp.Body)
	)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("%w: %s", provider.ErrUpstream, chunk.Error)
		}

		if chunk.Message.Content != "" {
			b.WriteString(chunk.Message.Content)
			onFragment(chunk.Message.Content)
		}
		last = chunk
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	return c.completion(&last, b.String()), nil
}

func (c *Client) completion(out *chatResponse, text string) *llm.Completion {
	completion := &llm.Completion{
		Model:      out.Model,
		StopReason: out.DoneReason,
		Content:    text,
	}
	if completion.Model == "" {
		completion.Model = c.model
	}
	if c.format == "json" {
		var structured map[string]any
		if json.Unmarshal([]byte(text), &structured) == nil {
			completion.Content = structured
		}
	}
	if out.PromptEvalCount > 0 || out.EvalCount > 0 {
		completion.Usage = &llm.Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		}
	}
	return completion
}

var _ llm.Completer = (*Client)(nil)
