// Package openai implements llm.Completer against the OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/llm/provider"
	"github.com/papercomputeco/cohort/pkg/sse"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o-mini"

	streamDone = "[DONE]"
)

// Config configures the OpenAI completion client.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string

	// JSONMode requests a JSON object reply, surfaced as structured content.
	JSONMode   bool
	HTTPClient *http.Client
}

// Client completes prompts with the OpenAI chat completions API.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	jsonMode   bool
	httpClient *http.Client
}

// New creates a Client, applying defaults for empty fields.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		jsonMode:   cfg.JSONMode,
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.apiKey == "" {
		c.apiKey = provider.APIKeyFromEnv(provider.OpenAI)
	}
	if c.httpClient == nil {
		c.httpClient = provider.NewHTTPClient()
	}
	return c
}

// Complete sends prompt as a single user message and streams deltas to
// onFragment when set.
func (c *Client) Complete(ctx context.Context, prompt string, onFragment llm.FragmentFunc) (*llm.Completion, error) {
	body := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: llm.RoleUser, Content: prompt}},
		Stream:   onFragment != nil,
	}
	if c.jsonMode {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.StatusError(provider.OpenAI, resp)
	}

	if onFragment != nil {
		return c.readStream(resp, onFragment)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, provider.ErrEmptyCompletion
	}

	completion := &llm.Completion{
		Model:      out.Model,
		StopReason: out.Choices[0].FinishReason,
		Content:    out.Choices[0].Message.Content,
	}

	if s, ok := completion.Content.(string); ok && c.jsonMode {
		var structured map[string]any
		if json.Unmarshal([]byte(s), &structured) == nil {
			completion.Content = structured
		}
	}

	if out.Usage != nil {
		completion.Usage = &llm.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return completion, nil
}

func (c *Client) readStream(resp *http.Response, onFragment llm.FragmentFunc) (*llm.Completion, error) {
	var b strings.Builder
	completion := &llm.Completion{Model: c.model}
	reader := sse.NewReader(resp.Body)

	for {
		ev, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil || ev.Data == streamDone {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("%w: %s", provider.ErrUpstream, chunk.Error.Message)
		}
		if chunk.Model != "" {
			completion.Model = chunk.Model
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				b.WriteString(choice.Delta.Content)
				onFragment(choice.Delta.Content)
			}
			if choice.FinishReason != nil {
				completion.StopReason = *choice.FinishReason
			}
		}
	}

	completion.Content = b.String()
	return completion, nil
}

var _ llm.Completer = (*Client)(nil)
