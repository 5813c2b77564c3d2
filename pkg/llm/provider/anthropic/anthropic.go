// Package anthropic implements llm.Completer against the Anthropic messages API.
package anthropic

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
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-haiku-4-5-20251001"
	DefaultMaxTokens = 1024

	apiVersion = "2023-06-01"
)

// Config configures the Anthropic completion client.
type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	MaxTokens  int
	HTTPClient *http.Client
}

// Client completes prompts with the Anthropic Messages API.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

// New creates a Client, applying defaults for empty fields.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		maxTokens:  cfg.MaxTokens,
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.apiKey == "" {
		c.apiKey = provider.APIKeyFromEnv(provider.Anthropic)
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.httpClient == nil {
		c.httpClient = provider.NewHTTPClient()
	}
	return c
}

// Complete sends prompt as a single user message and streams deltas to
// onFragment when set.
func (c *Client) Complete(ctx context.Context, prompt string, onFragment llm.FragmentFunc) (*llm.Completion, error) {
	data, err := json.Marshal(messagesRequest{
		Model:     c.model,
		Messages:  []message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: c.maxTokens,
		Stream:    onFragment != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.StatusError(provider.Anthropic, resp)
	}

	if onFragment != nil {
		return c.readStream(resp, onFragment)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Content) == 0 {
		return nil, provider.ErrEmptyCompletion
	}

	completion := &llm.Completion{
		Model:      out.Model,
		StopReason: out.StopReason,
		Content:    blockContent(out.Content),
	}
	if out.Usage != nil {
		completion.Usage = &llm.Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		}
	}
	return completion, nil
}

// blockContent joins text blocks. A reply made only of tool_use blocks is
// returned as structured content: the single input, or the list of blocks.
func blockContent(blocks []contentBlock) any {
	var (
		text  strings.Builder
		tools []contentBlock
	)
	for _, b := range blocks {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			tools = append(tools, b)
		}
	}

	switch {
	case text.Len() > 0 || len(tools) == 0:
		return text.String()
	case len(tools) == 1:
		return tools[0].Input
	default:
		return tools
	}
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
		if ev == nil {
			break
		}

		var se streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &se); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}

		switch se.Type {
		case "message_start":
			if se.Message != nil && se.Message.Model != "" {
				completion.Model = se.Message.Model
			}
		case "content_block_delta":
			if se.Delta != nil && se.Delta.Type == "text_delta" && se.Delta.Text != "" {
				b.WriteString(se.Delta.Text)
				onFragment(se.Delta.Text)
			}
		case "message_delta":
			if se.Delta != nil && se.Delta.StopReason != "" {
				completion.StopReason = se.Delta.StopReason
			}
		case "error":
			msg := "stream error"
			if se.Error != nil {
				msg = se.Error.Message
			}
			return nil, fmt.Errorf("%w: %s", provider.ErrUpstream, msg)
		}

		if se.Type == "message_stop" {
			break
		}
	}

	completion.Content = b.String()
	return completion, nil
}

var _ llm.Completer = (*Client)(nil)
