// Package providerutils builds a completion client from configuration.
package providerutils

import (
	"fmt"
	"net/http"

	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/llm/provider"
	"github.com/papercomputeco/cohort/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/cohort/pkg/llm/provider/ollama"
	"github.com/papercomputeco/cohort/pkg/llm/provider/openai"
)

// NewCompleterOpts selects and configures a completion provider.
type NewCompleterOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string

	// JSON asks the provider for JSON object output where it supports it.
	JSON       bool
	HTTPClient *http.Client
}

// NewCompleter builds the Completer named by o.ProviderType.
func NewCompleter(o *NewCompleterOpts) (llm.Completer, error) {
	switch o.ProviderType {
	case provider.OpenAI:
		return openai.New(openai.Config{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			APIKey:     o.APIKey,
			JSONMode:   o.JSON,
			HTTPClient: o.HTTPClient,
		}), nil
	case provider.Anthropic:
		return anthropic.New(anthropic.Config{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			APIKey:     o.APIKey,
			HTTPClient: o.HTTPClient,
		}), nil
	case provider.Ollama:
		format := ""
		if o.JSON {
			format = "json"
		}
		return ollama.New(ollama.Config{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Format:     format,
			HTTPClient: o.HTTPClient,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", o.ProviderType)
	}
}
