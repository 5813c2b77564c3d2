// Package provider holds what the completion provider clients share.
package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Ollama    = "ollama"

	// DefaultTimeout bounds a single completion request, streamed or not.
	DefaultTimeout = 2 * time.Minute
)

var (
	// ErrUpstream wraps every non-2xx answer from a provider.
	ErrUpstream = errors.New("completion provider error")

	// ErrEmptyCompletion is returned when a provider answers without any content.
	ErrEmptyCompletion = errors.New("empty completion")
)

// StatusError drains resp and reports its status under ErrUpstream.
func StatusError(name string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%w: %s returned status %d: %s", ErrUpstream, name, resp.StatusCode, string(body))
}

// APIKeyFromEnv returns the conventional environment API key for name.
func APIKeyFromEnv(name string) string {
	switch name {
	case OpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case Anthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

// NewHTTPClient returns the client used when a provider config carries none.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}
