package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/cohort/pkg/sse"
)

const (
	doneMarker  = "[DONE]"
	errorPrefix = "Error: "
)

// ErrStreamEnded is returned when the gateway closes the stream without a
// terminal frame.
var ErrStreamEnded = errors.New("stream ended before the answer completed")

// client talks to a running cohort gateway.
type client struct {
	target string
	token  string
	http   *http.Client
}

func (c *client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.target, "/")+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// resolveThread asks the gateway for a live thread id, keeping threadID
// when the gateway still tracks it.
func (c *client) resolveThread(ctx context.Context, threadID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/threads", map[string]string{"threadId": threadID})
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("contacting gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var out struct {
		ThreadID string `json:"threadId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding thread response: %w", err)
	}
	return out.ThreadID, nil
}

// send posts one message and calls onText with every cumulative answer
// frame. It returns the final answer.
func (c *client) send(ctx context.Context, threadID, message string, onText func(string)) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat", map[string]string{
		"message":  message,
		"threadId": threadID,
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("contacting gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	answer := ""
	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			return answer, fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			return answer, ErrStreamEnded
		}

		switch {
		case ev.Data == doneMarker:
			return answer, nil
		case strings.HasPrefix(ev.Data, errorPrefix):
			return answer, errors.New(strings.TrimPrefix(ev.Data, errorPrefix))
		default:
			answer = ev.Data
			if onText != nil {
				onText(answer)
			}
		}
	}
}
