// Package analysis turns raw meeting audio into structured artifacts. It
// wraps the external transcription and completion services and implements
// the map/reduce/refine pipeline over transcript chunks.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionClient calls the external model endpoint used by the map,
// reduce, refine and email steps.
type CompletionClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewCompletionClient returns a client for the completion endpoint. A nil
// httpClient gets a default with a 2-minute timeout.
func NewCompletionClient(endpoint, apiKey string, httpClient *http.Client) *CompletionClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &CompletionClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Complete sends the messages and returns the raw completion text with any
// fenced code block stripped, ready for JSON decoding.
func (c *CompletionClient) Complete(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &mterrors.ServiceError{
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var out struct {
		Completion string `json:"completion"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", mterrors.ErrMalformedResponse)
	}
	if strings.TrimSpace(out.Completion) == "" {
		return "", fmt.Errorf("empty completion: %w", mterrors.ErrMalformedResponse)
	}
	return StripCodeFence(out.Completion), nil
}

// StripCodeFence removes a surrounding Markdown code fence, with or without
// a language tag, from the completion text. Text without a fence is returned
// trimmed and otherwise untouched.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line (e.g. "json").
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
