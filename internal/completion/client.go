// Package completion implements the HTTP client for the language-model
// completion backend. The backend exposes one endpoint per model family and
// answers a full transcript with the assistant reply plus the token usage the
// usage ledger needs for cost accounting.
//
// The core treats this client as a function: (model, transcript, temperature,
// max_tokens) -> (text, usage) or a failure. Transport errors, non-2xx
// statuses, and error payloads all surface as ordinary Go errors; the session
// controller wraps them into its own taxonomy.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one role-tagged transcript entry, serialized exactly as the
// backend expects it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the completion request payload. Message carries the full
// transcript in arrival order, so the backend always sees the whole history.
type Request struct {
	Model       string    `json:"model"`
	Message     []Message `json:"message"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// Response is the completion response payload. On failure the backend returns
// a 200 with only the error field set, so both shapes are decoded together.
type Response struct {
	Message          string `json:"message"`
	TotalTokens      int    `json:"total_tokens"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	Error            string `json:"error,omitempty"`
}

// Client posts completion requests to a fixed backend base URL.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New constructs a Client for baseURL. The timeout bounds the whole request
// including body read; callers additionally pass a deadline-carrying context
// per call. A timeout <= 0 defaults to 60s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Complete posts req to endpoint (a path such as "/chat/gpt4") and decodes
// the reply. It returns an error on transport failure, non-2xx status, or an
// error payload from the backend.
func (c *Client) Complete(ctx context.Context, endpoint string, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("completion backend returned %d: %s", httpResp.StatusCode, truncateBody(raw))
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return &resp, nil
}

// truncateBody keeps error messages readable when the backend returns HTML or
// a long stack trace.
func truncateBody(b []byte) string {
	const max = 512
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
