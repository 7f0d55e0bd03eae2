// Package api implements the REST clients for the chatbot backend: the
// chat endpoint and the knowledge-base document endpoints. All errors are
// logged at this boundary and returned for the caller to classify.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client talks to the chatbot backend. One instance is shared by the chat
// and knowledge-base panes; it holds no per-conversation state.
type Client struct {
	httpc   *http.Client
	baseURL string
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: timeout},
		baseURL: baseURL,
		log:     log,
	}
}

// HTTPError carries a non-success status and the server-supplied message.
// The status may come from the transport layer or from the statusCode
// field embedded in a 200 body.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// post issues a JSON POST and hands back the raw status and body. Status
// mapping is endpoint-specific, so it stays with the callers.
func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// errorFromBody maps a non-success response to an HTTPError, preferring
// the server's own message when the body parses as JSON.
func errorFromBody(status int, body []byte) *HTTPError {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			return &HTTPError{Status: status, Message: parsed.Message}
		}
		if parsed.Error != "" {
			return &HTTPError{Status: status, Message: parsed.Error}
		}
	}
	return &HTTPError{Status: status, Message: fmt.Sprintf("HTTP error %d", status)}
}

func unmarshalBody(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}
