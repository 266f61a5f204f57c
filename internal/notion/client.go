// Package notion wraps the Notion REST API for book-page management. Every
// request goes through one retry path that backs off on rate limits, and
// every failure is normalized into *APIError.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"

	defaultTimeout = 30 * time.Second

	// Rate-limit retry policy: up to maxRetries additional attempts with
	// exponential backoff starting at initialRetryDelay (1s, 2s, 4s).
	maxRetries         = 3
	initialRetryDelay  = 1 * time.Second
	retryBackoffFactor = 2
)

// Client talks to the Notion API with a single integration token.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)

	// Short-lived property-name cache per database, invalidated whenever
	// this client mutates a schema.
	mu          sync.Mutex
	schemaCache map[string]map[string]bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint (tests).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithSleep replaces the backoff sleeper (tests).
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a Notion API client.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		token:       token,
		baseURL:     defaultBaseURL,
		sleep:       time.Sleep,
		schemaCache: make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Workspace identifies the integration's workspace, returned by token
// validation.
type Workspace struct {
	Name  string
	ID    string
	BotID string
}

// ValidateToken checks the integration token against the users endpoint and
// returns workspace identity. Unauthorized and insufficient-permission
// failures surface as distinct error codes.
func (c *Client) ValidateToken(ctx context.Context) (Workspace, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return Workspace{}, err
	}

	var me struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Bot  struct {
			Owner struct {
				Workspace bool `json:"workspace"`
			} `json:"owner"`
			WorkspaceName string `json:"workspace_name"`
		} `json:"bot"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return Workspace{}, fmt.Errorf("failed to decode token validation response: %w", err)
	}

	ws := Workspace{Name: me.Bot.WorkspaceName, ID: me.ID, BotID: me.ID}
	if ws.Name == "" {
		ws.Name = me.Name
	}
	if ws.Name == "" {
		ws.Name = "Unknown Workspace"
	}
	return ws, nil
}

// doRequest performs one API call with the uniform rate-limit retry policy.
// Only 429 responses are retried; every other error class propagates
// immediately.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			c.sleep(retryDelay(attempt))
		}

		body, err := c.doOnce(ctx, method, path, reqBody)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRateLimited(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, reqBody []byte) ([]byte, error) {
	var reader io.Reader
	if reqBody != nil {
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	return nil, normalizeError(resp.StatusCode, body)
}

// normalizeError turns any non-2xx response into an *APIError with the
// Notion error code when the body carries one.
func normalizeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}

	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Code != "" {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		return apiErr
	}

	switch status {
	case http.StatusUnauthorized:
		apiErr.Code = CodeUnauthorized
	case http.StatusForbidden:
		apiErr.Code = CodeRestrictedResource
	case http.StatusTooManyRequests:
		apiErr.Code = CodeRateLimited
	case http.StatusNotFound:
		apiErr.Code = CodeObjectNotFound
	default:
		apiErr.Code = CodeValidationError
	}
	apiErr.Message = string(body)
	return apiErr
}

func retryDelay(attempt int) time.Duration {
	delay := initialRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= retryBackoffFactor
	}
	return delay
}
