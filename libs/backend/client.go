package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// ErrUnavailable marks transport failures: the backend could not be reached or
// its response could not be read.
var ErrUnavailable = errors.New("grievance backend unavailable")

// Error is a business error reported by the backend. Message is the backend's
// own error text and may be empty when the backend gave none.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("grievance backend error (status %d)", e.Status)
	}
	return e.Message
}

// Observer receives one call per backend request. Status is 0 when the request
// failed before a response arrived.
type Observer func(endpoint string, status int, duration time.Duration)

// Client talks to the grievance REST backend.
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithBearerToken sends the token as an Authorization header on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithObserver installs a per-request observer, used for metrics.
func WithObserver(observer Observer) Option {
	return func(c *Client) { c.observer = observer }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health calls the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", "/health", nil, nil, &out); err != nil {
		return err
	}
	if out.Status != "healthy" {
		return fmt.Errorf("%w: health status %q", ErrUnavailable, out.Status)
	}
	return nil
}

type envelope struct {
	Success   *bool  `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

// do performs one request. endpoint is the route template used for metrics so
// that complaint ids do not explode label cardinality.
func (c *Client) do(ctx context.Context, method, endpoint, path string, query url.Values, body any, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, endpoint, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method+" "+endpoint, 0, time.Since(start))
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, endpoint, err)
	}
	defer resp.Body.Close()
	c.observe(method+" "+endpoint, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, method, endpoint, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return errorFromResponse(resp.StatusCode, raw)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("%w: decode %s %s: %v", ErrUnavailable, method, endpoint, err)
		}
	}
	if env.Success != nil && !*env.Success {
		return &Error{Status: resp.StatusCode, Code: env.ErrorCode, Message: env.Error}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrUnavailable, method, endpoint, err)
	}
	return nil
}

func (c *Client) observe(endpoint string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, d)
	}
}

// errorFromResponse extracts a message from the shapes the backend uses for
// failures: the success envelope, FastAPI's {"detail": "..."} and validation
// errors {"detail": [{"msg": "..."}]}.
func errorFromResponse(status int, raw []byte) error {
	apiErr := &Error{Status: status}

	var payload struct {
		Error     string          `json:"error"`
		ErrorCode string          `json:"error_code"`
		Detail    json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apiErr
	}
	apiErr.Code = payload.ErrorCode
	apiErr.Message = payload.Error
	if apiErr.Message != "" || len(payload.Detail) == 0 {
		return apiErr
	}

	var detailText string
	if err := json.Unmarshal(payload.Detail, &detailText); err == nil {
		apiErr.Message = detailText
		return apiErr
	}
	var detailItems []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &detailItems); err == nil && len(detailItems) > 0 {
		messages := make([]string, 0, len(detailItems))
		for _, item := range detailItems {
			if item.Msg != "" {
				messages = append(messages, item.Msg)
			}
		}
		apiErr.Message = strings.Join(messages, "; ")
		if apiErr.Code == "" {
			apiErr.Code = "VALIDATION_ERROR"
		}
	}
	return apiErr
}

func setIfPresent(query url.Values, key, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		query.Set(key, trimmed)
	}
}
