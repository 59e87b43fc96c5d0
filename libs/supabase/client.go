package supabase

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

const maxResponseBytes = 1 << 20

// ErrUnavailable marks transport failures talking to Supabase.
var ErrUnavailable = errors.New("supabase unavailable")

// Error is an error reported by GoTrue or Storage.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("supabase error (status %d)", e.Status)
	}
	return e.Message
}

// Config holds the project credentials.
type Config struct {
	URL        string
	AnonKey    string
	ServiceKey string
	JWTSecret  string
}

// Client talks to the Supabase Auth (GoTrue) and Storage REST APIs.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	jwtSecret  string
	http       *http.Client
}

// New creates a client for the project described by cfg.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		anonKey:    strings.TrimSpace(cfg.AnonKey),
		serviceKey: strings.TrimSpace(cfg.ServiceKey),
		jwtSecret:  strings.TrimSpace(cfg.JWTSecret),
		http:       httpClient,
	}
}

// BaseURL returns the project URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method      string
	path        string
	query       url.Values
	bearer      string
	contentType string
	body        io.Reader
	headers     map[string]string
}

func jsonBody(payload any) (io.Reader, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(encoded), nil
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("apikey", c.anonKey)
	bearer := r.bearer
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for key, value := range r.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, r.method, r.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, r.method, r.path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errorFromResponse(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrUnavailable, r.method, r.path, err)
	}
	return nil
}

// errorFromResponse understands both GoTrue ({"error", "error_description"} or
// {"code", "msg"}) and Storage ({"statusCode", "error", "message"}) failures.
func errorFromResponse(status int, raw []byte) error {
	apiErr := &Error{Status: status}
	var payload struct {
		Error            string `json:"error"`
		ErrorCode        string `json:"error_code"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apiErr
	}
	apiErr.Code = firstNonEmpty(payload.ErrorCode, payload.Error)
	apiErr.Message = firstNonEmpty(payload.ErrorDescription, payload.Msg, payload.Message, payload.Error)
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
