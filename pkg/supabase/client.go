// Package supabase is a small client for the two Supabase services this
// backend talks to: GoTrue (auth) and PostgREST (data).
//
// One Client is built at startup and shared by every request; it holds no
// per-request state and is safe for concurrent use.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single round trip to Supabase.
const DefaultTimeout = 10 * time.Second

// Client talks to a Supabase project using the service role key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a client for the project at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	// 确保URL格式正确
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx reply from Supabase.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("supabase: status %d", e.Status)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " - " + e.Details
	}
	return msg
}

// parseAPIError understands both PostgREST bodies ({code,message,details,hint})
// and GoTrue bodies ({code:int,msg} or {error,error_description}).
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	pick := func(keys ...string) string {
		for _, k := range keys {
			switch v := raw[k].(type) {
			case string:
				if v != "" {
					return v
				}
			case float64:
				return fmt.Sprintf("%.0f", v)
			}
		}
		return ""
	}

	apiErr.Code = pick("error_code", "code", "error")
	apiErr.Message = pick("message", "msg", "error_description", "error")
	apiErr.Details = pick("details")
	apiErr.Hint = pick("hint")
	return apiErr
}

// request is one HTTP exchange with Supabase.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
}

// do sends req and decodes a JSON reply into dst when dst is non-nil.
func (c *Client) do(ctx context.Context, req request, dst any) error {
	var reqBody io.Reader
	if req.body != nil {
		jsonData, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("supabase: failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("supabase: failed to create request: %w", err)
	}

	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("supabase: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("supabase: failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if dst == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return fmt.Errorf("supabase: failed to decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}
