package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults applied by New when no option overrides them.
const (
	DefaultBucket  = "images"
	DefaultTimeout = 30 * time.Second
)

// Client is the HTTP client for the Facegate backend.
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
	retry      *RetryConfig
}

// Option configures the API client.
type Option func(*Client)

// WithBaseURL sets the backend base URL (the Supabase project URL).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithBucket sets the storage bucket that holds encrypted items.
func WithBucket(name string) Option {
	return func(c *Client) {
		c.bucket = name
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the maximum number of retry attempts.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.retry.MaxRetries = n
	}
}

// WithRetryOn restricts retries to the given HTTP status codes.
func WithRetryOn(codes []int) Option {
	return func(c *Client) {
		retryable := make(map[int]bool, len(codes))
		for _, code := range codes {
			retryable[code] = true
		}
		c.retry.RetryableOn = func(statusCode int) bool {
			return retryable[statusCode]
		}
	}
}

// WithRetryDelay sets the base delay of the backoff schedule.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. The timeout of the
// provided client wins over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a backend client. The service key and a base URL are required.
func New(serviceKey string, opts ...Option) (*Client, error) {
	if serviceKey == "" {
		return nil, fmt.Errorf("service key is required")
	}

	c := &Client{
		serviceKey: serviceKey,
		bucket:     DefaultBucket,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      DefaultRetryConfig(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Bucket returns the configured storage bucket.
func (c *Client) Bucket() string {
	return c.bucket
}

// SetHTTPClient sets a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// do issues a JSON request against a path under the base URL and decodes
// the response into result when result is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	resp, err := c.send(ctx, method, c.baseURL+path, payload, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// send issues the request with retries. On a nil error the caller owns
// resp.Body. The request is rebuilt on every attempt so the body reader
// is fresh.
func (c *Client) send(ctx context.Context, method, fullURL string, payload []byte, wantJSON bool) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req, payload != nil, wantJSON)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < c.retry.MaxRetries {
				if werr := c.retry.Wait(ctx, attempt); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, &NetworkError{Err: err, URL: fullURL, Attempt: attempt + 1}
		}

		if resp.StatusCode >= 400 {
			if c.retry.ShouldRetry(attempt, resp.StatusCode) {
				resp.Body.Close()
				if werr := c.retry.Wait(ctx, attempt); werr != nil {
					return nil, werr
				}
				continue
			}
			defer resp.Body.Close()
			return nil, parseErrorResponse(resp)
		}

		return resp, nil
	}
}

func (c *Client) setHeaders(req *http.Request, hasBody, wantJSON bool) {
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if wantJSON {
		req.Header.Set("Accept", "application/json")
	}
	// PostgREST writes should not echo the changed rows back.
	if req.Method == http.MethodPatch || req.Method == http.MethodPost {
		req.Header.Set("Prefer", "return=minimal")
	}
}
