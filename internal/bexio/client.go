// Package bexio provides the ERP gateway: delivery notes, their positions and
// invoice payment status, read through a retrying, rate-limited HTTP client.
package bexio

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

	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/logger"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 5
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxDelay    = 3 * time.Second
	maxErrorBody       = 2048
)

// NetworkError is a transport failure or a transient upstream status
// (5xx, 429). Only NetworkErrors are retried.
type NetworkError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("bexio network error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bexio network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-retryable application failure: a 4xx response or a body
// that could not be decoded.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("bexio api error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bexio api error: %s", e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err should be retried.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// Client is the HTTP client for the bexio REST API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	limiter     *rate.Limiter
	log         *logger.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff overrides the retry schedule.
func WithBackoff(maxAttempts int, baseDelay, maxDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// WithSleep overrides how the client waits between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a bexio client from configuration.
func NewClient(cfg config.BexioConfig, log *logger.Logger, opts ...ClientOption) *Client {
	perSecond := cfg.GetBexioRatePerSecond()
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     strings.TrimRight(cfg.GetBexioBaseURL(), "/"),
		token:       cfg.GetBexioToken(),
		limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
		log:         log,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET and decodes the JSON body into out. Network failures are
// retried with exponential backoff; application failures return immediately.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	delay := c.baseDelay
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.do(ctx, http.MethodGet, path, query, nil, out)
		if lastErr == nil {
			return nil
		}
		if !IsNetworkError(lastErr) || attempt == c.maxAttempts {
			break
		}

		if c.log != nil {
			c.log.UpstreamRetry("bexio", path, attempt, lastErr)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return &NetworkError{Err: err}
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}

	return lastErr
}

// Post sends payload as JSON and decodes the response into out when non-nil.
// Posts are not retried.
func (c *Client) Post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &APIError{Message: "encode request", Err: err}
	}
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{Err: err}
	}

	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return &APIError{Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &NetworkError{StatusCode: resp.StatusCode, Message: msg}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Message: "decode response", Err: err}
	}
	return nil
}

// readErrorMessage prefers the "message" field of a bexio error body.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
