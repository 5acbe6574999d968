// Package caldav projects jobs onto team calendars over CalDAV.
package caldav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sgjobs_backend/platform/config"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20
)

// Response is the raw outcome of a calendar request.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Requester issues arbitrary-method calendar requests. *Client implements it.
type Requester interface {
	Do(ctx context.Context, method, path string, headers http.Header, body []byte) (*Response, error)
}

// Client is a basic-auth HTTP client for a CalDAV server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// NewClient creates a calendar client from configuration.
func NewClient(cfg config.CalDAVConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(cfg.GetCalDAVBaseURL(), "/"),
		username:   cfg.GetCalDAVUsername(),
		password:   cfg.GetCalDAVPassword(),
	}
}

// WithTimeout returns a copy of the client using a different request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	clone := *c
	clone.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
	return &clone
}

// Do sends the request and returns status and body. Only transport failures
// are returned as errors; callers judge the status code.
func (c *Client) Do(ctx context.Context, method, path string, headers http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// Propfind issues a Depth: 0 PROPFIND and returns the status code.
func (c *Client) Propfind(ctx context.Context, path string) (int, error) {
	headers := http.Header{}
	headers.Set("Depth", "0")
	headers.Set("Content-Type", "application/xml; charset=utf-8")
	body := []byte(`<?xml version="1.0" encoding="utf-8"?><d:propfind xmlns:d="DAV:"><d:prop><d:displayname/></d:prop></d:propfind>`)

	resp, err := c.Do(ctx, "PROPFIND", path, headers, body)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// resolve uses absolute URLs as they are and joins anything else to the base URL.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}
