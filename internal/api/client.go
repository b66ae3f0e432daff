// Package api is a client for the chat backend's REST and streaming
// endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	maxErrorBody   = 4 * 1024
)

type Client struct {
	baseURL   string
	http      *http.Client
	retries   int
	backOff   func() backoff.BackOff
	userAgent string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetries sets how many times an idempotent request is retried after a
// transient failure.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithBackOff overrides the retry delay policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.backOff = fn }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retries: 2,
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		userAgent: "makoto/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends a request and returns the response only for 2xx statuses.
// Everything else becomes a *TransportError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, accept string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	slog.Debug("api request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       errorDetail(data),
		}
	}
	return resp, nil
}

// errorDetail pulls the "detail" message out of a FastAPI-style error body,
// falling back to the raw text.
func errorDetail(data []byte) string {
	var body struct {
		Detail any `json:"detail"`
		Error  any `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		for _, v := range []any{body.Detail, body.Error} {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(data))
}

func (c *Client) sendJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.do(ctx, method, path, query, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// getJSON is sendJSON for GET requests, retried with backoff on transient
// failures.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.sendJSON(ctx, http.MethodGet, path, query, nil, out)
		if err == nil {
			return struct{}{}, nil
		}
		var te *TransportError
		if errors.As(err, &te) && te.Temporary() && ctx.Err() == nil {
			slog.Debug("api request failed, retrying", "path", path, "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(uint(c.retries+1)),
	)
	return err
}
