// Package r2r is a client for the v3 REST API of an R2R retrieval service:
// conversations, documents, chunks, retrieval and health.
package r2r

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aqua777/go-ragchat/ragerr"
)

const (
	// DefaultBaseURL is the default service endpoint.
	DefaultBaseURL = "http://localhost:7272"
	// DefaultTimeout bounds long generations.
	DefaultTimeout = 600 * time.Second
	// DefaultHealthTimeout bounds health checks.
	DefaultHealthTimeout = 5 * time.Second
)

// Client talks to the service over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	healthClient *http.Client
	logger       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the service base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithToken sets the bearer token forwarded in the Authorization header.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets the HTTP client used for every call except health checks.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithHealthTimeout sets the timeout of health checks.
func WithHealthTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.healthClient = &http.Client{Timeout: d}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		healthClient: &http.Client{Timeout: DefaultHealthTimeout},
		logger:       slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// send issues a request and returns the response for a 2xx status.
// Non-2xx statuses and transport failures are classified with ragerr.
func (c *Client) send(ctx context.Context, hc *http.Client, op, method, path string, query url.Values, contentType string, body io.Reader) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.setHeaders(req)

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Error("Request failed", "op", op, "error", err)
		return nil, ragerr.FromTransport(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.logger.Warn("Request rejected", "op", op, "status", resp.StatusCode)
		return nil, ragerr.FromHTTP(op, resp.StatusCode, extractDetail(respBody))
	}
	return resp, nil
}

// doJSON sends an optional JSON body and decodes the results envelope into out.
// It returns total_entries.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, in, out interface{}) (int, error) {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, c.httpClient, op, method, path, query, contentType, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return decodeEnvelope(op, resp.Body, out)
}

func decodeEnvelope(op string, r io.Reader, out interface{}) (int, error) {
	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return 0, ragerr.Wrap(ragerr.KindUpstream, op, fmt.Errorf("failed to decode response: %w", err))
	}
	if out != nil && len(env.Results) > 0 {
		if err := json.Unmarshal(env.Results, out); err != nil {
			return 0, ragerr.Wrap(ragerr.KindUpstream, op, fmt.Errorf("failed to decode results: %w", err))
		}
	}
	return env.TotalEntries, nil
}

// extractDetail pulls the error message out of the service's error body when present.
func extractDetail(body []byte) string {
	var e struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		switch d := e.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case map[string]interface{}:
			if m, ok := d["message"].(string); ok && m != "" {
				return m
			}
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return string(body)
}

func pageQuery(ids []string, offset, limit int) url.Values {
	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", id)
	}
	q.Set("offset", fmt.Sprint(offset))
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	return q
}
