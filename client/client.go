// Package client provides a typed Go SDK for the graphrouter REST API.
package client

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

// Client is the top-level graphrouter API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client

	Nodes        *NodeService
	Edges        *EdgeService
	Batch        *BatchService
	Transactions *TransactionService
	Ontology     *OntologyService
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for the given base URL (e.g. "http://localhost:3030").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "graphrouter-go",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	c.Nodes = &NodeService{c: c}
	c.Edges = &EdgeService{c: c}
	c.Batch = &BatchService{c: c}
	c.Transactions = &TransactionService{c: c}
	c.Ontology = &OntologyService{c: c}
	return c
}

// Health returns the liveness check response.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/api/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready returns the readiness check. A not-ready server answers 503; the
// decoded checks are still returned alongside the *APIError.
func (c *Client) Ready(ctx context.Context) (*ReadyResponse, error) {
	var resp ReadyResponse
	err := c.get(ctx, "/api/v1/ready", nil, &resp)
	if err == nil {
		return &resp, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		if json.Unmarshal([]byte(apiErr.Message), &resp) == nil && resp.Status != "" {
			apiErr.Message = "server not ready"
			return &resp, err
		}
	}
	return nil, err
}

// Query executes a plan.
func (c *Client) Query(ctx context.Context, plan QuerySpec, opts *QueryOptions) (*QueryResult, error) {
	body := queryRequest{Plan: plan}
	if opts != nil {
		body.Options = *opts
	}

	var res QueryResult
	if err := c.post(ctx, "/api/v1/query", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Operations returns per-operation performance statistics.
func (c *Client) Operations(ctx context.Context) (map[string]OperationStats, error) {
	var resp struct {
		Operations map[string]OperationStats `json:"operations"`
	}
	if err := c.get(ctx, "/api/v1/stats/operations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Operations, nil
}

// ResetOperations clears the performance statistics.
func (c *Client) ResetOperations(ctx context.Context) error {
	return c.del(ctx, "/api/v1/stats/operations", nil)
}

// Reason asks the server to answer question by chain-of-thought retrieval.
func (c *Client) Reason(ctx context.Context, question string) (*Answer, error) {
	var ans Answer
	if err := c.post(ctx, "/api/v1/reason", map[string]string{"question": question}, &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

// do executes an HTTP request and decodes the JSON response.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	u := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		apiErr.RetryAfter = resp.Header.Get("Retry-After")
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// get is a convenience wrapper for GET requests with query parameters.
func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post is a convenience wrapper for POST requests.
func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// patch is a convenience wrapper for PATCH requests.
func (c *Client) patch(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPatch, path, body, result)
}

// del is a convenience wrapper for DELETE requests.
func (c *Client) del(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodDelete, path, nil, result)
}
