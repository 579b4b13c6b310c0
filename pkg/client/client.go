// Package client is a typed Go client for the assetguard HTTP API. Denials
// come back as *APIError wrapping the guard's *reason.Error, so callers can
// use reason.Has or errors.Is on them directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/Mindburn-Labs/assetguard/pkg/api"
	"github.com/Mindburn-Labs/assetguard/pkg/guard"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Status  int
	Problem api.ProblemDetail
}

func (e *APIError) Error() string {
	if e.Problem.Code != "" {
		return fmt.Sprintf("assetguard api %d: %s", e.Status, e.Problem.Detail)
	}
	return fmt.Sprintf("assetguard api %d: %s", e.Status, e.Problem.Title)
}

// Unwrap exposes the denial, if the problem carried a reason code.
func (e *APIError) Unwrap() error {
	if e.Problem.Code == "" {
		return nil
	}
	code := reason.Code(e.Problem.Code)
	return reason.New(code, strings.TrimPrefix(e.Problem.Detail, e.Problem.Code+": "))
}

// Client talks to one assetguard server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Problem); err != nil {
			apiErr.Problem.Title = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func amount(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return nil
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}

// PerformCall calls POST /v1/calls.
func (c *Client) PerformCall(ctx context.Context, target common.Address, data []byte, value *big.Int) (*api.CallResponse, error) {
	var out api.CallResponse
	if err := c.do(ctx, http.MethodPost, "/v1/calls", api.CallRequest{Target: target, Data: data, Value: amount(value)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAndSignOrder calls POST /v1/orders.
func (c *Client) CreateAndSignOrder(ctx context.Context, req api.OrderRequest) (*api.OrderResponse, error) {
	var out api.OrderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SwapAndValidate calls POST /v1/swaps and returns the amount received.
func (c *Client) SwapAndValidate(ctx context.Context, req api.SwapRequest) (*big.Int, error) {
	var out api.SwapResponse
	if err := c.do(ctx, http.MethodPost, "/v1/swaps", req, &out); err != nil {
		return nil, err
	}
	received, ok := new(big.Int).SetString(out.Received, 10)
	if !ok {
		return nil, fmt.Errorf("swap response: bad amount %q", out.Received)
	}
	return received, nil
}

// SetWhitelist calls PUT /v1/whitelist/{dimension}.
func (c *Client) SetWhitelist(ctx context.Context, d whitelist.Dimension, key string, approved bool, note string) error {
	return c.do(ctx, http.MethodPut, "/v1/whitelist/"+url.PathEscape(string(d)),
		api.WhitelistRequest{Key: key, Approved: approved, Note: note}, nil)
}

// Whitelist calls GET /v1/whitelist/{dimension}.
func (c *Client) Whitelist(ctx context.Context, d whitelist.Dimension) ([]api.WhitelistEntry, error) {
	var out []api.WhitelistEntry
	err := c.do(ctx, http.MethodGet, "/v1/whitelist/"+url.PathEscape(string(d)), nil, &out)
	return out, err
}

// BindRouter calls PUT /v1/bindings.
func (c *Client) BindRouter(ctx context.Context, router, escrow common.Address, note string) error {
	return c.do(ctx, http.MethodPut, "/v1/bindings", api.BindingRequest{Router: router, Escrow: escrow, Note: note}, nil)
}

// Bindings calls GET /v1/bindings.
func (c *Client) Bindings(ctx context.Context) ([]whitelist.Binding, error) {
	var out []whitelist.Binding
	err := c.do(ctx, http.MethodGet, "/v1/bindings", nil, &out)
	return out, err
}

// Targets calls GET /v1/targets.
func (c *Client) Targets(ctx context.Context) ([]guard.Target, error) {
	var out []guard.Target
	err := c.do(ctx, http.MethodGet, "/v1/targets", nil, &out)
	return out, err
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
