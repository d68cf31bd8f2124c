// Package rpc is a thin JSON-RPC client for the subset of the Casper node API
// the DEX client needs.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ectoplasm/dexclient/internal/observability/metrics"
)

// ErrNotFound is returned when the node reports that a queried value does not
// exist (dictionary item, account, named key).
var ErrNotFound = errors.New("not found")

// Node error codes that mean the queried value is absent.
const (
	codeQueryFailed  = -32003
	codeNoSuchDeploy = -32000
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Method  string          `json:"-"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: code %d: %s", e.Method, e.Code, e.Message)
}

// TransportError reports a request that never produced a JSON-RPC response.
type TransportError struct {
	Method     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rpc %s: HTTP %d: %v", e.Method, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("rpc %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodingError reports a response that lacks every known form of a field.
type DecodingError struct {
	Method string
	Field  string
	Err    error
}

func (e *DecodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rpc %s: decode %s: %v", e.Method, e.Field, e.Err)
	}
	return fmt.Sprintf("rpc %s: missing %s", e.Method, e.Field)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// Client talks to one node. It is safe for concurrent use; every call builds
// and owns its request and response.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Uint64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger used for per-call debug logging
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

// New creates a client for the node at nodeURL. "/rpc" is appended when the
// URL does not already end with it.
func New(nodeURL string, opts ...Option) *Client {
	c := &Client{
		url: RPCURL(nodeURL),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RPCURL normalizes a node address to its JSON-RPC endpoint.
func RPCURL(nodeURL string) string {
	u := strings.TrimRight(strings.TrimSpace(nodeURL), "/")
	if strings.HasSuffix(u, "/rpc") {
		return u
	}
	return u + "/rpc"
}

// URL returns the JSON-RPC endpoint.
func (c *Client) URL() string {
	return c.url
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Call performs one JSON-RPC request and decodes the result into result.
func (c *Client) Call(ctx context.Context, method string, params, result any) (err error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		metrics.RPCCall(method, callResult(err), d)
		c.logger.Debug("rpc call", "method", method, "duration", d, "error", err)
	}()

	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("rpc %s: encode params: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: err}
	}

	var env response
	if jerr := json.Unmarshal(raw, &env); jerr != nil {
		if resp.StatusCode >= 400 {
			return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		}
		return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid JSON-RPC response: %w", jerr)}
	}
	if env.Error != nil {
		env.Error.Method = method
		return env.Error
	}
	if resp.StatusCode >= 400 {
		return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if result == nil {
		return nil
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return &DecodingError{Method: method, Field: "result"}
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return &DecodingError{Method: method, Field: "result", Err: err}
	}
	return nil
}

func callResult(err error) string {
	var rpcErr *RPCError
	var transportErr *TransportError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	case errors.As(err, &transportErr):
		return "transport_error"
	default:
		return "error"
	}
}

// IsNotFound reports whether err means the queried value does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.Code == codeQueryFailed {
		return true
	}
	text := strings.ToLower(rpcErr.Message + " " + string(rpcErr.Data))
	return strings.Contains(text, "valuenotfound") || strings.Contains(text, "not found")
}

// notFound maps absent-value RPC errors to ErrNotFound and passes others through.
func notFound(err error, what string) error {
	if err != nil && IsNotFound(err) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", what, ErrNotFound, err)
	}
	return err
}
