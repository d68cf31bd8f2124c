// Package client provides a Go client for the Ectoplasm DEX API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is an Ectoplasm DEX API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new client for the API served at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Token is a token known to the server.
type Token struct {
	Symbol       string `json:"symbol"`
	PackageHash  string `json:"packageHash"`
	ContractHash string `json:"contractHash,omitempty"`
	Decimals     uint8  `json:"decimals"`
}

// QuoteParams are the inputs of a constant-product quote. Amounts are
// base-unit decimal strings.
type QuoteParams struct {
	TokenIn     string
	TokenOut    string
	AmountIn    string
	ReserveIn   string
	ReserveOut  string
	SlippageBps uint32
}

// Quote is the result of a quote.
type Quote struct {
	TokenIn      string `json:"tokenIn,omitempty"`
	TokenOut     string `json:"tokenOut,omitempty"`
	AmountIn     string `json:"amountIn"`
	AmountOut    string `json:"amountOut"`
	MinAmountOut string `json:"minAmountOut"`
}

// Balance is a token or CSPR balance.
type Balance struct {
	Token     string `json:"token"`
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
	Decimals  uint8  `json:"decimals"`
	Candidate string `json:"candidate,omitempty"`
	Probes    int    `json:"probes,omitempty"`
}

// NodeInfo describes the node the server talks to.
type NodeInfo struct {
	APIVersion   string `json:"apiVersion"`
	Chainspec    string `json:"chainspec"`
	BuildVersion string `json:"buildVersion"`
	Compatible   bool   `json:"compatible"`
	Message      string `json:"message,omitempty"`
}

// ApproveRequest builds an approve deploy.
type ApproveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
	Sender  string `json:"sender"`
}

// MintRequest builds a mint deploy.
type MintRequest struct {
	Token  string `json:"token"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount"`
	Sender string `json:"sender"`
}

// SwapRequest builds a swap deploy. Deadline is milliseconds since the epoch.
type SwapRequest struct {
	AmountIn     string   `json:"amountIn"`
	AmountOutMin string   `json:"amountOutMin"`
	Path         []string `json:"path"`
	To           string   `json:"to,omitempty"`
	Deadline     int64    `json:"deadline,omitempty"`
	Sender       string   `json:"sender"`
}

// AddLiquidityRequest builds an add_liquidity deploy.
type AddLiquidityRequest struct {
	TokenA         string `json:"tokenA"`
	TokenB         string `json:"tokenB"`
	AmountADesired string `json:"amountADesired"`
	AmountBDesired string `json:"amountBDesired"`
	AmountAMin     string `json:"amountAMin"`
	AmountBMin     string `json:"amountBMin"`
	To             string `json:"to,omitempty"`
	Deadline       int64  `json:"deadline,omitempty"`
	Sender         string `json:"sender"`
}

// RemoveLiquidityRequest builds a remove_liquidity deploy.
type RemoveLiquidityRequest struct {
	TokenA     string `json:"tokenA"`
	TokenB     string `json:"tokenB"`
	Liquidity  string `json:"liquidity"`
	AmountAMin string `json:"amountAMin"`
	AmountBMin string `json:"amountBMin"`
	To         string `json:"to,omitempty"`
	Deadline   int64  `json:"deadline,omitempty"`
	Sender     string `json:"sender"`
}

// BuiltDeploy is an unsigned deploy returned by the build endpoints.
type BuiltDeploy struct {
	Deploy     json.RawMessage `json:"deploy"`
	DeployHash string          `json:"deployHash"`
	EntryPoint string          `json:"entryPoint"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// SubmitRequest carries a deploy and an optional detached signature.
type SubmitRequest struct {
	Deploy    json.RawMessage `json:"deploy"`
	Signer    string          `json:"signer,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// DeployStatus is the execution state of a deploy.
type DeployStatus struct {
	DeployHash   string `json:"deployHash"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	BlockHash    string `json:"blockHash,omitempty"`
	Cost         string `json:"cost,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
}

// Deploy is a deploy history record.
type Deploy struct {
	ID           string    `json:"id"`
	DeployHash   string    `json:"deployHash"`
	Operation    string    `json:"operation"`
	EntryPoint   string    `json:"entryPoint"`
	Target       string    `json:"target,omitempty"`
	Account      string    `json:"account"`
	AccountHash  string    `json:"accountHash,omitempty"`
	ChainName    string    `json:"chainName"`
	PaymentMotes string    `json:"paymentMotes,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	BlockHash    string    `json:"blockHash,omitempty"`
	Cost         string    `json:"cost,omitempty"`
	SubmittedAt  time.Time `json:"submittedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HistoryFilter selects history records. Account is a public key.
type HistoryFilter struct {
	Account   string
	Operation string
	Status    string
	Limit     int
	Cursor    string
}

// ListDeploysResponse is one page of history.
type ListDeploysResponse struct {
	Data       []Deploy   `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response. Node is set when the Casper node
// rejected the call.
type APIError struct {
	StatusCode int        `json:"-"`
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	Node       *NodeError `json:"node,omitempty"`
}

func (e *APIError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("%s: node code %d: %s", e.Code, e.Node.Code, e.Node.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NodeError is the node's JSON-RPC error as returned by the node.
type NodeError struct {
	Method  string          `json:"method"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Tokens lists the configured tokens.
func (c *Client) Tokens(ctx context.Context) ([]Token, error) {
	var resp struct {
		Data []Token `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/tokens", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Quote computes a swap quote from the given reserves.
func (c *Client) Quote(ctx context.Context, p QuoteParams) (*Quote, error) {
	q := url.Values{}
	q.Set("amountIn", p.AmountIn)
	q.Set("reserveIn", p.ReserveIn)
	q.Set("reserveOut", p.ReserveOut)
	if p.TokenIn != "" {
		q.Set("tokenIn", p.TokenIn)
	}
	if p.TokenOut != "" {
		q.Set("tokenOut", p.TokenOut)
	}
	if p.SlippageBps > 0 {
		q.Set("slippageBps", strconv.FormatUint(uint64(p.SlippageBps), 10))
	}

	var resp Quote
	if err := c.get(ctx, "/api/v1/quote?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TokenBalance resolves the token balance of an account hash or public key.
func (c *Client) TokenBalance(ctx context.Context, symbol, account string) (*Balance, error) {
	var resp Balance
	path := fmt.Sprintf("/api/v1/balances/%s/%s", url.PathEscape(symbol), url.PathEscape(account))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NativeBalance returns the CSPR balance of a public key's main purse.
func (c *Client) NativeBalance(ctx context.Context, publicKey string) (*Balance, error) {
	var resp Balance
	if err := c.get(ctx, "/api/v1/balances/cspr/"+url.PathEscape(publicKey), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Node returns the status of the server's node.
func (c *Client) Node(ctx context.Context) (*NodeInfo, error) {
	var resp NodeInfo
	if err := c.get(ctx, "/api/v1/node", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BuildApprove builds an unsigned approve deploy.
func (c *Client) BuildApprove(ctx context.Context, req ApproveRequest) (*BuiltDeploy, error) {
	return c.build(ctx, "approve", req)
}

// BuildMint builds an unsigned mint deploy.
func (c *Client) BuildMint(ctx context.Context, req MintRequest) (*BuiltDeploy, error) {
	return c.build(ctx, "mint", req)
}

// BuildSwap builds an unsigned swap deploy.
func (c *Client) BuildSwap(ctx context.Context, req SwapRequest) (*BuiltDeploy, error) {
	return c.build(ctx, "swap", req)
}

// BuildAddLiquidity builds an unsigned add_liquidity deploy.
func (c *Client) BuildAddLiquidity(ctx context.Context, req AddLiquidityRequest) (*BuiltDeploy, error) {
	return c.build(ctx, "add-liquidity", req)
}

// BuildRemoveLiquidity builds an unsigned remove_liquidity deploy.
func (c *Client) BuildRemoveLiquidity(ctx context.Context, req RemoveLiquidityRequest) (*BuiltDeploy, error) {
	return c.build(ctx, "remove-liquidity", req)
}

func (c *Client) build(ctx context.Context, op string, req any) (*BuiltDeploy, error) {
	var resp BuiltDeploy
	if err := c.post(ctx, "/api/v1/deploys/"+op, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit sends a signed deploy to the node and returns its hash.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var resp struct {
		DeployHash string `json:"deployHash"`
	}
	if err := c.post(ctx, "/api/v1/deploys/submit", req, &resp); err != nil {
		return "", err
	}
	return resp.DeployHash, nil
}

// Status queries a deploy once, or polls server-side until it executes when
// wait is set.
func (c *Client) Status(ctx context.Context, hash string, wait bool) (*DeployStatus, error) {
	path := "/api/v1/deploys/" + url.PathEscape(hash) + "/status"
	if wait {
		path += "?wait=true"
	}
	var resp DeployStatus
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDeploys lists deploy history, newest first.
func (c *Client) ListDeploys(ctx context.Context, f HistoryFilter) (*ListDeploysResponse, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"account":   f.Account,
		"operation": f.Operation,
		"status":    f.Status,
		"cursor":    f.Cursor,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	path := "/api/v1/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp ListDeploysResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeploy gets a history record by deploy hash.
func (c *Client) GetDeploy(ctx context.Context, hash string) (*Deploy, error) {
	var resp Deploy
	if err := c.get(ctx, "/api/v1/history/"+url.PathEscape(hash), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
