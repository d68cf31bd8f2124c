// Package transport provides HTTP request/response types for the DEX facade.
package transport

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/dex"
)

// Amounts travel as decimal strings of base units so that U256 values
// survive JSON clients with float numbers.

// ApproveRequest is the HTTP request body for building an approve deploy.
type ApproveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
	Sender  string `json:"sender"`
}

// ToDomain converts ApproveRequest to dex.ApproveRequest.
func (r ApproveRequest) ToDomain() (dex.ApproveRequest, error) {
	var p parser
	out := dex.ApproveRequest{
		Token:   r.Token,
		Spender: p.address("spender", r.Spender, keys.KindContractHash),
		Amount:  p.amount("amount", r.Amount),
		Sender:  p.sender(r.Sender),
	}
	return out, p.err
}

// MintRequest is the HTTP request body for building a mint deploy.
type MintRequest struct {
	Token  string `json:"token"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount"`
	Sender string `json:"sender"`
}

// ToDomain converts MintRequest to dex.MintRequest.
func (r MintRequest) ToDomain() (dex.MintRequest, error) {
	var p parser
	out := dex.MintRequest{
		Token:  r.Token,
		To:     p.address("to", r.To, keys.KindAccountHash),
		Amount: p.amount("amount", r.Amount),
		Sender: p.sender(r.Sender),
	}
	return out, p.err
}

// SwapRequest is the HTTP request body for building a swap deploy.
// Deadline is milliseconds since the epoch; zero means now + TTL.
type SwapRequest struct {
	AmountIn     string   `json:"amountIn"`
	AmountOutMin string   `json:"amountOutMin"`
	Path         []string `json:"path"`
	To           string   `json:"to,omitempty"`
	Deadline     int64    `json:"deadline,omitempty"`
	Sender       string   `json:"sender"`
}

// ToDomain converts SwapRequest to dex.SwapRequest.
func (r SwapRequest) ToDomain() (dex.SwapRequest, error) {
	var p parser
	out := dex.SwapRequest{
		AmountIn:     p.amount("amountIn", r.AmountIn),
		AmountOutMin: p.amount("amountOutMin", r.AmountOutMin),
		Path:         r.Path,
		To:           p.address("to", r.To, keys.KindAccountHash),
		Deadline:     deadline(r.Deadline),
		Sender:       p.sender(r.Sender),
	}
	return out, p.err
}

// AddLiquidityRequest is the HTTP request body for building an add_liquidity deploy.
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

// ToDomain converts AddLiquidityRequest to dex.AddLiquidityRequest.
func (r AddLiquidityRequest) ToDomain() (dex.AddLiquidityRequest, error) {
	var p parser
	out := dex.AddLiquidityRequest{
		TokenA:         r.TokenA,
		TokenB:         r.TokenB,
		AmountADesired: p.amount("amountADesired", r.AmountADesired),
		AmountBDesired: p.amount("amountBDesired", r.AmountBDesired),
		AmountAMin:     p.amount("amountAMin", r.AmountAMin),
		AmountBMin:     p.amount("amountBMin", r.AmountBMin),
		To:             p.address("to", r.To, keys.KindAccountHash),
		Deadline:       deadline(r.Deadline),
		Sender:         p.sender(r.Sender),
	}
	return out, p.err
}

// RemoveLiquidityRequest is the HTTP request body for building a remove_liquidity deploy.
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

// ToDomain converts RemoveLiquidityRequest to dex.RemoveLiquidityRequest.
func (r RemoveLiquidityRequest) ToDomain() (dex.RemoveLiquidityRequest, error) {
	var p parser
	out := dex.RemoveLiquidityRequest{
		TokenA:     r.TokenA,
		TokenB:     r.TokenB,
		Liquidity:  p.amount("liquidity", r.Liquidity),
		AmountAMin: p.amount("amountAMin", r.AmountAMin),
		AmountBMin: p.amount("amountBMin", r.AmountBMin),
		To:         p.address("to", r.To, keys.KindAccountHash),
		Deadline:   deadline(r.Deadline),
		Sender:     p.sender(r.Sender),
	}
	return out, p.err
}

// SubmitRequest carries a deploy and, optionally, a signature produced by an
// external signer for it.
type SubmitRequest struct {
	Deploy    json.RawMessage `json:"deploy"`
	Signer    string          `json:"signer,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// DeployResponse is returned by the build endpoints.
type DeployResponse struct {
	Deploy     json.RawMessage `json:"deploy"`
	DeployHash string          `json:"deployHash"`
	EntryPoint string          `json:"entryPoint"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// SubmitResponse is returned when the node accepts a deploy.
type SubmitResponse struct {
	DeployHash string `json:"deployHash"`
}

// BalanceResponse is returned by the balance endpoints.
type BalanceResponse struct {
	Token     string `json:"token"`
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
	Decimals  uint8  `json:"decimals"`
	Candidate string `json:"candidate,omitempty"`
	Probes    int    `json:"probes,omitempty"`
}

// QuoteResponse is returned by the quote endpoint.
type QuoteResponse struct {
	TokenIn      string `json:"tokenIn,omitempty"`
	TokenOut     string `json:"tokenOut,omitempty"`
	AmountIn     string `json:"amountIn"`
	AmountOut    string `json:"amountOut"`
	MinAmountOut string `json:"minAmountOut"`
}

// StatusResponse is returned by the deploy status endpoint.
type StatusResponse struct {
	DeployHash   string `json:"deployHash"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	BlockHash    string `json:"blockHash,omitempty"`
	Cost         string `json:"cost,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information. Node is set when the node rejected
// the call.
type ErrorDetail struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Node    *NodeError `json:"node,omitempty"`
}

// NodeError is a JSON-RPC error object exactly as the node returned it.
type NodeError struct {
	Method  string          `json:"method"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// parser collects the first conversion error.
type parser struct {
	err error
}

func (p *parser) fail(field string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s: %v", dex.ErrInvalidInput, field, err)
	}
}

func (p *parser) amount(field, s string) *big.Int {
	if s == "" {
		return nil
	}
	n, err := parseAmount(s)
	if err != nil {
		p.fail(field, err)
		return nil
	}
	return n
}

func (p *parser) address(field, s string, def keys.Kind) keys.Address {
	if s == "" {
		return keys.Address{}
	}
	a, err := keys.ParseAddressAs(s, def)
	if err != nil {
		p.fail(field, err)
		return keys.Address{}
	}
	return a
}

func (p *parser) sender(s string) keys.PublicKey {
	if s == "" {
		p.fail("sender", fmt.Errorf("public key is required"))
		return keys.PublicKey{}
	}
	pub, err := keys.ParsePublicKey(s)
	if err != nil {
		p.fail("sender", err)
		return keys.PublicKey{}
	}
	return pub
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", s)
	}
	return n, nil
}

// parseOwner accepts an account hash (prefixed or bare) or a public key,
// which is converted to its account hash.
func parseOwner(s string) (keys.Address, error) {
	if pub, err := keys.ParsePublicKey(s); err == nil {
		return pub.AccountHash(), nil
	}
	a, err := keys.ParseAddressAs(s, keys.KindAccountHash)
	if err != nil {
		return keys.Address{}, err
	}
	if a.Kind != keys.KindAccountHash {
		return keys.Address{}, fmt.Errorf("%w: %s is not an account", keys.ErrInvalidAddress, s)
	}
	return a, nil
}

func deadline(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
