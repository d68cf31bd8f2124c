package dex

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/rpc"
)

// LoggingMiddleware returns a facade middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Facade) Facade {
	return func(next Facade) Facade {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Facade
	logger *slog.Logger
}

func deployHash(d *deploy.Deploy) string {
	if d == nil {
		return ""
	}
	return d.Hash.String()
}

func entryPoint(d *deploy.Deploy) string {
	if d == nil {
		return ""
	}
	return d.Session.EntryPoint()
}

func (m *loggingMiddleware) Approve(ctx context.Context, req ApproveRequest) (*deploy.Deploy, error) {
	start := time.Now()
	d, err := m.next.Approve(ctx, req)
	m.logger.Info("Approve",
		"token", req.Token,
		"amount", req.Amount,
		"deploy_hash", deployHash(d),
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) Mint(ctx context.Context, req MintRequest) (*deploy.Deploy, error) {
	start := time.Now()
	d, err := m.next.Mint(ctx, req)
	m.logger.Info("Mint",
		"token", req.Token,
		"amount", req.Amount,
		"deploy_hash", deployHash(d),
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) Swap(ctx context.Context, req SwapRequest) (*deploy.Deploy, error) {
	start := time.Now()
	d, err := m.next.Swap(ctx, req)
	m.logger.Info("Swap",
		"path", req.Path,
		"amount_in", req.AmountIn,
		"amount_out_min", req.AmountOutMin,
		"deploy_hash", deployHash(d),
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) AddLiquidity(ctx context.Context, req AddLiquidityRequest) (*deploy.Deploy, error) {
	start := time.Now()
	d, err := m.next.AddLiquidity(ctx, req)
	m.logger.Info("AddLiquidity",
		"token_a", req.TokenA,
		"token_b", req.TokenB,
		"deploy_hash", deployHash(d),
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) RemoveLiquidity(ctx context.Context, req RemoveLiquidityRequest) (*deploy.Deploy, error) {
	start := time.Now()
	d, err := m.next.RemoveLiquidity(ctx, req)
	m.logger.Info("RemoveLiquidity",
		"token_a", req.TokenA,
		"token_b", req.TokenB,
		"liquidity", req.Liquidity,
		"deploy_hash", deployHash(d),
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) AttachSignature(d *deploy.Deploy, signerHex, signatureHex string) error {
	err := m.next.AttachSignature(d, signerHex, signatureHex)
	m.logger.Debug("AttachSignature",
		"deploy_hash", deployHash(d),
		"signer", signerHex,
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) Submit(ctx context.Context, d *deploy.Deploy) (deploy.Hash, error) {
	start := time.Now()
	hash, err := m.next.Submit(ctx, d)
	m.logger.Info("Submit",
		"deploy_hash", deployHash(d),
		"entry_point", entryPoint(d),
		"duration", time.Since(start),
		"error", err,
	)
	return hash, err
}

func (m *loggingMiddleware) Status(ctx context.Context, hash deploy.Hash) (rpc.ExecutionResult, error) {
	start := time.Now()
	res, err := m.next.Status(ctx, hash)
	m.logger.Debug("Status",
		"deploy_hash", hash.String(),
		"status", res.Status,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) Wait(ctx context.Context, hash deploy.Hash) (rpc.ExecutionResult, error) {
	start := time.Now()
	res, err := m.next.Wait(ctx, hash)
	m.logger.Info("Wait",
		"deploy_hash", hash.String(),
		"status", res.Status,
		"attempts", res.Attempts,
		"execution_error", res.ErrorMessage,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) TokenBalance(ctx context.Context, symbol string, account keys.Address) (*Balance, error) {
	start := time.Now()
	bal, err := m.next.TokenBalance(ctx, symbol, account)
	attrs := []any{
		"token", symbol,
		"account", account.String(),
		"duration", time.Since(start),
		"error", err,
	}
	if bal != nil {
		attrs = append(attrs, "probes", bal.Probes, "resolved", bal.Candidate != "")
	}
	m.logger.Debug("TokenBalance", attrs...)
	return bal, err
}

func (m *loggingMiddleware) NativeBalance(ctx context.Context, pub keys.PublicKey) (*big.Int, error) {
	start := time.Now()
	bal, err := m.next.NativeBalance(ctx, pub)
	m.logger.Debug("NativeBalance",
		"public_key", pub.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return bal, err
}

func (m *loggingMiddleware) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	start := time.Now()
	q, err := m.next.Quote(ctx, req)
	m.logger.Debug("Quote",
		"token_in", req.TokenIn,
		"token_out", req.TokenOut,
		"amount_in", req.AmountIn,
		"duration", time.Since(start),
		"error", err,
	)
	return q, err
}

func (m *loggingMiddleware) Tokens() []Token {
	return m.next.Tokens()
}

func (m *loggingMiddleware) CheckNode(ctx context.Context) (*rpc.NodeStatus, error) {
	start := time.Now()
	st, err := m.next.CheckNode(ctx)
	attrs := []any{"duration", time.Since(start), "error", err}
	if st != nil {
		attrs = append(attrs, "api_version", st.APIVersion, "chainspec", st.ChainspecName)
	}
	m.logger.Info("CheckNode", attrs...)
	return st, err
}
