// Package dex composes argument encoding, deploy building, balance key
// resolution and the node gateway into the operations of the Ectoplasm DEX.
package dex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/rpc"
	"github.com/ectoplasm/dexclient/internal/observability/metrics"
	"github.com/ectoplasm/dexclient/internal/swapmath"
	"github.com/ectoplasm/dexclient/internal/validation"
)

// Common errors returned by the DEX service.
var (
	ErrUnknownToken   = errors.New("unknown token")
	ErrInvalidInput   = swapmath.ErrInvalidInput
	ErrInvalidPath    = errors.New("invalid swap path")
	ErrMissingSpender = errors.New("spender is required: no router contract hash configured")
	ErrNoContractHash = errors.New("token has no contract hash configured")
	ErrChainMismatch  = errors.New("deploy is for a different chain")
)

// Gateway is the part of the node client the service uses.
type Gateway interface {
	LatestStateRoot(ctx context.Context) (string, error)
	GetContractNamedKeys(ctx context.Context, stateRoot string, contract keys.Address) (rpc.NamedKeys, error)
	QueryDictionaryItem(ctx context.Context, stateRoot string, seed keys.Address, itemKey string) (*rpc.CLValue, error)
	GetAccountMainPurse(ctx context.Context, pub keys.PublicKey) (keys.Address, error)
	GetPurseBalance(ctx context.Context, stateRoot string, purse keys.Address) (*big.Int, error)
	SubmitDeploy(ctx context.Context, d *deploy.Deploy) (deploy.Hash, error)
	GetDeployInfo(ctx context.Context, hash deploy.Hash) (rpc.ExecutionResult, error)
	PollExecutionResult(ctx context.Context, hash deploy.Hash, attempts int, interval time.Duration) (rpc.ExecutionResult, error)
	GetStatus(ctx context.Context) (*rpc.NodeStatus, error)
}

// Submission describes an accepted deploy for history recording.
type Submission struct {
	Hash        deploy.Hash
	Operation   Operation
	EntryPoint  string
	Target      keys.Address
	Account     keys.PublicKey
	ChainName   string
	Payment     *big.Int
	SubmittedAt time.Time
}

// Recorder persists submissions and their outcomes. Recording failures never
// fail the chain operation.
type Recorder interface {
	RecordSubmission(ctx context.Context, s Submission) error
	RecordResult(ctx context.Context, hash deploy.Hash, res rpc.ExecutionResult) error
}

// Facade is the full set of DEX operations.
type Facade interface {
	Approve(ctx context.Context, req ApproveRequest) (*deploy.Deploy, error)
	Mint(ctx context.Context, req MintRequest) (*deploy.Deploy, error)
	Swap(ctx context.Context, req SwapRequest) (*deploy.Deploy, error)
	AddLiquidity(ctx context.Context, req AddLiquidityRequest) (*deploy.Deploy, error)
	RemoveLiquidity(ctx context.Context, req RemoveLiquidityRequest) (*deploy.Deploy, error)
	AttachSignature(d *deploy.Deploy, signerHex, signatureHex string) error
	Submit(ctx context.Context, d *deploy.Deploy) (deploy.Hash, error)
	Status(ctx context.Context, hash deploy.Hash) (rpc.ExecutionResult, error)
	Wait(ctx context.Context, hash deploy.Hash) (rpc.ExecutionResult, error)
	TokenBalance(ctx context.Context, symbol string, account keys.Address) (*Balance, error)
	NativeBalance(ctx context.Context, pub keys.PublicKey) (*big.Int, error)
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	Tokens() []Token
	CheckNode(ctx context.Context) (*rpc.NodeStatus, error)
}

// Service implements Facade. It holds no mutable state besides its
// collaborators; concurrent calls do not share requests or responses.
type Service struct {
	cfg      Config
	gw       Gateway
	builder  *deploy.Builder
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

var _ Facade = (*Service)(nil)

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithRecorder sets the history recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a DEX service.
func New(cfg Config, gw Gateway, opts ...Option) *Service {
	s := &Service{
		cfg: cfg,
		gw:  gw,
		builder: &deploy.Builder{
			ChainName: cfg.ChainName,
			GasPrice:  cfg.GasPrice,
			TTL:       cfg.TTL,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	if s.builder.TTL <= 0 {
		s.builder.TTL = deploy.DefaultTTL
	}
	if s.builder.GasPrice == 0 {
		s.builder.GasPrice = deploy.DefaultGasPrice
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Tokens returns the configured tokens.
func (s *Service) Tokens() []Token {
	return s.cfg.Tokens()
}

// AttachSignature adds an approval produced by an external signer.
func (s *Service) AttachSignature(d *deploy.Deploy, signerHex, signatureHex string) error {
	return d.AddApproval(signerHex, signatureHex)
}

// Submit verifies the deploy's approvals and sends it. A node rejection is
// returned as *rpc.RPCError and never retried.
func (s *Service) Submit(ctx context.Context, d *deploy.Deploy) (deploy.Hash, error) {
	if d.Header.ChainName != s.cfg.ChainName {
		metrics.DeploySubmit("rejected")
		return deploy.Hash{}, fmt.Errorf("%w: %q, expected %q", ErrChainMismatch, d.Header.ChainName, s.cfg.ChainName)
	}
	if err := d.Verify(); err != nil {
		metrics.DeploySubmit("rejected")
		return deploy.Hash{}, fmt.Errorf("verifying deploy: %w", err)
	}

	hash, err := s.gw.SubmitDeploy(ctx, d)
	if err != nil {
		metrics.DeploySubmit("error")
		return deploy.Hash{}, err
	}
	metrics.DeploySubmit("accepted")
	if hash != d.Hash {
		s.logger.Warn("node returned a different deploy hash", "local", d.Hash.String(), "node", hash.String())
	}

	if s.recorder != nil {
		sub := Submission{
			Hash:        hash,
			Operation:   OperationForEntryPoint(d.Session.EntryPoint()),
			EntryPoint:  d.Session.EntryPoint(),
			Account:     d.Header.Account,
			ChainName:   d.Header.ChainName,
			SubmittedAt: s.now().UTC(),
		}
		if sv := d.Session.StoredVersionedContractByHash; sv != nil {
			sub.Target = keys.NewContractPackageHash(sv.Hash)
		}
		if amt, err := d.PaymentAmount(); err == nil {
			sub.Payment = amt
		}
		if err := s.recorder.RecordSubmission(ctx, sub); err != nil {
			s.logger.Warn("recording submission failed", "deploy_hash", hash.String(), "error", err)
		}
	}
	return hash, nil
}

// Status queries a deploy once.
func (s *Service) Status(ctx context.Context, hash deploy.Hash) (rpc.ExecutionResult, error) {
	res, err := s.gw.GetDeployInfo(ctx, hash)
	if err != nil {
		return rpc.ExecutionResult{}, err
	}
	if res.Executed() {
		s.record(ctx, hash, res)
	}
	return res, nil
}

// Wait polls until the deploy executes or the configured attempts run out.
// An execution failure is a normal result carrying the node's message.
func (s *Service) Wait(ctx context.Context, hash deploy.Hash) (rpc.ExecutionResult, error) {
	res, err := s.gw.PollExecutionResult(ctx, hash, s.cfg.PollAttempts, s.cfg.PollInterval)
	if err != nil {
		return rpc.ExecutionResult{}, err
	}
	metrics.DeployResult(string(res.Status))
	s.record(ctx, hash, res)
	return res, nil
}

func (s *Service) record(ctx context.Context, hash deploy.Hash, res rpc.ExecutionResult) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordResult(ctx, hash, res); err != nil {
		s.logger.Warn("recording result failed", "deploy_hash", hash.String(), "error", err)
	}
}

// CheckNode fetches the node status and checks its API version against the
// configured minimum.
func (s *Service) CheckNode(ctx context.Context) (*rpc.NodeStatus, error) {
	st, err := s.gw.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.CheckNodeAPIVersion(st.APIVersion, s.cfg.MinAPIVersion); err != nil {
		return st, err
	}
	return st, nil
}

// QuoteRequest asks for the output of a swap against explicit reserves.
type QuoteRequest struct {
	TokenIn     string
	TokenOut    string
	AmountIn    *big.Int
	ReserveIn   *big.Int
	ReserveOut  *big.Int
	SlippageBps uint32
}

// Quote is the result of a constant product quote.
type Quote struct {
	TokenIn      string   `json:"tokenIn,omitempty"`
	TokenOut     string   `json:"tokenOut,omitempty"`
	AmountIn     *big.Int `json:"amountIn"`
	AmountOut    *big.Int `json:"amountOut"`
	MinAmountOut *big.Int `json:"minAmountOut"`
}

// Quote computes the expected output of a swap. Symbols are optional but must
// be known when given.
func (s *Service) Quote(_ context.Context, req QuoteRequest) (*Quote, error) {
	for _, sym := range []string{req.TokenIn, req.TokenOut} {
		if sym == "" {
			continue
		}
		if _, err := s.cfg.Token(sym); err != nil {
			return nil, err
		}
	}
	out, err := swapmath.QuoteOut(req.AmountIn, req.ReserveIn, req.ReserveOut)
	if err != nil {
		return nil, err
	}
	minOut, err := swapmath.MinOut(out, req.SlippageBps)
	if err != nil {
		return nil, err
	}
	return &Quote{
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     new(big.Int).Set(req.AmountIn),
		AmountOut:    out,
		MinAmountOut: minOut,
	}, nil
}
