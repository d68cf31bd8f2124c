package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ectoplasm/dexclient/internal/casper/clvalue"
	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/observability/metrics"
)

// Operation names one of the five DEX calls.
type Operation string

const (
	OpApprove         Operation = "approve"
	OpMint            Operation = "mint"
	OpSwap            Operation = "swap"
	OpAddLiquidity    Operation = "add_liquidity"
	OpRemoveLiquidity Operation = "remove_liquidity"
	OpUnknown         Operation = "unknown"
)

const motesPerCSPR = 1_000_000_000

type operationSpec struct {
	entryPoint string
	gasCSPR    int64
}

var operations = map[Operation]operationSpec{
	OpApprove:         {entryPoint: "approve", gasCSPR: 3},
	OpMint:            {entryPoint: "mint", gasCSPR: 5},
	OpSwap:            {entryPoint: "swap_exact_tokens_for_tokens", gasCSPR: 15},
	OpAddLiquidity:    {entryPoint: "add_liquidity", gasCSPR: 20},
	OpRemoveLiquidity: {entryPoint: "remove_liquidity", gasCSPR: 15},
}

// EntryPoint returns the contract entry point called by op.
func (op Operation) EntryPoint() string {
	return operations[op].entryPoint
}

// Payment returns the gas budget of op in motes.
func (op Operation) Payment() *big.Int {
	return new(big.Int).Mul(big.NewInt(operations[op].gasCSPR), big.NewInt(motesPerCSPR))
}

// OperationForEntryPoint maps an entry point back to its operation.
func OperationForEntryPoint(entryPoint string) Operation {
	for op, spec := range operations {
		if spec.entryPoint == entryPoint {
			return op
		}
	}
	return OpUnknown
}

// ApproveRequest lets Spender move Amount of Token on the sender's behalf.
// Spender defaults to the router contract.
type ApproveRequest struct {
	Token   string
	Spender keys.Address
	Amount  *big.Int
	Sender  keys.PublicKey
}

// MintRequest mints Amount of Token to To (default: the sender's account).
// Only works for accounts holding minter rights.
type MintRequest struct {
	Token  string
	To     keys.Address
	Amount *big.Int
	Sender keys.PublicKey
}

// SwapRequest swaps an exact input along Path, a list of token symbols.
type SwapRequest struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []string
	To           keys.Address
	Deadline     time.Time
	DeadlineIn   time.Duration
	Sender       keys.PublicKey
}

// AddLiquidityRequest deposits a token pair into its pool.
type AddLiquidityRequest struct {
	TokenA         string
	TokenB         string
	AmountADesired *big.Int
	AmountBDesired *big.Int
	AmountAMin     *big.Int
	AmountBMin     *big.Int
	To             keys.Address
	Deadline       time.Time
	DeadlineIn     time.Duration
	Sender         keys.PublicKey
}

// RemoveLiquidityRequest burns Liquidity pool tokens for the underlying pair.
type RemoveLiquidityRequest struct {
	TokenA     string
	TokenB     string
	Liquidity  *big.Int
	AmountAMin *big.Int
	AmountBMin *big.Int
	To         keys.Address
	Deadline   time.Time
	DeadlineIn time.Duration
	Sender     keys.PublicKey
}

// Approve builds an unsigned approve deploy against the token package.
func (s *Service) Approve(_ context.Context, req ApproveRequest) (*deploy.Deploy, error) {
	token, err := s.cfg.Token(req.Token)
	if err != nil {
		return s.failed(OpApprove, err)
	}
	spender := req.Spender
	if spender.IsZero() {
		if s.cfg.RouterContract.IsZero() {
			return s.failed(OpApprove, ErrMissingSpender)
		}
		spender = s.cfg.RouterContract
	}
	if err := amounts(named{"amount", req.Amount}); err != nil {
		return s.failed(OpApprove, err)
	}

	args, err := buildArgs(
		arg{"spender", spender},
		arg{"amount", clvalue.NewU256(req.Amount)},
	)
	if err != nil {
		return s.failed(OpApprove, err)
	}
	return s.build(OpApprove, token.Package, args, req.Sender, s.now())
}

// Mint builds an unsigned mint deploy against the token package.
func (s *Service) Mint(_ context.Context, req MintRequest) (*deploy.Deploy, error) {
	token, err := s.cfg.Token(req.Token)
	if err != nil {
		return s.failed(OpMint, err)
	}
	if err := amounts(named{"amount", req.Amount}); err != nil {
		return s.failed(OpMint, err)
	}

	args, err := buildArgs(
		arg{"to", s.recipient(req.To, req.Sender)},
		arg{"amount", clvalue.NewU256(req.Amount)},
	)
	if err != nil {
		return s.failed(OpMint, err)
	}
	return s.build(OpMint, token.Package, args, req.Sender, s.now())
}

// Swap builds an unsigned swap_exact_tokens_for_tokens deploy against the router.
func (s *Service) Swap(_ context.Context, req SwapRequest) (*deploy.Deploy, error) {
	if len(req.Path) < 2 {
		return s.failed(OpSwap, fmt.Errorf("%w: need at least two tokens, got %d", ErrInvalidPath, len(req.Path)))
	}
	path := make(clvalue.KeyList, 0, len(req.Path))
	for i, sym := range req.Path {
		token, err := s.cfg.Token(sym)
		if err != nil {
			return s.failed(OpSwap, err)
		}
		if i > 0 && path[i-1] == token.Package {
			return s.failed(OpSwap, fmt.Errorf("%w: %s follows itself", ErrInvalidPath, token.Symbol))
		}
		path = append(path, token.Package)
	}
	if err := amounts(named{"amount_in", req.AmountIn}, named{"amount_out_min", req.AmountOutMin}); err != nil {
		return s.failed(OpSwap, err)
	}

	now := s.now()
	args, err := buildArgs(
		arg{"amount_in", clvalue.NewU256(req.AmountIn)},
		arg{"amount_out_min", clvalue.NewU256(req.AmountOutMin)},
		arg{"path", path},
		arg{"to", s.recipient(req.To, req.Sender)},
		arg{"deadline", s.deadline(req.Deadline, req.DeadlineIn, now)},
	)
	if err != nil {
		return s.failed(OpSwap, err)
	}
	return s.build(OpSwap, s.cfg.RouterPackage, args, req.Sender, now)
}

// AddLiquidity builds an unsigned add_liquidity deploy against the router.
func (s *Service) AddLiquidity(_ context.Context, req AddLiquidityRequest) (*deploy.Deploy, error) {
	a, b, err := s.pair(req.TokenA, req.TokenB)
	if err != nil {
		return s.failed(OpAddLiquidity, err)
	}
	if err := amounts(
		named{"amount_a_desired", req.AmountADesired},
		named{"amount_b_desired", req.AmountBDesired},
		named{"amount_a_min", req.AmountAMin},
		named{"amount_b_min", req.AmountBMin},
	); err != nil {
		return s.failed(OpAddLiquidity, err)
	}

	now := s.now()
	args, err := buildArgs(
		arg{"token_a", a.Package},
		arg{"token_b", b.Package},
		arg{"amount_a_desired", clvalue.NewU256(req.AmountADesired)},
		arg{"amount_b_desired", clvalue.NewU256(req.AmountBDesired)},
		arg{"amount_a_min", clvalue.NewU256(req.AmountAMin)},
		arg{"amount_b_min", clvalue.NewU256(req.AmountBMin)},
		arg{"to", s.recipient(req.To, req.Sender)},
		arg{"deadline", s.deadline(req.Deadline, req.DeadlineIn, now)},
	)
	if err != nil {
		return s.failed(OpAddLiquidity, err)
	}
	return s.build(OpAddLiquidity, s.cfg.RouterPackage, args, req.Sender, now)
}

// RemoveLiquidity builds an unsigned remove_liquidity deploy against the router.
func (s *Service) RemoveLiquidity(_ context.Context, req RemoveLiquidityRequest) (*deploy.Deploy, error) {
	a, b, err := s.pair(req.TokenA, req.TokenB)
	if err != nil {
		return s.failed(OpRemoveLiquidity, err)
	}
	if err := amounts(
		named{"liquidity", req.Liquidity},
		named{"amount_a_min", req.AmountAMin},
		named{"amount_b_min", req.AmountBMin},
	); err != nil {
		return s.failed(OpRemoveLiquidity, err)
	}

	now := s.now()
	args, err := buildArgs(
		arg{"token_a", a.Package},
		arg{"token_b", b.Package},
		arg{"liquidity", clvalue.NewU256(req.Liquidity)},
		arg{"amount_a_min", clvalue.NewU256(req.AmountAMin)},
		arg{"amount_b_min", clvalue.NewU256(req.AmountBMin)},
		arg{"to", s.recipient(req.To, req.Sender)},
		arg{"deadline", s.deadline(req.Deadline, req.DeadlineIn, now)},
	)
	if err != nil {
		return s.failed(OpRemoveLiquidity, err)
	}
	return s.build(OpRemoveLiquidity, s.cfg.RouterPackage, args, req.Sender, now)
}

func (s *Service) build(op Operation, target keys.Address, args *clvalue.Args, sender keys.PublicKey, now time.Time) (*deploy.Deploy, error) {
	d, err := s.builder.Build(deploy.BuildParams{
		Target:       target,
		EntryPoint:   op.EntryPoint(),
		Args:         args,
		PaymentMotes: op.Payment(),
		Account:      sender,
		Now:          now,
	})
	if err != nil {
		return s.failed(op, err)
	}
	metrics.DeployBuild(string(op), "ok")
	return d, nil
}

func (s *Service) failed(op Operation, err error) (*deploy.Deploy, error) {
	metrics.DeployBuild(string(op), "error")
	return nil, fmt.Errorf("%s: %w", op, err)
}

func (s *Service) pair(symA, symB string) (Token, Token, error) {
	a, err := s.cfg.Token(symA)
	if err != nil {
		return Token{}, Token{}, err
	}
	b, err := s.cfg.Token(symB)
	if err != nil {
		return Token{}, Token{}, err
	}
	if a.Package == b.Package {
		return Token{}, Token{}, fmt.Errorf("%w: token_a and token_b are both %s", ErrInvalidInput, a.Symbol)
	}
	return a, b, nil
}

// recipient defaults to the sender's own account.
func (s *Service) recipient(to keys.Address, sender keys.PublicKey) keys.Address {
	if !to.IsZero() || sender.IsZero() {
		return to
	}
	return sender.AccountHash()
}

// deadline is encoded as U64 milliseconds since the epoch. An absolute d wins;
// otherwise it is now plus in, or the instant the deploy header expires.
func (s *Service) deadline(d time.Time, in time.Duration, now time.Time) clvalue.U64 {
	switch {
	case !d.IsZero():
	case in > 0:
		d = now.Add(in)
	default:
		d = now.Add(s.builder.TTL)
	}
	return clvalue.U64(d.UnixMilli())
}

type arg struct {
	name  string
	value any
}

// buildArgs encodes args in the order given.
func buildArgs(in ...arg) (*clvalue.Args, error) {
	args := clvalue.NewArgs()
	for _, a := range in {
		if err := args.Add(a.name, a.value); err != nil {
			return nil, err
		}
	}
	return args, nil
}

type named struct {
	name  string
	value *big.Int
}

func amounts(in ...named) error {
	for _, n := range in {
		if n.value == nil {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, n.name)
		}
		if n.value.Sign() < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, n.name)
		}
	}
	return nil
}
