package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/time/rate"

	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/rpc"
	"github.com/ectoplasm/dexclient/internal/observability/metrics"
)

// Named keys that may hold a token's balances dictionary, in priority order.
var balanceDictionaries = []string{"balances", "state"}

// Balance is a resolved token balance. Candidate is empty when no key matched,
// in which case Amount is zero.
type Balance struct {
	Token     string   `json:"token"`
	Account   string   `json:"account"`
	Amount    *big.Int `json:"amount"`
	Candidate string   `json:"candidate,omitempty"`
	Probes    int      `json:"probes"`
}

// TokenBalance resolves the balance of account (an account hash) for the
// token with the given symbol.
func (s *Service) TokenBalance(ctx context.Context, symbol string, account keys.Address) (*Balance, error) {
	token, err := s.cfg.Token(symbol)
	if err != nil {
		return nil, err
	}
	return s.ResolveBalance(ctx, token, account)
}

// ResolveBalance probes the token's balances dictionary with the ordered key
// candidates, paced to respect node rate limits. The first candidate whose
// value decodes as an integer wins. Exhausting the candidates yields zero.
func (s *Service) ResolveBalance(ctx context.Context, token Token, account keys.Address) (*Balance, error) {
	if account.Kind != keys.KindAccountHash {
		return nil, fmt.Errorf("%w: balance owner must be an account hash, got %s", ErrInvalidInput, account.Kind)
	}
	if token.Contract.IsZero() {
		return nil, fmt.Errorf("%s: %w", token.Symbol, ErrNoContractHash)
	}

	bal := &Balance{Token: token.Symbol, Account: account.String(), Amount: new(big.Int)}

	stateRoot, err := s.gw.LatestStateRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("state root: %w", err)
	}
	namedKeys, err := s.gw.GetContractNamedKeys(ctx, stateRoot, token.Contract)
	if err != nil {
		return nil, fmt.Errorf("%s named keys: %w", token.Symbol, err)
	}

	seed, ok := findDictionary(namedKeys)
	if !ok {
		s.logger.Warn("token has no balances dictionary", "token", token.Symbol, "contract", token.Contract.String())
		metrics.BalanceResolve(token.Symbol, "no_dictionary")
		return bal, nil
	}

	// one limiter per call; concurrent balance queries share nothing
	limit := rate.Inf
	if s.cfg.ProbeDelay > 0 {
		limit = rate.Every(s.cfg.ProbeDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, c := range s.cfg.Resolver.Candidates(account.Hash) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		bal.Probes++

		v, err := s.gw.QueryDictionaryItem(ctx, stateRoot, seed, c.Key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if rpc.IsNotFound(err) {
				metrics.BalanceProbe(string(c.Kind), "miss")
			} else {
				metrics.BalanceProbe(string(c.Kind), "error")
			}
			s.logger.Debug("balance candidate missed", "token", token.Symbol, "candidate", c.String(), "error", err)
			continue
		}

		amount, err := rpc.DecodeCLInteger(*v)
		if err != nil {
			metrics.BalanceProbe(string(c.Kind), "undecodable")
			s.logger.Debug("balance candidate undecodable", "token", token.Symbol, "candidate", c.String(), "error", err)
			continue
		}

		metrics.BalanceProbe(string(c.Kind), "hit")
		metrics.BalanceResolve(token.Symbol, "found")
		s.logger.Info("balance resolved", "token", token.Symbol, "candidate", c.String(), "probes", bal.Probes)
		bal.Amount = amount
		bal.Candidate = c.Key
		return bal, nil
	}

	metrics.BalanceResolve(token.Symbol, "exhausted")
	return bal, nil
}

func findDictionary(nk rpc.NamedKeys) (keys.Address, bool) {
	for _, name := range balanceDictionaries {
		a, err := nk.Lookup(name)
		if err == nil && a.Kind == keys.KindURef {
			return a, true
		}
	}
	return keys.Address{}, false
}

// NativeBalance returns the motes in the main purse of the account owning
// pub. An account unknown to the node has a zero balance.
func (s *Service) NativeBalance(ctx context.Context, pub keys.PublicKey) (*big.Int, error) {
	purse, err := s.gw.GetAccountMainPurse(ctx, pub)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("main purse: %w", err)
	}
	stateRoot, err := s.gw.LatestStateRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("state root: %w", err)
	}
	return s.gw.GetPurseBalance(ctx, stateRoot, purse)
}
