package dex

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ectoplasm/dexclient/internal/balancekey"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/config"
	"github.com/ectoplasm/dexclient/internal/validation"
)

// Token is a known CEP-18 token. Package is the stable hash used in deploys
// and router paths; Contract is the current version, needed to read state.
type Token struct {
	Symbol   string       `json:"symbol"`
	Package  keys.Address `json:"packageHash"`
	Contract keys.Address `json:"contractHash,omitzero"`
	Decimals uint8        `json:"decimals"`
}

// Config is the parsed, immutable configuration of a Service.
type Config struct {
	ChainName      string
	RouterPackage  keys.Address
	RouterContract keys.Address
	Factory        keys.Address
	TTL            time.Duration
	GasPrice       uint64
	ProbeDelay     time.Duration
	Resolver       balancekey.Resolver
	PollAttempts   int
	PollInterval   time.Duration
	MinAPIVersion  string

	tokens map[string]Token
}

// NewConfig parses the string form of the chain configuration.
func NewConfig(c config.ChainConfig) (Config, error) {
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	if err := validation.ValidateChainName(c.ChainName); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ChainName:     c.ChainName,
		TTL:           time.Duration(c.DeployTTLMinutes) * time.Minute,
		GasPrice:      c.GasPrice,
		ProbeDelay:    time.Duration(c.BalanceProbeDelayMS) * time.Millisecond,
		Resolver:      balancekey.New(c.BalanceSlotIndex, c.BalanceSweepMax),
		PollAttempts:  c.PollAttempts,
		PollInterval:  time.Duration(c.PollIntervalMS) * time.Millisecond,
		MinAPIVersion: c.MinNodeAPIVersion,
		tokens:        make(map[string]Token, len(c.Tokens)),
	}

	var errs []error
	parse := func(field, s string, kind keys.Kind, required bool) keys.Address {
		if s == "" {
			if required {
				errs = append(errs, fmt.Errorf("%s is required", field))
			}
			return keys.Address{}
		}
		a, err := keys.ParseAddressAs(s, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return keys.Address{}
		}
		return a
	}

	cfg.RouterPackage = asPackage(parse("router package hash", c.RouterPackageHash, keys.KindContractPackageHash, true))
	cfg.RouterContract = parse("router contract hash", c.RouterContractHash, keys.KindContractHash, false)
	cfg.Factory = parse("factory contract hash", c.FactoryContractHash, keys.KindContractHash, false)

	for _, t := range c.Tokens {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if err := validation.ValidateTokenSymbol(sym); err != nil {
			errs = append(errs, err)
			continue
		}
		if t.PackageHash == "" {
			// token declared without hashes on this network
			continue
		}
		if t.Decimals < 0 || t.Decimals > 255 {
			errs = append(errs, fmt.Errorf("%s decimals out of range: %d", sym, t.Decimals))
			continue
		}
		cfg.tokens[sym] = Token{
			Symbol:   sym,
			Package:  asPackage(parse(sym+" package hash", t.PackageHash, keys.KindContractPackageHash, true)),
			Contract: parse(sym+" contract hash", t.ContractHash, keys.KindContractHash, false),
			Decimals: uint8(t.Decimals),
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// asPackage treats a "hash-" prefixed package hash, as the deploy env files
// write them, as a package hash.
func asPackage(a keys.Address) keys.Address {
	if a.Kind == keys.KindContractHash {
		a.Kind = keys.KindContractPackageHash
	}
	return a
}

// WithToken returns a copy of c that also knows t.
func (c Config) WithToken(t Token) Config {
	tokens := make(map[string]Token, len(c.tokens)+1)
	for k, v := range c.tokens {
		tokens[k] = v
	}
	t.Symbol = strings.ToUpper(t.Symbol)
	tokens[t.Symbol] = t
	c.tokens = tokens
	return c
}

// Token looks up a token by symbol, case-insensitively.
func (c Config) Token(symbol string) (Token, error) {
	t, ok := c.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
	}
	return t, nil
}

// Tokens returns the configured tokens sorted by symbol.
func (c Config) Tokens() []Token {
	out := make([]Token, 0, len(c.tokens))
	for _, t := range c.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
