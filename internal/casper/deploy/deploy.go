// Package deploy assembles Casper deploys: header, standard payment and a
// session call against a contract package, hashed canonically and ready for
// an external signer.
package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ectoplasm/dexclient/internal/casper/clvalue"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
)

const (
	DefaultTTL      = 30 * time.Minute
	DefaultGasPrice = 1

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	ErrInvalidTarget     = errors.New("session target must be a contract package hash")
	ErrMissingEntryPoint = errors.New("entry point is required")
	ErrInvalidPayment    = errors.New("payment must be positive")
	ErrMissingAccount    = errors.New("account public key is required")
	ErrMissingChainName  = errors.New("chain name is required")
	ErrMissingTimestamp  = errors.New("timestamp is required")
)

// Header is the signed part of a deploy.
type Header struct {
	Account      keys.PublicKey
	Timestamp    time.Time
	TTL          time.Duration
	GasPrice     uint64
	BodyHash     Hash
	Dependencies []Hash
	ChainName    string
}

// Bytes returns the canonical header serialization. Its blake2b digest is the
// deploy hash.
func (h Header) Bytes() []byte {
	buf := h.Account.Bytes()
	buf = clvalue.AppendU64(buf, uint64(h.Timestamp.UnixMilli()))
	buf = clvalue.AppendU64(buf, uint64(h.TTL.Milliseconds()))
	buf = clvalue.AppendU64(buf, h.GasPrice)
	buf = append(buf, h.BodyHash[:]...)
	buf = clvalue.AppendU32(buf, uint32(len(h.Dependencies)))
	for _, d := range h.Dependencies {
		buf = append(buf, d[:]...)
	}
	return clvalue.AppendString(buf, h.ChainName)
}

type headerJSON struct {
	Account      keys.PublicKey `json:"account"`
	Timestamp    string         `json:"timestamp"`
	TTL          string         `json:"ttl"`
	GasPrice     uint64         `json:"gas_price"`
	BodyHash     Hash           `json:"body_hash"`
	Dependencies []Hash         `json:"dependencies"`
	ChainName    string         `json:"chain_name"`
}

func (h Header) MarshalJSON() ([]byte, error) {
	deps := h.Dependencies
	if deps == nil {
		deps = []Hash{}
	}
	return json.Marshal(headerJSON{
		Account:      h.Account,
		Timestamp:    h.Timestamp.UTC().Format(timestampLayout),
		TTL:          FormatTTL(h.TTL),
		GasPrice:     h.GasPrice,
		BodyHash:     h.BodyHash,
		Dependencies: deps,
		ChainName:    h.ChainName,
	})
}

func (h *Header) UnmarshalJSON(b []byte) error {
	var raw headerJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	ttl, err := ParseTTL(raw.TTL)
	if err != nil {
		return err
	}
	*h = Header{
		Account:      raw.Account,
		Timestamp:    ts.UTC(),
		TTL:          ttl,
		GasPrice:     raw.GasPrice,
		BodyHash:     raw.BodyHash,
		Dependencies: raw.Dependencies,
		ChainName:    raw.ChainName,
	}
	return nil
}

// Approval is one signature over the deploy hash. Signature carries the
// algorithm tag byte in front of the raw signature.
type Approval struct {
	Signer    keys.PublicKey `json:"signer"`
	Signature string         `json:"signature"`
}

// Deploy is a built deploy. It must not be mutated after Build except by
// appending approvals.
type Deploy struct {
	Hash      Hash                 `json:"hash"`
	Header    Header               `json:"header"`
	Payment   ExecutableDeployItem `json:"payment"`
	Session   ExecutableDeployItem `json:"session"`
	Approvals []Approval           `json:"approvals"`
}

// MarshalJSON keeps approvals as [] rather than null.
func (d *Deploy) MarshalJSON() ([]byte, error) {
	type alias Deploy
	out := alias(*d)
	if out.Approvals == nil {
		out.Approvals = []Approval{}
	}
	return json.Marshal(out)
}

// Unmarshal parses a deploy from JSON, accepting both the bare deploy and the
// {"deploy": ...} envelope used by account_put_deploy.
func Unmarshal(b []byte) (*Deploy, error) {
	var env struct {
		Deploy json.RawMessage `json:"deploy"`
	}
	if err := json.Unmarshal(b, &env); err == nil && len(env.Deploy) > 0 {
		b = env.Deploy
	}
	var d Deploy
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode deploy: %w", err)
	}
	return &d, nil
}

// Expiry returns the time after which the node rejects the deploy.
func (d *Deploy) Expiry() time.Time {
	return d.Header.Timestamp.Add(d.Header.TTL)
}

// PaymentAmount decodes the standard payment amount.
func (d *Deploy) PaymentAmount() (*big.Int, error) {
	arg, ok := d.Payment.Args().Get("amount")
	if !ok {
		return nil, errors.New("payment has no amount argument")
	}
	return arg.Uint()
}

// Builder produces deploys for one chain.
type Builder struct {
	ChainName string
	GasPrice  uint64
	TTL       time.Duration
}

// NewBuilder returns a builder with the default gas price and TTL.
func NewBuilder(chainName string) *Builder {
	return &Builder{ChainName: chainName, GasPrice: DefaultGasPrice, TTL: DefaultTTL}
}

// BuildParams describes one session call.
type BuildParams struct {
	// Target must be a contract package hash; the latest version is invoked.
	Target       keys.Address
	EntryPoint   string
	Args         *clvalue.Args
	PaymentMotes *big.Int
	Account      keys.PublicKey
	// Now is read once by the caller and reused for any deadline argument.
	Now time.Time
}

// Build assembles and hashes a deploy. It performs no I/O.
func (b *Builder) Build(p BuildParams) (*Deploy, error) {
	if b.ChainName == "" {
		return nil, ErrMissingChainName
	}
	if p.Target.Kind != keys.KindContractPackageHash {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTarget, p.Target.Kind)
	}
	if p.EntryPoint == "" {
		return nil, ErrMissingEntryPoint
	}
	if p.PaymentMotes == nil || p.PaymentMotes.Sign() <= 0 {
		return nil, ErrInvalidPayment
	}
	if p.Account.IsZero() {
		return nil, ErrMissingAccount
	}
	if p.Now.IsZero() {
		return nil, ErrMissingTimestamp
	}

	paymentArgs := clvalue.NewArgs()
	if err := paymentArgs.Add("amount", clvalue.NewU512(p.PaymentMotes)); err != nil {
		return nil, err
	}
	sessionArgs := p.Args
	if sessionArgs == nil {
		sessionArgs = clvalue.NewArgs()
	}

	payment := ExecutableDeployItem{ModuleBytes: &ModuleBytes{ModuleBytes: hexBytes{}, Args: paymentArgs}}
	session := ExecutableDeployItem{StoredVersionedContractByHash: &StoredVersionedContractByHash{
		Hash:       Hash(p.Target.Hash),
		EntryPoint: p.EntryPoint,
		Args:       sessionArgs,
	}}

	bodyHash, err := BodyHash(payment, session)
	if err != nil {
		return nil, err
	}

	gasPrice := b.GasPrice
	if gasPrice == 0 {
		gasPrice = DefaultGasPrice
	}
	ttl := b.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	header := Header{
		Account:      p.Account,
		Timestamp:    time.UnixMilli(p.Now.UnixMilli()).UTC(),
		TTL:          ttl,
		GasPrice:     gasPrice,
		BodyHash:     bodyHash,
		Dependencies: []Hash{},
		ChainName:    b.ChainName,
	}

	return &Deploy{
		Hash:      HeaderHash(header),
		Header:    header,
		Payment:   payment,
		Session:   session,
		Approvals: []Approval{},
	}, nil
}

// BodyHash is blake2b256(payment bytes || session bytes).
func BodyHash(payment, session ExecutableDeployItem) (Hash, error) {
	pb, err := payment.Bytes()
	if err != nil {
		return Hash{}, fmt.Errorf("payment: %w", err)
	}
	sb, err := session.Bytes()
	if err != nil {
		return Hash{}, fmt.Errorf("session: %w", err)
	}
	return blake2b256(pb, sb), nil
}

// HeaderHash is the deploy hash.
func HeaderHash(h Header) Hash {
	return blake2b256(h.Bytes())
}
