// Package signer signs deploy hashes with a local secret key file. It stands in
// for the browser wallet when the client runs from the command line; keys are
// read on demand and never written anywhere.
package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
)

var (
	ErrUnsupportedKey = errors.New("unsupported secret key")
	ErrNoPEMBlock     = errors.New("no PEM block found")
)

// Signer produces a raw 64-byte signature over a deploy hash.
type Signer interface {
	PublicKey() keys.PublicKey
	Sign(hash deploy.Hash) ([]byte, error)
}

// Ed25519 signs with an ed25519 key.
type Ed25519 struct {
	priv ed25519.PrivateKey
	pub  keys.PublicKey
}

// NewEd25519 wraps priv.
func NewEd25519(priv ed25519.PrivateKey) *Ed25519 {
	pubRaw := priv.Public().(ed25519.PublicKey)
	pub, _ := keys.NewPublicKey(keys.AlgorithmEd25519, pubRaw)
	return &Ed25519{priv: priv, pub: pub}
}

func (s *Ed25519) PublicKey() keys.PublicKey { return s.pub }

func (s *Ed25519) Sign(hash deploy.Hash) ([]byte, error) {
	return ed25519.Sign(s.priv, hash[:]), nil
}

// Secp256k1 signs sha256(hash) with a secp256k1 key and returns r || s.
type Secp256k1 struct {
	priv *btcec.PrivateKey
	pub  keys.PublicKey
}

// NewSecp256k1 wraps priv.
func NewSecp256k1(priv *btcec.PrivateKey) *Secp256k1 {
	pub, _ := keys.NewPublicKey(keys.AlgorithmSecp256k1, priv.PubKey().SerializeCompressed())
	return &Secp256k1{priv: priv, pub: pub}
}

func (s *Secp256k1) PublicKey() keys.PublicKey { return s.pub }

func (s *Secp256k1) Sign(hash deploy.Hash) ([]byte, error) {
	digest := sha256.Sum256(hash[:])
	compact, err := ecdsa.SignCompact(s.priv, digest[:], true)
	if err != nil {
		return nil, err
	}
	// drop the recovery byte
	return compact[1:], nil
}

// SignDeploy signs d and appends the approval.
func SignDeploy(d *deploy.Deploy, s Signer) error {
	sig, err := s.Sign(d.Hash)
	if err != nil {
		return fmt.Errorf("sign deploy %s: %w", d.Hash, err)
	}
	return d.AddApproval(s.PublicKey().Hex(), hex.EncodeToString(sig))
}

// LoadPEM reads a secret key file as written by casper-client keygen.
func LoadPEM(path string) (Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return ParsePEM(data)
}

// sec1 EC private key, RFC 5915
type ecPrivateKey struct {
	Version       int
	PrivateKey    []byte
	NamedCurveOID asn1.ObjectIdentifier `asn1:"optional,explicit,tag:0"`
	PublicKey     asn1.BitString        `asn1:"optional,explicit,tag:1"`
}

// ParsePEM accepts a PKCS#8 ed25519 key or a SEC1 secp256k1 key.
func ParsePEM(data []byte) (Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
		}
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: PKCS#8 key of type %T", ErrUnsupportedKey, key)
		}
		return NewEd25519(priv), nil
	case "EC PRIVATE KEY":
		var k ecPrivateKey
		if _, err := asn1.Unmarshal(block.Bytes, &k); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
		}
		if len(k.PrivateKey) != 32 {
			return nil, fmt.Errorf("%w: secp256k1 scalar must be 32 bytes", ErrUnsupportedKey)
		}
		priv, _ := btcec.PrivKeyFromBytes(k.PrivateKey)
		return NewSecp256k1(priv), nil
	default:
		return nil, fmt.Errorf("%w: PEM type %q", ErrUnsupportedKey, block.Type)
	}
}
