package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm is the signature scheme of a public key. Its value is the tag byte
// the node prefixes to keys and signatures.
type Algorithm uint8

const (
	AlgorithmEd25519   Algorithm = 0x01
	AlgorithmSecp256k1 Algorithm = 0x02
)

const (
	Ed25519KeyLen   = 32
	Secp256k1KeyLen = 33
)

var ErrInvalidPublicKey = errors.New("invalid public key")

// Name returns the lowercase algorithm name used in account hash derivation.
func (a Algorithm) Name() string {
	switch a {
	case AlgorithmEd25519:
		return "ed25519"
	case AlgorithmSecp256k1:
		return "secp256k1"
	default:
		return ""
	}
}

// TagHex returns the two-char hex tag for the algorithm.
func (a Algorithm) TagHex() string {
	return fmt.Sprintf("%02x", uint8(a))
}

// KeyLen returns the raw key length for the algorithm.
func (a Algorithm) KeyLen() int {
	switch a {
	case AlgorithmEd25519:
		return Ed25519KeyLen
	case AlgorithmSecp256k1:
		return Secp256k1KeyLen
	default:
		return 0
	}
}

// PublicKey is an algorithm-tagged public key.
type PublicKey struct {
	Algorithm Algorithm
	Raw       []byte
}

// NewPublicKey validates raw against the algorithm's key length.
func NewPublicKey(alg Algorithm, raw []byte) (PublicKey, error) {
	if alg.KeyLen() == 0 {
		return PublicKey{}, fmt.Errorf("%w: unknown algorithm tag %02x", ErrInvalidPublicKey, uint8(alg))
	}
	if len(raw) != alg.KeyLen() {
		return PublicKey{}, fmt.Errorf("%w: %s key must be %d bytes, got %d", ErrInvalidPublicKey, alg.Name(), alg.KeyLen(), len(raw))
	}
	return PublicKey{Algorithm: alg, Raw: append([]byte(nil), raw...)}, nil
}

// ParsePublicKey parses a tagged hex public key ("01" + 64 hex or "02" + 66 hex).
func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(b) < 1 {
		return PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}
	return NewPublicKey(Algorithm(b[0]), b[1:])
}

// Bytes returns the tag byte followed by the raw key, the node's serialized form.
func (p PublicKey) Bytes() []byte {
	out := make([]byte, 0, 1+len(p.Raw))
	out = append(out, byte(p.Algorithm))
	return append(out, p.Raw...)
}

// Hex returns the tagged hex form.
func (p PublicKey) Hex() string {
	return hex.EncodeToString(p.Bytes())
}

func (p PublicKey) String() string {
	return p.Hex()
}

// IsZero reports whether the key is unset.
func (p PublicKey) IsZero() bool {
	return len(p.Raw) == 0
}

// AccountHash derives blake2b256(name || 0x00 || raw).
func (p PublicKey) AccountHash() Address {
	name := p.Algorithm.Name()
	buf := make([]byte, 0, len(name)+1+len(p.Raw))
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, p.Raw...)
	return NewAccountHash(blake2b.Sum256(buf))
}

// MarshalText implements encoding.TextMarshaler.
func (p PublicKey) MarshalText() ([]byte, error) {
	return []byte(p.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PublicKey) UnmarshalText(b []byte) error {
	parsed, err := ParsePublicKey(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
