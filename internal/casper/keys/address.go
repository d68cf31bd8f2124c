// Package keys provides Casper addresses (account hashes, contract and package
// hashes, URefs) and public keys.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// HashLen is the length of every raw address payload.
const HashLen = 32

// Kind identifies the variant of an Address.
type Kind uint8

const (
	KindAccountHash Kind = iota
	KindContractHash
	KindContractPackageHash
	KindURef
)

// Address prefixes as rendered by the node.
const (
	PrefixAccountHash     = "account-hash-"
	PrefixContractHash    = "hash-"
	PrefixContractPackage = "contract-package-"
	PrefixURef            = "uref-"

	// legacy prefix some tooling still emits for package hashes
	prefixContractPackageWasm = "contract-package-wasm"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidHex     = errors.New("invalid hex")
)

// AccessRights is the access byte carried by a URef.
type AccessRights uint8

const (
	AccessNone         AccessRights = 0
	AccessRead         AccessRights = 1
	AccessWrite        AccessRights = 2
	AccessAdd          AccessRights = 4
	AccessReadAddWrite AccessRights = 7
)

// Address is a tagged union over the 32-byte identifiers used on chain.
// The prefix is presentation only; Hash is what gets encoded and hashed.
type Address struct {
	Kind   Kind
	Hash   [HashLen]byte
	Access AccessRights
}

func (k Kind) String() string {
	switch k {
	case KindAccountHash:
		return "account-hash"
	case KindContractHash:
		return "contract-hash"
	case KindContractPackageHash:
		return "contract-package-hash"
	case KindURef:
		return "uref"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// NewAccountHash returns an account-hash address.
func NewAccountHash(h [HashLen]byte) Address {
	return Address{Kind: KindAccountHash, Hash: h}
}

// NewContractHash returns a contract-hash address.
func NewContractHash(h [HashLen]byte) Address {
	return Address{Kind: KindContractHash, Hash: h}
}

// NewContractPackageHash returns a contract-package address.
func NewContractPackageHash(h [HashLen]byte) Address {
	return Address{Kind: KindContractPackageHash, Hash: h}
}

// NewURef returns a URef address with the given access rights.
func NewURef(h [HashLen]byte, access AccessRights) Address {
	return Address{Kind: KindURef, Hash: h, Access: access}
}

// ParseAddress parses a prefixed address string. Bare hex is rejected; use
// ParseAddressAs when a default kind is known.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, PrefixAccountHash):
		return parseHashed(KindAccountHash, strings.TrimPrefix(s, PrefixAccountHash))
	case strings.HasPrefix(s, prefixContractPackageWasm):
		return parseHashed(KindContractPackageHash, strings.TrimPrefix(s, prefixContractPackageWasm))
	case strings.HasPrefix(s, PrefixContractPackage):
		return parseHashed(KindContractPackageHash, strings.TrimPrefix(s, PrefixContractPackage))
	case strings.HasPrefix(s, PrefixContractHash):
		return parseHashed(KindContractHash, strings.TrimPrefix(s, PrefixContractHash))
	case strings.HasPrefix(s, PrefixURef):
		return parseURef(strings.TrimPrefix(s, PrefixURef))
	default:
		return Address{}, fmt.Errorf("%w: unknown prefix in %q", ErrInvalidAddress, s)
	}
}

// ParseAddressAs parses s, accepting bare 64-char hex as an address of kind def.
func ParseAddressAs(s string, def Kind) (Address, error) {
	s = strings.TrimSpace(s)
	if isBareHash(s) {
		if def == KindURef {
			return Address{}, fmt.Errorf("%w: uref requires access rights suffix", ErrInvalidAddress)
		}
		return parseHashed(def, s)
	}
	return ParseAddress(s)
}

// String renders the address with its canonical prefix.
func (a Address) String() string {
	h := hex.EncodeToString(a.Hash[:])
	switch a.Kind {
	case KindAccountHash:
		return PrefixAccountHash + h
	case KindContractHash:
		return PrefixContractHash + h
	case KindContractPackageHash:
		return PrefixContractPackage + h
	case KindURef:
		return fmt.Sprintf("%s%s-%03o", PrefixURef, h, a.Access)
	default:
		return h
	}
}

// Hex returns the raw payload as lowercase hex without any prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a.Hash[:])
}

// IsZero reports whether the payload is all zeroes.
func (a Address) IsZero() bool {
	return a.Hash == [HashLen]byte{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// DecodeHash decodes 64 hex chars into a 32-byte payload.
func DecodeHash(s string) ([HashLen]byte, error) {
	var out [HashLen]byte
	if len(s) != HashLen*2 {
		return out, fmt.Errorf("%w: expected %d hex chars, got %d", ErrInvalidHex, HashLen*2, len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return out, nil
}

func parseHashed(kind Kind, h string) (Address, error) {
	raw, err := DecodeHash(h)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, kind, err)
	}
	return Address{Kind: kind, Hash: raw}, nil
}

// uref-<64 hex>-<3 octal digits>
func parseURef(s string) (Address, error) {
	idx := strings.LastIndexByte(s, '-')
	if idx != HashLen*2 {
		return Address{}, fmt.Errorf("%w: malformed uref", ErrInvalidAddress)
	}
	raw, err := DecodeHash(s[:idx])
	if err != nil {
		return Address{}, fmt.Errorf("%w: uref: %v", ErrInvalidAddress, err)
	}
	access, err := strconv.ParseUint(s[idx+1:], 8, 8)
	if err != nil || access > uint64(AccessReadAddWrite) {
		return Address{}, fmt.Errorf("%w: uref access rights %q", ErrInvalidAddress, s[idx+1:])
	}
	return NewURef(raw, AccessRights(access)), nil
}

func isBareHash(s string) bool {
	if len(s) != HashLen*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
