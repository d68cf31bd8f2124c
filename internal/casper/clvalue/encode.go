// Package clvalue encodes contract call arguments into the node's CLValue
// representation, both the canonical bytes that feed deploy hashing and the
// JSON form accepted by account_put_deploy.
package clvalue

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/holiman/uint256"

	"github.com/ectoplasm/dexclient/internal/casper/keys"
)

var (
	ErrUnsupportedArgType = errors.New("unsupported argument type")
	ErrValueOutOfRange    = errors.New("value out of range")
	ErrMixedList          = errors.New("list elements must share one type")
)

// EncodingError reports an argument that could not be encoded.
type EncodingError struct {
	Arg string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode argument %q: %v", e.Arg, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// Key tags inside a serialized Key value.
const (
	keyTagAccount byte = 0
	keyTagHash    byte = 1
	keyTagURef    byte = 2
)

// Supported argument values.
type (
	// U64 encodes as 8 little-endian bytes.
	U64 uint64
	// U256 encodes as a length byte followed by minimal little-endian bytes.
	U256 struct{ Int *big.Int }
	// U512 uses the U256 scheme with a 512-bit limit. Used for payment amounts.
	U512 struct{ Int *big.Int }
	// Key wraps an address. Contract and package hashes both encode as Key::Hash.
	Key keys.Address
	// ByteArray is a fixed-length byte array.
	ByteArray []byte
	// ByteList is List<U8>.
	ByteList []byte
	// KeyList is List<Key>.
	KeyList []keys.Address
)

// NewU256 is shorthand for U256{Int: v}.
func NewU256(v *big.Int) U256 { return U256{Int: v} }

// NewU512 is shorthand for U512{Int: v}.
func NewU512(v *big.Int) U512 { return U512{Int: v} }

// NamedArg is one encoded runtime argument. It is immutable once produced.
type NamedArg struct {
	Name   string
	Type   Type
	Value  []byte
	Parsed any
}

// Encode converts a supported value into a NamedArg. Plain Go values are
// accepted where the mapping is unambiguous: uint64 as U64, *big.Int as U256,
// keys.Address as Key, []keys.Address as KeyList.
func Encode(name string, v any) (NamedArg, error) {
	arg, err := encode(name, v)
	if err != nil {
		return NamedArg{}, &EncodingError{Arg: name, Err: err}
	}
	return arg, nil
}

func encode(name string, v any) (NamedArg, error) {
	switch val := v.(type) {
	case U64:
		return NamedArg{Name: name, Type: TypeU64, Value: AppendU64(nil, uint64(val)), Parsed: uint64(val)}, nil
	case uint64:
		return encode(name, U64(val))
	case U256:
		b, err := encodeU256(val.Int)
		if err != nil {
			return NamedArg{}, err
		}
		return NamedArg{Name: name, Type: TypeU256, Value: b, Parsed: val.Int.String()}, nil
	case *big.Int:
		return encode(name, U256{Int: val})
	case U512:
		b, err := encodeBigLE(val.Int, 512)
		if err != nil {
			return NamedArg{}, err
		}
		return NamedArg{Name: name, Type: TypeU512, Value: b, Parsed: val.Int.String()}, nil
	case Key:
		b, err := encodeKey(keys.Address(val))
		if err != nil {
			return NamedArg{}, err
		}
		return NamedArg{Name: name, Type: TypeKey, Value: b, Parsed: parsedKey(keys.Address(val))}, nil
	case keys.Address:
		return encode(name, Key(val))
	case ByteArray:
		return NamedArg{
			Name:   name,
			Type:   ByteArrayOf(uint32(len(val))),
			Value:  slices.Clone([]byte(val)),
			Parsed: hex.EncodeToString(val),
		}, nil
	case ByteList:
		parsed := make([]int, len(val))
		for i, b := range val {
			parsed[i] = int(b)
		}
		return NamedArg{
			Name:   name,
			Type:   ListOf(TypeU8),
			Value:  AppendBytes(nil, val),
			Parsed: parsed,
		}, nil
	case KeyList:
		buf := AppendU32(nil, uint32(len(val)))
		parsed := make([]any, 0, len(val))
		for _, k := range val {
			b, err := encodeKey(k)
			if err != nil {
				return NamedArg{}, err
			}
			buf = append(buf, b...)
			parsed = append(parsed, parsedKey(k))
		}
		return NamedArg{Name: name, Type: ListOf(TypeKey), Value: buf, Parsed: parsed}, nil
	case []keys.Address:
		return encode(name, KeyList(val))
	case []any:
		return encodeList(name, val)
	default:
		return NamedArg{}, fmt.Errorf("%w: %T", ErrUnsupportedArgType, v)
	}
}

// encodeList handles heterogeneous Go slices by requiring every element to
// encode to the same CLType.
func encodeList(name string, items []any) (NamedArg, error) {
	if len(items) == 0 {
		return NamedArg{}, fmt.Errorf("%w: empty untyped list", ErrUnsupportedArgType)
	}
	buf := AppendU32(nil, uint32(len(items)))
	parsed := make([]any, 0, len(items))
	var elem Type
	for i, item := range items {
		a, err := encode(name, item)
		if err != nil {
			return NamedArg{}, err
		}
		if i == 0 {
			elem = a.Type
		} else if !elem.Equal(a.Type) {
			return NamedArg{}, fmt.Errorf("%w: element %d is %s, want %s", ErrMixedList, i, a.Type, elem)
		}
		buf = append(buf, a.Value...)
		parsed = append(parsed, a.Parsed)
	}
	return NamedArg{Name: name, Type: ListOf(elem), Value: buf, Parsed: parsed}, nil
}

func encodeU256(v *big.Int) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil integer", ErrValueOutOfRange)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrValueOutOfRange, v)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds 256 bits", ErrValueOutOfRange, v)
	}
	return lengthPrefixedLE(u.Bytes()), nil
}

func encodeBigLE(v *big.Int, bits int) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil integer", ErrValueOutOfRange)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrValueOutOfRange, v)
	}
	if v.BitLen() > bits {
		return nil, fmt.Errorf("%w: %s exceeds %d bits", ErrValueOutOfRange, v, bits)
	}
	return lengthPrefixedLE(v.Bytes()), nil
}

// lengthPrefixedLE turns minimal big-endian bytes into a length byte followed by
// the same bytes little-endian. Zero is the single byte 0x00.
func lengthPrefixedLE(be []byte) []byte {
	out := make([]byte, 1+len(be))
	out[0] = byte(len(be))
	for i, b := range be {
		out[len(be)-i] = b
	}
	return out
}

func encodeKey(a keys.Address) ([]byte, error) {
	out := make([]byte, 0, 2+keys.HashLen)
	switch a.Kind {
	case keys.KindAccountHash:
		out = append(out, keyTagAccount)
	case keys.KindContractHash, keys.KindContractPackageHash:
		out = append(out, keyTagHash)
	case keys.KindURef:
		out = append(out, keyTagURef)
		out = append(out, a.Hash[:]...)
		return append(out, byte(a.Access)), nil
	default:
		return nil, fmt.Errorf("%w: key kind %s", ErrUnsupportedArgType, a.Kind)
	}
	return append(out, a.Hash[:]...), nil
}

func parsedKey(a keys.Address) map[string]string {
	switch a.Kind {
	case keys.KindAccountHash:
		return map[string]string{"Account": a.String()}
	case keys.KindURef:
		return map[string]string{"URef": a.String()}
	default:
		return map[string]string{"Hash": keys.PrefixContractHash + a.Hex()}
	}
}
