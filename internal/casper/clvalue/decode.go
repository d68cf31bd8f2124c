package clvalue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ectoplasm/dexclient/internal/casper/keys"
)

var ErrMalformedValue = errors.New("malformed value bytes")

// DecodeUint decodes the serialized bytes of an unsigned integer CLType.
func DecodeUint(t Type, b []byte) (*big.Int, error) {
	switch t.Tag {
	case TagU8:
		if len(b) != 1 {
			return nil, fmt.Errorf("%w: U8 needs 1 byte, got %d", ErrMalformedValue, len(b))
		}
		return big.NewInt(int64(b[0])), nil
	case TagU32:
		if len(b) != 4 {
			return nil, fmt.Errorf("%w: U32 needs 4 bytes, got %d", ErrMalformedValue, len(b))
		}
		return new(big.Int).SetUint64(uint64(binary.LittleEndian.Uint32(b))), nil
	case TagU64:
		if len(b) != 8 {
			return nil, fmt.Errorf("%w: U64 needs 8 bytes, got %d", ErrMalformedValue, len(b))
		}
		return new(big.Int).SetUint64(binary.LittleEndian.Uint64(b)), nil
	case TagU128, TagU256, TagU512:
		if len(b) == 0 || int(b[0]) != len(b)-1 {
			return nil, fmt.Errorf("%w: %s length byte does not match payload", ErrMalformedValue, t)
		}
		return LittleEndianInt(b[1:]), nil
	default:
		return nil, fmt.Errorf("%w: %s is not an unsigned integer", ErrUnsupportedArgType, t)
	}
}

// LittleEndianInt interprets b as an unsigned little-endian integer of any width.
func LittleEndianInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}

// Uint decodes the argument as an unsigned integer.
func (a NamedArg) Uint() (*big.Int, error) {
	return DecodeUint(a.Type, a.Value)
}

// Keys decodes a List<Key> argument. Hash keys come back as contract hashes
// since the encoding does not distinguish packages from contracts.
func (a NamedArg) Keys() ([]keys.Address, error) {
	if !a.Type.Equal(ListOf(TypeKey)) {
		return nil, fmt.Errorf("%w: %s is not List<Key>", ErrUnsupportedArgType, a.Type)
	}
	if len(a.Value) < 4 {
		return nil, fmt.Errorf("%w: short list", ErrMalformedValue)
	}
	n := binary.LittleEndian.Uint32(a.Value)
	rest := a.Value[4:]
	if uint64(n) > uint64(len(rest)/(1+keys.HashLen)) {
		return nil, fmt.Errorf("%w: %d keys in %d bytes", ErrMalformedValue, n, len(rest))
	}
	out := make([]keys.Address, 0, n)
	for i := uint32(0); i < n; i++ {
		k, used, err := decodeKey(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
		rest = rest[used:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedValue, len(rest))
	}
	return out, nil
}

// Key decodes a Key argument.
func (a NamedArg) Key() (keys.Address, error) {
	if a.Type.Tag != TagKey {
		return keys.Address{}, fmt.Errorf("%w: %s is not Key", ErrUnsupportedArgType, a.Type)
	}
	k, used, err := decodeKey(a.Value)
	if err != nil {
		return keys.Address{}, err
	}
	if used != len(a.Value) {
		return keys.Address{}, fmt.Errorf("%w: trailing bytes after key", ErrMalformedValue)
	}
	return k, nil
}

func decodeKey(b []byte) (keys.Address, int, error) {
	if len(b) < 1+keys.HashLen {
		return keys.Address{}, 0, fmt.Errorf("%w: short key", ErrMalformedValue)
	}
	var h [keys.HashLen]byte
	copy(h[:], b[1:1+keys.HashLen])
	switch b[0] {
	case keyTagAccount:
		return keys.NewAccountHash(h), 1 + keys.HashLen, nil
	case keyTagHash:
		return keys.NewContractHash(h), 1 + keys.HashLen, nil
	case keyTagURef:
		if len(b) < 2+keys.HashLen {
			return keys.Address{}, 0, fmt.Errorf("%w: short uref", ErrMalformedValue)
		}
		return keys.NewURef(h, keys.AccessRights(b[1+keys.HashLen])), 2 + keys.HashLen, nil
	default:
		return keys.Address{}, 0, fmt.Errorf("%w: unknown key tag %d", ErrMalformedValue, b[0])
	}
}
