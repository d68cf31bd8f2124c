package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ectoplasm/dexclient/internal/casper/clvalue"
)

var ErrNotInteger = errors.New("value is not an unsigned integer")

// CLValue is a stored value as returned by the node. CLType is kept raw since
// the node may return types the client does not model.
type CLValue struct {
	CLType json.RawMessage `json:"cl_type"`
	Bytes  string          `json:"bytes"`
	Parsed json.RawMessage `json:"parsed"`
}

// Type parses the cl_type field.
func (v CLValue) Type() (clvalue.Type, error) {
	var t clvalue.Type
	if err := json.Unmarshal(v.CLType, &t); err != nil {
		return clvalue.Type{}, err
	}
	return t, nil
}

// DecodeCLInteger extracts a non-negative integer from a CLValue. The parsed
// field may be a decimal string, a JSON number or a little-endian byte list
// that sometimes carries a leading length byte. When parsed is unusable the
// raw bytes are decoded for unsigned integer types.
func DecodeCLInteger(v CLValue) (*big.Int, error) {
	if n, ok := integerFromParsed(v.Parsed); ok {
		return n, nil
	}
	t, err := v.Type()
	if err != nil || !t.IsUnsigned() {
		return nil, fmt.Errorf("%w: cl_type %s", ErrNotInteger, string(v.CLType))
	}
	raw, err := hex.DecodeString(v.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: bytes: %v", ErrNotInteger, err)
	}
	n, err := clvalue.DecodeUint(t, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInteger, err)
	}
	return n, nil
}

func integerFromParsed(raw json.RawMessage) (*big.Int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		return decimalInteger(s)
	case '[':
		var list []uint8
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, false
		}
		if len(list) == 0 {
			return nil, false
		}
		if int(list[0]) == len(list)-1 {
			list = list[1:]
		}
		return clvalue.LittleEndianInt(list), true
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return nil, false
		}
		return decimalInteger(num.String())
	}
}

func decimalInteger(s string) (*big.Int, bool) {
	if n, ok := new(big.Int).SetString(s, 10); ok {
		if n.Sign() < 0 {
			return nil, false
		}
		return n, true
	}
	// numbers such as 1e21 or 5.0
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return nil, false
	}
	return d.BigInt(), true
}
