package clvalue

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrDuplicateArg = errors.New("duplicate argument name")

// Args is an ordered set of runtime arguments. Order is insertion order and is
// part of the hashed bytes.
type Args struct {
	items []NamedArg
}

// NewArgs returns an empty argument list.
func NewArgs() *Args {
	return &Args{}
}

// Add encodes v and appends it under name.
func (a *Args) Add(name string, v any) error {
	arg, err := Encode(name, v)
	if err != nil {
		return err
	}
	return a.Append(arg)
}

// Append adds an already encoded argument.
func (a *Args) Append(arg NamedArg) error {
	if _, ok := a.Get(arg.Name); ok {
		return &EncodingError{Arg: arg.Name, Err: ErrDuplicateArg}
	}
	a.items = append(a.items, arg)
	return nil
}

// Get returns the argument with the given name.
func (a *Args) Get(name string) (NamedArg, bool) {
	if a == nil {
		return NamedArg{}, false
	}
	for _, it := range a.items {
		if it.Name == name {
			return it, true
		}
	}
	return NamedArg{}, false
}

// Len returns the number of arguments.
func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}

// Names returns argument names in order.
func (a *Args) Names() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.items))
	for i, it := range a.items {
		out[i] = it.Name
	}
	return out
}

// Bytes serializes the list: u32 count, then per argument the name, the
// length-prefixed value bytes and the type descriptor.
func (a *Args) Bytes() []byte {
	buf := AppendU32(nil, uint32(a.Len()))
	if a == nil {
		return buf
	}
	for _, it := range a.items {
		buf = AppendString(buf, it.Name)
		buf = AppendBytes(buf, it.Value)
		buf = it.Type.appendTo(buf)
	}
	return buf
}

type jsonCLValue struct {
	CLType Type   `json:"cl_type"`
	Bytes  string `json:"bytes"`
	Parsed any    `json:"parsed"`
}

// MarshalJSON renders [["name", {"cl_type", "bytes", "parsed"}], ...].
func (a *Args) MarshalJSON() ([]byte, error) {
	out := make([][2]any, 0, a.Len())
	if a != nil {
		for _, it := range a.items {
			out = append(out, [2]any{it.Name, jsonCLValue{
				CLType: it.Type,
				Bytes:  hex.EncodeToString(it.Value),
				Parsed: it.Parsed,
			}})
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form produced by MarshalJSON. The parsed field is
// kept verbatim; bytes and cl_type are authoritative.
func (a *Args) UnmarshalJSON(b []byte) error {
	var raw [][2]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("invalid args: %w", err)
	}
	items := make([]NamedArg, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, pair := range raw {
		var name string
		if err := json.Unmarshal(pair[0], &name); err != nil {
			return fmt.Errorf("invalid arg %d name: %w", i, err)
		}
		if _, dup := seen[name]; dup {
			return &EncodingError{Arg: name, Err: ErrDuplicateArg}
		}
		seen[name] = struct{}{}

		var v struct {
			CLType Type            `json:"cl_type"`
			Bytes  string          `json:"bytes"`
			Parsed json.RawMessage `json:"parsed"`
		}
		if err := json.Unmarshal(pair[1], &v); err != nil {
			return fmt.Errorf("invalid arg %q: %w", name, err)
		}
		value, err := hex.DecodeString(v.Bytes)
		if err != nil {
			return fmt.Errorf("invalid arg %q bytes: %w", name, err)
		}
		var parsed any
		if len(v.Parsed) > 0 {
			parsed = v.Parsed
		}
		items = append(items, NamedArg{Name: name, Type: v.CLType, Value: value, Parsed: parsed})
	}
	a.items = items
	return nil
}
